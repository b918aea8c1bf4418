package tuner

import (
	"runtime"
	"testing"
)

const gib = 1024 * 1024 * 1024

func TestDetect(t *testing.T) {
	resources, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}

	if resources.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d (runtime.NumCPU())", resources.CPUCores, runtime.NumCPU())
	}
	if resources.TotalRAM <= 0 {
		t.Errorf("TotalRAM = %d, want > 0", resources.TotalRAM)
	}
	if resources.AvailableRAM < 0 || resources.AvailableRAM > resources.TotalRAM {
		t.Errorf("AvailableRAM = %d, want within [0, %d]", resources.AvailableRAM, resources.TotalRAM)
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name        string
		resources   SystemResources
		chunkSize   int64
		wantWorkers int
	}{
		{
			name:        "single core",
			resources:   SystemResources{CPUCores: 1, TotalRAM: 4 * gib, AvailableRAM: 2 * gib},
			chunkSize:   64 * 1024,
			wantWorkers: 2,
		},
		{
			name:        "eight cores",
			resources:   SystemResources{CPUCores: 8, TotalRAM: 16 * gib, AvailableRAM: 8 * gib},
			chunkSize:   64 * 1024,
			wantWorkers: 16,
		},
		{
			name:        "many cores capped",
			resources:   SystemResources{CPUCores: 128, TotalRAM: 512 * gib, AvailableRAM: 256 * gib},
			chunkSize:   64 * 1024,
			wantWorkers: 64,
		},
		{
			name:        "memory bound with huge chunks",
			resources:   SystemResources{CPUCores: 16, TotalRAM: 2 * gib, AvailableRAM: 1 * gib},
			chunkSize:   16 * 1024 * 1024,
			wantWorkers: 3,
		},
		{
			name:        "unknown memory",
			resources:   SystemResources{CPUCores: 4},
			chunkSize:   64 * 1024,
			wantWorkers: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.resources, tt.chunkSize)
			if got.HashWorkers != tt.wantWorkers {
				t.Errorf("HashWorkers = %d, want %d", got.HashWorkers, tt.wantWorkers)
			}
			if got.JobQueueSize < minQueueSize || got.JobQueueSize > maxQueueSize {
				t.Errorf("JobQueueSize = %d, want within [%d, %d]", got.JobQueueSize, minQueueSize, maxQueueSize)
			}
		})
	}
}

func TestCalculateWithOverrides(t *testing.T) {
	resources := SystemResources{CPUCores: 4, TotalRAM: 8 * gib, AvailableRAM: 4 * gib}

	if got := CalculateWithOverrides(resources, 64*1024, 3).HashWorkers; got != 3 {
		t.Errorf("override 3: HashWorkers = %d", got)
	}
	if got := CalculateWithOverrides(resources, 64*1024, 500).HashWorkers; got != maxWorkers {
		t.Errorf("override 500: HashWorkers = %d, want %d", got, maxWorkers)
	}
	if got := CalculateWithOverrides(resources, 64*1024, 0).HashWorkers; got != 8 {
		t.Errorf("override 0: HashWorkers = %d, want 8", got)
	}
}

func TestCalculateQueueSize(t *testing.T) {
	if got := calculateQueueSize(0); got != minQueueSize {
		t.Errorf("calculateQueueSize(0) = %d, want %d", got, minQueueSize)
	}
	if got := calculateQueueSize(1 << 50); got != maxQueueSize {
		t.Errorf("calculateQueueSize(huge) = %d, want %d", got, maxQueueSize)
	}
}
