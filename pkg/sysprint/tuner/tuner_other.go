//go:build !darwin && !linux

package tuner

import (
	"runtime"
)

// defaultTotalRAM is assumed where memory cannot be detected.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024

// Detect reports CPU cores and assumes 8GB of RAM, half of it available.
func Detect() (SystemResources, error) {
	totalRAM := int64(defaultTotalRAM)

	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     totalRAM,
		AvailableRAM: totalRAM / 2,
	}, nil
}
