package tuner

// Pool limits.
const (
	// maxWorkers caps the hashing pool.
	maxWorkers = 64

	// minWorkers keeps some overlap between reads even on one core.
	minWorkers = 2

	minQueueSize = 64
	maxQueueSize = 65536
)

// Memory-based sizing constants.
const (
	// bytesPerJob estimates a queued job: a path plus walk metadata.
	bytesPerJob = 512

	// queueMemoryFraction is the share of available RAM given to the job queue.
	queueMemoryFraction = 0.01

	// bufferMemoryFraction is the share of available RAM given to in-flight
	// hash buffers across all workers.
	bufferMemoryFraction = 0.05
)

// OptimalConfig is the tuned hashing pool configuration.
type OptimalConfig struct {
	// HashWorkers is the number of concurrent hashing workers.
	HashWorkers int

	// JobQueueSize is the buffer between the walk and the workers.
	JobQueueSize int
}

// Calculate returns the pool configuration for the given resources and
// hash chunk size.
//
// Hashing alternates between disk reads and CPU work, so the pool runs two
// workers per core, capped at 64 and at however many chunk buffers fit in
// a small share of available RAM.
func Calculate(resources SystemResources, chunkSize int64) OptimalConfig {
	workers := max(resources.CPUCores*2, minWorkers)
	workers = min(workers, maxWorkers)

	if chunkSize > 0 && resources.AvailableRAM > 0 {
		byMemory := int(float64(resources.AvailableRAM) * bufferMemoryFraction / float64(chunkSize))
		workers = max(min(workers, byMemory), minWorkers)
	}

	return OptimalConfig{
		HashWorkers:  workers,
		JobQueueSize: calculateQueueSize(resources.AvailableRAM),
	}
}

// CalculateWithOverrides applies a configured worker count. Values of zero or
// less keep the calculated count; positive values are capped at 64.
func CalculateWithOverrides(resources SystemResources, chunkSize int64, workerOverride int) OptimalConfig {
	cfg := Calculate(resources, chunkSize)
	if workerOverride > 0 {
		cfg.HashWorkers = min(workerOverride, maxWorkers)
	}
	return cfg
}

func calculateQueueSize(availableRAM int64) int {
	entries := int(float64(availableRAM) * queueMemoryFraction / bytesPerJob)
	entries = max(entries, minQueueSize)
	return min(entries, maxQueueSize)
}
