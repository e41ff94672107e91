// Package pipeline drives the per-FOV stage sequence: batching, worker
// partitioning, the per-FOV runner, and the orchestrator tying them
// together.
package pipeline

// Batches splits the ordered FOV list into contiguous batches of at most
// size FOVs, preserving order so later batches never starve earlier ones.
// A size below 1 is treated as 1.
func Batches(fovs []int, size int) [][]int {
	if len(fovs) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	batches := make([][]int, 0, (len(fovs)+size-1)/size)
	for start := 0; start < len(fovs); start += size {
		end := start + size
		if end > len(fovs) {
			end = len(fovs)
		}
		batches = append(batches, fovs[start:end])
	}
	return batches
}

// WorkerRanges splits one batch into up to workers contiguous, near-equal
// ranges, the remainder going to the first ranges. Ranges never overlap
// and fewer FOVs than workers yields fewer ranges, never empty ones.
func WorkerRanges(batch []int, workers int) [][]int {
	if len(batch) == 0 || workers < 1 {
		return nil
	}
	if workers > len(batch) {
		workers = len(batch)
	}
	base := len(batch) / workers
	extra := len(batch) % workers

	ranges := make([][]int, 0, workers)
	start := 0
	for i := 0; i < workers; i++ {
		length := base
		if i < extra {
			length++
		}
		ranges = append(ranges, batch[start:start+length])
		start += length
	}
	return ranges
}
