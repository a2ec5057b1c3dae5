package download

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/orion-launcher/core/internal/logging"
)

const (
	minConcurrency = 1
	maxConcurrency = 50
)

// AutoConcurrency picks a worker count from the task mix: mostly-small file
// sets parallelize aggressively, mostly-large sets stay narrow to avoid
// bandwidth contention, mixed sets sit in between. The result is clamped to
// [1, 50] and scaled down on constrained machines.
func AutoConcurrency(files []File) int {
	c := clampToResources(mixConcurrency(files))
	logging.L("downloader").Debug("auto concurrency", "tasks", len(files), "concurrency", c)
	return c
}

// mixConcurrency is the pure size-distribution heuristic, before resource
// clamping.
func mixConcurrency(files []File) int {
	n := len(files)
	if n == 0 {
		return minConcurrency
	}

	var small, large int
	for _, f := range files {
		switch {
		case f.Size <= 0:
		case f.Size < smallFileLimit:
			small++
		case f.Size > mediumFileLimit:
			large++
		}
	}

	var c int
	switch {
	case small > n*8/10:
		c = min(20, n)
		if n > 100 {
			c = min(30, n/3)
		}
	case large > n/2:
		c = min(5, n)
	default:
		c = min(10, n)
	}

	return max(minConcurrency, min(c, maxConcurrency))
}

// clampToResources lowers the worker count on machines with few CPUs or
// little free memory, where wide fan-out just thrashes.
func clampToResources(c int) int {
	if cpus := runtime.NumCPU(); c > cpus*4 {
		c = cpus * 4
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		// Under 512MiB available, cap at 5 workers.
		if vm.Available < 512<<20 && c > 5 {
			c = 5
		}
	}

	if c < minConcurrency {
		c = minConcurrency
	}
	return c
}
