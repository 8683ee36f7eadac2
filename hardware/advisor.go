// Package hardware derives a recommended engine configuration from the host
// machine's CPU count and memory. The advisor is a pure function over a
// Probe; it keeps no state and has no failure modes — zero or missing host
// measurements fall through to safe minimums.
package hardware

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	gib = 1 << 30
	mib = 1 << 20

	// poolSizeLarge is the pool size recommended on hosts with more than
	// poolSizeMemThreshold of total memory; poolSizeSmall otherwise.
	poolSizeLarge        = 20
	poolSizeSmall        = 10
	poolSizeMemThreshold = 8 * gib

	// cacheSizeCapMB caps the recommended cache regardless of free memory.
	cacheSizeCapMB = 512
)

// Config is the advisor's recommendation plus the raw measurements it was
// derived from. All fields are informational for the caller; only the first
// three are passed to the engine.
type Config struct {
	WorkerCount int
	PoolSize    int
	CacheSizeMB int

	CPUCount   int
	TotalMemGB float64
	FreeMemGB  float64
}

// Probe supplies raw host measurements. Injectable so the advisor's
// arithmetic can be tested against fixed inputs.
type Probe interface {
	// CPUCount returns the number of logical CPUs.
	CPUCount() int
	// Memory returns total and free (available) memory in bytes.
	Memory() (total, free uint64)
}

// OS is the real host probe. CPU count comes from the Go runtime; memory
// from gopsutil. Introspection failures yield zeros, which Compute treats
// as "unknown" and floors to safe minimums.
type OS struct{}

var _ Probe = OS{}

// CPUCount implements Probe.
func (OS) CPUCount() int {
	return runtime.NumCPU()
}

// Memory implements Probe.
func (OS) Memory() (total, free uint64) {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0, 0
	}
	return vm.Total, vm.Available
}

// Compute derives the recommended configuration:
//
//	workerCount = max(1, cpuCount / 2)
//	poolSize    = 20 if total memory > 8 GiB, else 10
//	cacheSizeMB = min(512, freeMemory / 10, in MiB)
//
// A nil probe defaults to the real host probe.
func Compute(p Probe) Config {
	if p == nil {
		p = OS{}
	}

	cpus := p.CPUCount()
	total, free := p.Memory()

	workers := max(1, cpus/2)

	poolSize := poolSizeSmall
	if total > poolSizeMemThreshold {
		poolSize = poolSizeLarge
	}

	cacheMB := min(cacheSizeCapMB, int(free/10/mib))

	return Config{
		WorkerCount: workers,
		PoolSize:    poolSize,
		CacheSizeMB: cacheMB,
		CPUCount:    cpus,
		TotalMemGB:  float64(total) / gib,
		FreeMemGB:   float64(free) / gib,
	}
}
