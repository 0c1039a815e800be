package limits

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/viant/offload/internal/clock"
)

// lowMemoryThreshold marks hosts below this total RAM as constrained; such
// hosts get tighter timeouts, ceilings and GC intervals.
const lowMemoryThreshold = 4 << 30

// SystemSnapshot captures host capability and load at a point in time. It is
// recomputed periodically and always replaced as a whole, never patched.
type SystemSnapshot struct {
	CoreCount       int
	TotalMemory     uint64
	AvailableMemory uint64
	IsLowMemory     bool
	Load1           float64
	TakenAt         time.Time
}

// AdaptiveLimits parameterizes the pool manager and governor. Derived once at
// startup and re-derived when the governor detects a materially different
// load regime.
type AdaptiveLimits struct {
	MaxWorkers             int
	PerWorkerMemoryCeiling uint64
	TaskTimeout            time.Duration
	GCInterval             time.Duration
}

// Snapshot probes the host via gopsutil. Probe failures degrade to runtime
// package values rather than erroring: limits must always be derivable.
func Snapshot() SystemSnapshot {
	snapshot := SystemSnapshot{
		CoreCount: runtime.NumCPU(),
		TakenAt:   clock.Now(),
	}
	if count, err := cpu.Counts(true); err == nil && count > 0 {
		snapshot.CoreCount = count
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.TotalMemory = vm.Total
		snapshot.AvailableMemory = vm.Available
	}
	if avg, err := load.Avg(); err == nil {
		snapshot.Load1 = avg.Load1
	}
	snapshot.IsLowMemory = snapshot.TotalMemory > 0 && snapshot.TotalMemory < lowMemoryThreshold
	return snapshot
}

// Derive computes adaptive limits from a snapshot.
//
// MaxWorkers is half the core count with a floor of one: workers compete with
// the coordinator's own responsiveness needs. The per-worker ceiling takes an
// eighth of total RAM split across the workers, clamped to [128MiB, 1GiB].
func Derive(snapshot SystemSnapshot) AdaptiveLimits {
	maxWorkers := snapshot.CoreCount / 2
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var ceiling uint64 = 256 << 20
	if snapshot.TotalMemory > 0 {
		ceiling = snapshot.TotalMemory / 8 / uint64(maxWorkers)
	}
	if ceiling < 128<<20 {
		ceiling = 128 << 20
	}
	if ceiling > 1<<30 {
		ceiling = 1 << 30
	}

	result := AdaptiveLimits{
		MaxWorkers:             maxWorkers,
		PerWorkerMemoryCeiling: ceiling,
		TaskTimeout:            2 * time.Minute,
		GCInterval:             5 * time.Minute,
	}
	if snapshot.IsLowMemory {
		result.TaskTimeout = time.Minute
		result.GCInterval = 2 * time.Minute
	}
	return result
}

// MateriallyDifferent reports whether two snapshots describe different load
// regimes, i.e. whether limits derived from prev are stale for next.
func MateriallyDifferent(prev, next SystemSnapshot) bool {
	if prev.IsLowMemory != next.IsLowMemory {
		return true
	}
	if prev.CoreCount != next.CoreCount {
		return true
	}
	delta := next.Load1 - prev.Load1
	if delta < 0 {
		delta = -delta
	}
	return delta > float64(next.CoreCount)
}
