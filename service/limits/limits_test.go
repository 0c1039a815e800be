package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	testCases := []struct {
		description string
		snapshot    SystemSnapshot
		expect      AdaptiveLimits
	}{
		{
			description: "8 cores, 16GiB desktop",
			snapshot:    SystemSnapshot{CoreCount: 8, TotalMemory: 16 << 30},
			expect: AdaptiveLimits{
				MaxWorkers:             4,
				PerWorkerMemoryCeiling: 512 << 20,
				TaskTimeout:            2 * time.Minute,
				GCInterval:             5 * time.Minute,
			},
		},
		{
			description: "single core keeps one worker",
			snapshot:    SystemSnapshot{CoreCount: 1, TotalMemory: 8 << 30},
			expect: AdaptiveLimits{
				MaxWorkers:             1,
				PerWorkerMemoryCeiling: 1 << 30,
				TaskTimeout:            2 * time.Minute,
				GCInterval:             5 * time.Minute,
			},
		},
		{
			description: "low memory host tightens timeouts and floors the ceiling",
			snapshot:    SystemSnapshot{CoreCount: 4, TotalMemory: 2 << 30, IsLowMemory: true},
			expect: AdaptiveLimits{
				MaxWorkers:             2,
				PerWorkerMemoryCeiling: 128 << 20,
				TaskTimeout:            time.Minute,
				GCInterval:             2 * time.Minute,
			},
		},
		{
			description: "huge host clamps the ceiling at 1GiB",
			snapshot:    SystemSnapshot{CoreCount: 32, TotalMemory: 512 << 30},
			expect: AdaptiveLimits{
				MaxWorkers:             16,
				PerWorkerMemoryCeiling: 1 << 30,
				TaskTimeout:            2 * time.Minute,
				GCInterval:             5 * time.Minute,
			},
		},
		{
			description: "unknown memory uses the default ceiling",
			snapshot:    SystemSnapshot{CoreCount: 4},
			expect: AdaptiveLimits{
				MaxWorkers:             2,
				PerWorkerMemoryCeiling: 256 << 20,
				TaskTimeout:            2 * time.Minute,
				GCInterval:             5 * time.Minute,
			},
		},
	}
	for _, testCase := range testCases {
		actual := Derive(testCase.snapshot)
		assert.EqualValues(t, testCase.expect, actual, testCase.description)
	}
}

func TestSnapshot(t *testing.T) {
	snapshot := Snapshot()
	assert.True(t, snapshot.CoreCount >= 1)
	assert.False(t, snapshot.TakenAt.IsZero())
}

func TestMateriallyDifferent(t *testing.T) {
	base := SystemSnapshot{CoreCount: 8, TotalMemory: 16 << 30, Load1: 1.0}
	assert.False(t, MateriallyDifferent(base, base))
	assert.False(t, MateriallyDifferent(base, SystemSnapshot{CoreCount: 8, TotalMemory: 16 << 30, Load1: 3.0}))
	assert.True(t, MateriallyDifferent(base, SystemSnapshot{CoreCount: 8, TotalMemory: 16 << 30, Load1: 12.0}), "load spike")
	assert.True(t, MateriallyDifferent(base, SystemSnapshot{CoreCount: 8, TotalMemory: 2 << 30, IsLowMemory: true}), "memory pressure flip")
	assert.True(t, MateriallyDifferent(base, SystemSnapshot{CoreCount: 4, TotalMemory: 16 << 30, Load1: 1.0}), "core count change")
}
