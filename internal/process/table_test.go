package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFindVacantAndRecordChild(t *testing.T) {
	table := NewTable(3, 2)

	slot, ok := table.FindVacant()
	require.True(t, ok)
	assert.Equal(t, 0, slot)

	table.RecordChild(slot, 111)
	assert.False(t, table.IsEmpty())

	next, ok := table.FindVacant()
	require.True(t, ok)
	assert.Equal(t, 1, next)
}

func TestCPUAffinityIsSlotIndexModCPUCount(t *testing.T) {
	table := NewTable(5, 2)
	assert.Equal(t, 0, table.CPUAffinity(0))
	assert.Equal(t, 1, table.CPUAffinity(1))
	assert.Equal(t, 0, table.CPUAffinity(2))
	assert.Equal(t, 1, table.CPUAffinity(3))
}

func TestClearByPidIsIdempotent(t *testing.T) {
	table := NewTable(2, 1)
	table.RecordChild(0, 555)

	table.ClearByPid(555)
	assert.True(t, table.IsEmpty())

	// second clear of the same (now absent) pid must be a no-op, not a panic.
	table.ClearByPid(555)
	assert.True(t, table.IsEmpty())
}

func TestCPUAffinitySurvivesRespawn(t *testing.T) {
	table := NewTable(3, 3)
	table.RecordChild(1, 100)
	originalAffinity := table.CPUAffinity(1)

	table.ClearByPid(100)
	table.RecordChild(1, 200) // respawned worker, new pid, same slot

	assert.Equal(t, originalAffinity, table.CPUAffinity(1))
}

func TestIsEmptyOnFreshTable(t *testing.T) {
	table := NewTable(4, 1)
	assert.True(t, table.IsEmpty())
}

func TestBroadcastOnEmptyTableIsNoOp(t *testing.T) {
	table := NewTable(2, 1)
	logger := zap.NewNop()
	assert.NotPanics(t, func() {
		table.Broadcast(0, logger)
	})
}
