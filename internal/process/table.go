// Package process implements the master side of the prefork core: the
// Worker Process Table and the Master Supervisor Loop from spec.md §4.2
// and §4.6.
package process

import (
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// vacantPid is the sentinel marking an unoccupied slot — mirrors the C
// original's INVALID_PID.
const vacantPid = -1

// Slot is one managed child: its pid (or the vacant sentinel) and its
// immutable CPU affinity, assigned once at table creation and never
// re-derived from a respawned child's new pid.
type Slot struct {
	Pid         int
	CPUAffinity int
}

// Table is the fixed-capacity, ordered sequence of slots sized to the
// configured worker count. It is the sole authority on which pids are
// children of this master.
type Table struct {
	mu    sync.Mutex
	slots []Slot
}

// NewTable builds a table of n vacant slots, each pre-assigned a CPU
// affinity of index mod numCPU.
func NewTable(n, numCPU int) *Table {
	if numCPU <= 0 {
		numCPU = 1
	}
	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = Slot{Pid: vacantPid, CPUAffinity: i % numCPU}
	}
	return &Table{slots: slots}
}

// FindVacant returns the index of the first unoccupied slot.
func (t *Table) FindVacant() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s.Pid == vacantPid {
			return i, true
		}
	}
	return 0, false
}

// RecordChild fills slot with pid. The slot's CPU affinity is untouched —
// a respawned worker inherits the slot's original pinning.
func (t *Table) RecordChild(slot, pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[slot].Pid = pid
}

// CPUAffinity returns the CPU index assigned to slot.
func (t *Table) CPUAffinity(slot int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[slot].CPUAffinity
}

// ClearByPid nulls the slot holding pid, if any. Idempotent: clearing a pid
// not present in the table is a no-op.
func (t *Table) ClearByPid(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].Pid == pid {
			t.slots[i].Pid = vacantPid
		}
	}
}

// IsEmpty reports whether every slot's pid is absent.
func (t *Table) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s.Pid != vacantPid {
			return false
		}
	}
	return true
}

// Broadcast sends signo to every present pid, logging and continuing past
// individual kill failures so one unreachable worker never blocks the
// signal from reaching the rest.
func (t *Table) Broadcast(signo syscall.Signal, logger *zap.Logger) {
	t.mu.Lock()
	pids := make([]int, 0, len(t.slots))
	for _, s := range t.slots {
		if s.Pid != vacantPid {
			pids = append(pids, s.Pid)
		}
	}
	t.mu.Unlock()

	for _, pid := range pids {
		if err := unix.Kill(pid, signo); err != nil {
			logger.Warn("failed to signal worker", zap.Int("pid", pid), zap.Error(err))
		}
	}
}

// Snapshot returns a copy of the current slots, for status reporting and
// tests.
func (t *Table) Snapshot() []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)
	return out
}
