//go:build linux

package process

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BindCPU pins the calling process to the given CPU index. Called by the
// worker itself right after it starts, never derived from the parent —
// preserving the invariant that affinity belongs to the slot, not the pid.
func BindCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("bind cpu %d: %w", cpu, err)
	}
	return nil
}
