//go:build !linux

package process

// BindCPU is a no-op outside Linux: CPU pinning is a Linux-specific
// scheduler facility and has no portable equivalent.
func BindCPU(cpu int) error {
	return nil
}
