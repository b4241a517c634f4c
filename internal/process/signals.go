package process

import "syscall"

// Logical signal → OS signal mapping (spec.md §4.7). The names are
// abstract in the spec; this is the concrete binding this implementation
// picked, analogous to shark.c's SHUTDOWN_SIGNAL/TERMINATE_SIGNAL.
//
// syscall.Signal is used here because it is the type os/signal.Notify's
// channel expects. golang.org/x/sys/unix.Signal is a type alias for
// syscall.Signal (see x/sys/unix/aliases.go), so Table.Broadcast passes
// these constants straight into unix.Kill with no conversion needed.
const (
	// GracefulStopSignal requests a drain-then-exit shutdown.
	GracefulStopSignal = syscall.SIGQUIT
	// ImmediateExitSignal requests an unconditional, non-draining exit.
	ImmediateExitSignal = syscall.SIGTERM
)
