package worker

import (
	"os"
	"os/signal"
	"syscall"
)

// GracefulStopSignal and ImmediateExitSignal mirror
// forkserve/internal/process's choice — kept as an independent constant
// here rather than an import so the worker package has no dependency on
// the master-only process package.
const (
	GracefulStopSignal  = syscall.SIGQUIT
	ImmediateExitSignal = syscall.SIGTERM
)

func watchSignal(ch chan os.Signal, sig os.Signal) {
	signal.Notify(ch, sig)
}
