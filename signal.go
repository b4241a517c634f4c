package forkserve

import (
	"fmt"
	"syscall"

	"forkserve/internal/pidfile"
	"forkserve/internal/process"
)

// SignalKind is one of the `-s` CLI targets (spec.md §6).
type SignalKind string

const (
	SignalStop SignalKind = "stop"
	SignalQuit SignalKind = "quit"
)

// SendSignal reads the master pid from pidFile and delivers the signal
// corresponding to kind — the implementation behind `-s stop`/`-s quit`.
func SendSignal(pidFile string, kind SignalKind) error {
	pid, err := pidfile.Read(pidFile)
	if err != nil {
		return err
	}

	var sig syscall.Signal
	switch kind {
	case SignalStop:
		sig = process.GracefulStopSignal
	case SignalQuit:
		sig = process.ImmediateExitSignal
	default:
		return fmt.Errorf("unknown signal kind %q", kind)
	}

	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal master pid %d: %w", pid, err)
	}
	return nil
}
