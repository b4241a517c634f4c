package process

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"forkserve/internal/config"
	"forkserve/internal/pidfile"
	"forkserve/internal/shm"
)

// StopPhase is the master's shutdown state machine (spec.md §3
// MasterRuntimeState.stop_phase).
type StopPhase int32

const (
	Running StopPhase = iota
	StopNotified
	ExitNotified
)

func (p StopPhase) String() string {
	switch p {
	case Running:
		return "running"
	case StopNotified:
		return "stop_notified"
	case ExitNotified:
		return "exit_notified"
	default:
		return "unknown"
	}
}

const tickInterval = 10 * time.Millisecond

// These environment variable names hand a spawned worker its slot
// assignment, in lieu of fork()'s implicit copy of the parent's globals —
// everything a worker needs to know about itself crosses the exec boundary
// explicitly. The worker is started with the master's own command-line
// arguments, so it loads the same configuration the master did.
const (
	EnvRole    = "FORKSERVE_ROLE"
	EnvSlot    = "FORKSERVE_SLOT"
	EnvCPU     = "FORKSERVE_CPU"
	EnvWorkers = "FORKSERVE_WORKERS"
	RoleValue  = "worker"

	// ListenerFD and AcceptLockFD are the ExtraFiles positions (os/exec
	// numbers inherited descriptors starting at fd 3) a worker finds its
	// inherited listener and accept-lock region at.
	ListenerFD   = 3
	AcceptLockFD = 4
)

// Master owns the WorkerTable, the listening socket, and the accept lock's
// backing file, and runs the supervisor loop of spec.md §4.6.
type Master struct {
	cfg        *config.Config
	logger     *zap.Logger
	table      *Table
	binaryPath string

	listenerFile *os.File
	lockFile     *os.File

	masterInit func() error

	stopPhase        atomic.Int32
	allWorkersExited atomic.Bool
	respawnNeeded    atomic.Bool
	stopReceived     atomic.Bool
	exitReceived     atomic.Bool
}

// NewMaster creates the listening socket and the accept-lock region, and
// prepares (but does not yet spawn) the worker table.
func NewMaster(cfg *config.Config, logger *zap.Logger, masterInit func() error) (*Master, error) {
	binaryPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}

	listenerFile, err := CreateListenSocket(cfg.ListenIP, cfg.ListenPort, cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("create listen socket: %w", err)
	}

	_, lockFile, err := shm.Create()
	if err != nil {
		listenerFile.Close()
		return nil, fmt.Errorf("create accept lock: %w", err)
	}

	return &Master{
		cfg:          cfg,
		logger:       logger,
		table:        NewTable(cfg.Workers, runtime.NumCPU()),
		binaryPath:   binaryPath,
		listenerFile: listenerFile,
		lockFile:     lockFile,
		masterInit:   masterInit,
	}, nil
}

// Start runs the master init hook, writes the pidfile, fills every slot
// with a freshly spawned worker, and installs signal watchers.
func (m *Master) Start() error {
	if m.masterInit != nil {
		if err := m.masterInit(); err != nil {
			return fmt.Errorf("master init: %w", err)
		}
	}

	if err := pidfile.Create(m.cfg.PidFile, os.Getpid()); err != nil {
		return err
	}

	m.installSignalWatchers()

	for i := 0; i < m.cfg.Workers; i++ {
		if err := m.spawnWorker(i); err != nil {
			return fmt.Errorf("spawn worker %d: %w", i, err)
		}
	}

	m.logger.Info("master success running")
	return nil
}

func (m *Master) installSignalWatchers() {
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, GracefulStopSignal)
	go func() {
		for range stopCh {
			m.stopReceived.Store(true)
		}
	}()

	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, ImmediateExitSignal)
	go func() {
		for range exitCh {
			m.exitReceived.Store(true)
		}
	}()
}

func (m *Master) spawnWorker(slot int) error {
	cmd := exec.Command(m.binaryPath, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{m.listenerFile, m.lockFile}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", EnvRole, RoleValue),
		fmt.Sprintf("%s=%d", EnvSlot, slot),
		fmt.Sprintf("%s=%d", EnvCPU, m.table.CPUAffinity(slot)),
		fmt.Sprintf("%s=%d", EnvWorkers, m.cfg.Workers),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker process: %w", err)
	}

	pid := cmd.Process.Pid
	m.table.RecordChild(slot, pid)
	m.logger.Info("worker started", zap.Int("slot", slot), zap.Int("pid", pid))

	go m.monitorWorker(slot, cmd)
	return nil
}

// monitorWorker blocks on the child's exit, exactly as the teacher's
// Worker.monitor() blocks on cmd.Wait() — this is this implementation's
// CHILD_EXITED edge (spec.md §4.7): a reap event that posts flags for the
// supervisor loop to act on, rather than deciding anything itself.
func (m *Master) monitorWorker(slot int, cmd *exec.Cmd) {
	err := cmd.Wait()
	pid := cmd.Process.Pid
	m.table.ClearByPid(pid)

	stopping := StopPhase(m.stopPhase.Load()) != Running
	if stopping {
		m.logger.Info("worker exited during shutdown", zap.Int("slot", slot), zap.Int("pid", pid))
	} else {
		m.logger.Warn("worker exited unexpectedly", zap.Int("slot", slot), zap.Int("pid", pid), zap.Error(err))
		m.respawnNeeded.Store(true)
	}

	if stopping && m.table.IsEmpty() {
		m.allWorkersExited.Store(true)
	}
}

// Run is the supervisor loop of spec.md §4.6. It returns only via os.Exit,
// mirroring the C original's direct exit(0) on clean shutdown.
func (m *Master) Run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for range ticker.C {
		phase := StopPhase(m.stopPhase.Load())

		// exitReceived escalates out of any phase short of ExitNotified —
		// an operator can follow a graceful stop with an immediate exit
		// while workers are still draining, not only from Running.
		if phase != ExitNotified && m.exitReceived.Load() {
			m.logger.Warn("notifying workers to exit immediately")
			m.table.Broadcast(ImmediateExitSignal, m.logger)
			m.stopPhase.Store(int32(ExitNotified))
		} else if phase == Running && m.stopReceived.Load() {
			m.logger.Warn("notifying workers to stop")
			m.table.Broadcast(GracefulStopSignal, m.logger)
			m.stopPhase.Store(int32(StopNotified))
		}

		if m.allWorkersExited.Load() {
			m.logger.Warn("all workers exited, shutting down")
			m.logger.Sync()
			pidfile.Delete(m.cfg.PidFile)
			os.Exit(0)
		}

		if m.respawnNeeded.Load() {
			m.respawnNeeded.Store(false)
			m.fillVacantSlots()
		}

		m.logger.Sync()
	}
}

func (m *Master) fillVacantSlots() {
	for {
		slot, ok := m.table.FindVacant()
		if !ok {
			return
		}
		if err := m.spawnWorker(slot); err != nil {
			m.logger.Error("respawn failed", zap.Int("slot", slot), zap.Error(err))
			return
		}
	}
}
