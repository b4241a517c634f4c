// Package forkserve is a prefork TCP server framework: a master process
// supervises N worker processes, each running goroutines on the Go
// runtime's scheduler and netpoller (a worker is not limited to a single OS
// thread); workers serialize accept() across processes via a shared-memory
// spinlock and serve each connection with a user-supplied handler.
//
// Register a project with New and its functional options, then call Run —
// the process dispatches itself to the master or worker role based on
// whether it was re-exec'd by its own master (spec.md §6
// "register_project").
package forkserve

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"go.uber.org/zap"

	"forkserve/internal/config"
	"forkserve/internal/logging"
	"forkserve/internal/process"
	"forkserve/internal/worker"
)

// MasterInitFunc runs once in the master before any worker is spawned. A
// non-nil error is fatal and aborts the whole system.
type MasterInitFunc func() error

// WorkerInitFunc runs once in each freshly forked worker before it starts
// accepting connections. A non-nil error is fatal to that worker only —
// the master's supervisor loop will respawn it.
type WorkerInitFunc func() error

// Handler processes one accepted connection.
type Handler = worker.Handler

// EchoHandler is the built-in default handler used when none is
// registered.
var EchoHandler = worker.EchoHandler

// Server is a registered project ready to run as either the master or a
// worker, depending on how the current process was started.
type Server struct {
	cfg        *config.Config
	masterInit MasterInitFunc
	workerInit WorkerInitFunc
	handler    Handler
}

// Option configures a Server at construction time — the idiomatic Go
// replacement for the C original's global function-pointer registration
// (g_master_init_proc, g_worker_init_proc, g_request_handler).
type Option func(*Server)

// WithMasterInit registers the master init hook.
func WithMasterInit(f MasterInitFunc) Option {
	return func(s *Server) { s.masterInit = f }
}

// WithWorkerInit registers the worker init hook.
func WithWorkerInit(f WorkerInitFunc) Option {
	return func(s *Server) { s.workerInit = f }
}

// WithHandler registers the request handler. Unset, it defaults to
// EchoHandler.
func WithHandler(f Handler) Option {
	return func(s *Server) { s.handler = f }
}

// New builds a Server from cfg and any options.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, handler: worker.EchoHandler}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run dispatches to the master or worker lifecycle based on the process's
// role, determined by an environment variable set by the master when it
// re-execs itself (the Go analogue of a forked child observing pid==0).
func (s *Server) Run() error {
	if os.Getenv(process.EnvRole) == process.RoleValue {
		return s.runWorker()
	}
	return s.runMaster()
}

func (s *Server) runMaster() error {
	logger, err := logging.New(logging.RoleMaster, s.cfg.LogPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	master, err := process.NewMaster(s.cfg, logger, s.masterInit)
	if err != nil {
		return fmt.Errorf("init master: %w", err)
	}

	if err := master.Start(); err != nil {
		return fmt.Errorf("start master: %w", err)
	}

	master.Run() // blocks forever; exits the process itself
	return nil
}

func (s *Server) runWorker() error {
	logger, err := logging.New(logging.RoleWorker, s.cfg.LogPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	slot, err := strconv.Atoi(os.Getenv(process.EnvSlot))
	if err != nil {
		return fmt.Errorf("parse worker slot: %w", err)
	}
	cpu, err := strconv.Atoi(os.Getenv(process.EnvCPU))
	if err != nil {
		return fmt.Errorf("parse worker cpu: %w", err)
	}
	totalWorkers, err := strconv.Atoi(os.Getenv(process.EnvWorkers))
	if err != nil {
		return fmt.Errorf("parse worker count: %w", err)
	}

	logger = logger.With(zap.Int("slot", slot), zap.Int("pid", os.Getpid()))

	if err := process.BindCPU(cpu); err != nil {
		logger.Error("failed to bind cpu", zap.Error(err))
		os.Exit(1)
	}

	if s.workerInit != nil {
		if err := s.workerInit(); err != nil {
			logger.Error("worker init failed", zap.Error(err))
			os.Exit(1)
		}
	}

	listenerFile := os.NewFile(uintptr(process.ListenerFD), "forkserve-listener")
	lockFile := os.NewFile(uintptr(process.AcceptLockFD), "forkserve-accept-lock")

	rt, err := worker.New(worker.Config{
		MaxConnections: int64(s.cfg.MaxConnections),
		TotalWorkers:   totalWorkers,
		CPU:            cpu,
	}, listenerFile, lockFile, s.handler, logger)
	if err != nil {
		logger.Error("failed to build worker runtime", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("worker success running")
	rt.Run()
	return nil
}

// Dial is a small convenience for connecting to a running server; it is
// not part of the core contract.
func Dial(ip string, port int) (net.Conn, error) {
	return net.Dial("tcp", fmt.Sprintf("%s:%d", ip, port))
}
