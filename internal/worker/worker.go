// Package worker implements the per-worker cooperative scheduling of
// connection-handling tasks: the Worker Acceptor Loop, Connection
// Coroutine, and Worker Lifecycle Driver of spec.md §4.3–§4.5.
//
// "Coroutine" here is a goroutine; the cooperative scheduler's capacity
// (spec.md §4.5 step 2) is modeled by a golang.org/x/sync/semaphore.Weighted
// sized to max_connections — TryAcquire failing is exactly "the scheduler
// has no free coroutine slot" from §4.3 step 4.
package worker

import (
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"forkserve/internal/shm"
)

// Handler processes one accepted connection. It is invoked once per
// connection; the coroutine epilogue closes conn regardless of the
// handler's outcome.
type Handler func(conn net.Conn) error

// EchoHandler is the built-in default request handler (spec.md §6
// "the handler defaults to a built-in echo/no-op if unset"): it copies
// whatever the client sends straight back until EOF or error.
func EchoHandler(conn net.Conn) error {
	_, err := io.Copy(conn, conn)
	return err
}

const acceptYield = 200 * time.Millisecond

// Config carries the per-worker inputs the C original read off its process
// globals — here threaded explicitly instead of held in global mutable
// state.
type Config struct {
	MaxConnections int64
	TotalWorkers   int // configured worker process count; >1 enables lock contention
	CPU            int
}

// Runtime is one worker's cooperative scheduler state. Nothing here is
// shared with any other process — only the accept lock's backing memory
// is, and that is wrapped behind shm.AcceptLock's own synchronization.
type Runtime struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger

	listener   net.Listener // used only in the single-worker path
	rawFD      int          // used for the raw, non-suspending accept in the multi-worker path
	acceptLock *shm.AcceptLock

	sem *semaphore.Weighted

	activeConnections atomic.Int64
	stopRequested     atomic.Bool
	exitRequested     atomic.Bool

	doneCh      chan struct{}
	doneOnce    sync.Once
	forceExitCh chan struct{}
	forceOnce   sync.Once
}

// New builds a worker runtime around an inherited listener file descriptor
// and an inherited accept-lock file descriptor.
func New(cfg Config, listenerFile, lockFile *os.File, handler Handler, logger *zap.Logger) (*Runtime, error) {
	if handler == nil {
		handler = EchoHandler
	}

	lock, err := shm.Open(lockFile)
	if err != nil {
		return nil, err
	}

	listener, err := net.FileListener(listenerFile)
	if err != nil {
		lock.Close()
		return nil, err
	}

	r := &Runtime{
		cfg:         cfg,
		handler:     handler,
		logger:      logger,
		listener:    listener,
		rawFD:       int(listenerFile.Fd()),
		acceptLock:  lock,
		sem:         semaphore.NewWeighted(cfg.MaxConnections),
		doneCh:      make(chan struct{}),
		forceExitCh: make(chan struct{}),
	}
	// The synthetic "+1" hold for the acceptor coroutine itself
	// (spec.md §3 WorkerRuntimeState.active_connections).
	r.activeConnections.Store(1)
	return r, nil
}

// Run installs signal watchers, dispatches the acceptor coroutine, and
// blocks until the worker should exit — gracefully (all connections
// drained) or immediately (no draining). It never returns on the
// immediate-exit path; it calls os.Exit(0) directly, matching the C
// original's exit() call from within the accept cycle.
func (r *Runtime) Run() {
	r.installSignalWatchers()
	go r.acceptorLoop()

	select {
	case <-r.forceExitCh:
		os.Exit(0)
	case <-r.doneCh:
		return
	}
}

func (r *Runtime) installSignalWatchers() {
	stopCh := make(chan os.Signal, 1)
	watchSignal(stopCh, GracefulStopSignal)
	go func() {
		for range stopCh {
			r.stopRequested.Store(true)
		}
	}()

	exitCh := make(chan os.Signal, 1)
	watchSignal(exitCh, ImmediateExitSignal)
	go func() {
		for range exitCh {
			r.exitRequested.Store(true)
			r.forceOnce.Do(func() { close(r.forceExitCh) })
		}
	}()
}

// acceptorLoop is the distinguished coroutine of spec.md §4.3.
func (r *Runtime) acceptorLoop() {
	for {
		if r.stopRequested.Load() {
			r.logger.Info("worker shutting down, draining connections")
			r.finishOne() // cancels the synthetic hold
			return
		}

		if r.exitRequested.Load() {
			return // forceExitCh already closed by the signal watcher
		}

		conn, accepted := r.tryAccept()
		if !accepted {
			time.Sleep(acceptYield)
			continue
		}

		if !r.sem.TryAcquire(1) {
			r.logger.Warn("system busy, shedding connection")
			conn.Close()
			continue
		}

		r.activeConnections.Add(1)
		go r.handleConnection(conn)
	}
}

// tryAccept implements spec.md §4.3 step 3's three-way branch.
func (r *Runtime) tryAccept() (net.Conn, bool) {
	if r.cfg.TotalWorkers > 1 {
		return r.tryAcceptMultiWorker()
	}
	return r.acceptSingleWorker()
}

// tryAcceptMultiWorker budget-checks then contends for the accept lock.
// The lock is attempted strictly after the budget check (spec.md §4.3 "Tie
// breaks") so a saturated worker never blocks its peers. The critical
// section is a single raw accept4(2) call — never net.Listener.Accept,
// which can park the calling goroutine on the runtime's netpoller and
// would turn the lock's critical section into a suspension point,
// violating spec.md §5's "not a suspension point" invariant.
func (r *Runtime) tryAcceptMultiWorker() (net.Conn, bool) {
	if r.activeConnections.Load() >= r.cfg.MaxConnections {
		return nil, false
	}
	if !r.acceptLock.TryAcquire() {
		return nil, false
	}
	fd, _, err := unix.Accept4(r.rawFD, unix.SOCK_NONBLOCK)
	r.acceptLock.Release()
	if err != nil {
		return nil, false
	}

	f := os.NewFile(uintptr(fd), "forkserve-conn")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, false
	}
	return conn, true
}

// deadlineListener is satisfied by *net.TCPListener; matched via an
// interface so acceptSingleWorker stays independent of the concrete type.
type deadlineListener interface {
	SetDeadline(time.Time) error
}

// acceptSingleWorker calls accept() unconditionally; with only one worker
// there is no contention to serialize. Using net.Listener.Accept here
// resolves spec.md §9's open question about busy-looping on EAGAIN: Go's
// runtime netpoller already parks the calling goroutine until the listener
// is readable instead of spinning. A rolling deadline bounds how long each
// call can park so the loop still re-checks stop_requested/exit_requested
// at roughly the same cadence as the multi-worker path's 200 ms yield,
// rather than blocking indefinitely past a shutdown signal.
func (r *Runtime) acceptSingleWorker() (net.Conn, bool) {
	if dl, ok := r.listener.(deadlineListener); ok {
		dl.SetDeadline(time.Now().Add(acceptYield))
	}
	conn, err := r.listener.Accept()
	if err != nil {
		return nil, false
	}
	return conn, true
}

// handleConnection is the Connection Coroutine of spec.md §4.4.
func (r *Runtime) handleConnection(conn net.Conn) {
	id := uuid.NewString()
	logger := r.logger.With(zap.String("connection_id", id))

	defer r.sem.Release(1)
	defer conn.Close()
	defer r.finishOne()

	if err := r.handler(conn); err != nil {
		logger.Warn("handler returned error", zap.Error(err))
	}
}

// finishOne decrements active_connections and, if it reaches zero while the
// worker is shutting down, signals Run to return so the process can exit.
// In normal operation the counter never reaches zero because of the
// synthetic acceptor hold.
func (r *Runtime) finishOne() {
	remaining := r.activeConnections.Add(-1)
	if remaining == 0 && r.stopRequested.Load() {
		r.doneOnce.Do(func() { close(r.doneCh) })
	}
}

// ActiveConnections exposes the current in-flight count, for tests and
// status reporting.
func (r *Runtime) ActiveConnections() int64 {
	return r.activeConnections.Load()
}
