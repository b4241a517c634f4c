// Package shm implements the cross-process accept lock: a spinlock backed
// by a memfd-backed MAP_SHARED region. The master creates the region and
// passes the backing file descriptor to each worker via ExtraFiles, the
// same way the listening socket is inherited — this is the Go-native
// substitute for the C original's anonymous shared-memory segment
// inherited across fork(), since os/exec always re-execs a fresh address
// space and cannot inherit anonymous mmap regions directly.
package shm

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const regionSize = 4096

// AcceptLock is a non-blocking, process-shared mutual-exclusion primitive.
// try_acquire never sleeps internally: contention is reported immediately
// so the caller can yield to its own scheduler instead of blocking.
type AcceptLock struct {
	region []byte
}

// flag returns a pointer to the first 4 bytes of the mapped region,
// reinterpreted as an int32 for use with sync/atomic. The region is page
// aligned by mmap, so this pointer is always suitably aligned.
func (l *AcceptLock) flag() *int32 {
	return (*int32)(unsafe.Pointer(&l.region[0]))
}

// TryAcquire attempts a single compare-and-swap. It returns true iff this
// call obtained ownership; it never retries and never sleeps.
func (l *AcceptLock) TryAcquire() bool {
	return atomic.CompareAndSwapInt32(l.flag(), 0, 1)
}

// Release drops ownership. The caller must hold the lock.
func (l *AcceptLock) Release() {
	atomic.StoreInt32(l.flag(), 0)
}

// Close unmaps the region. It does not close the backing file descriptor —
// callers own that separately (it may still be needed elsewhere, e.g. to
// pass to further respawned workers).
func (l *AcceptLock) Close() error {
	if err := unix.Munmap(l.region); err != nil {
		return fmt.Errorf("munmap accept lock: %w", err)
	}
	return nil
}

// Create allocates a new shared memory-backed lock, returning both the
// lock (mapped into this process) and the backing *os.File the master
// should place in a child's ExtraFiles so the child can map the same pages.
func Create() (*AcceptLock, *os.File, error) {
	fd, err := unix.MemfdCreate("forkserve-accept-lock", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("memfd_create accept lock: %w", err)
	}
	f := os.NewFile(uintptr(fd), "forkserve-accept-lock")

	if err := unix.Ftruncate(fd, regionSize); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("ftruncate accept lock: %w", err)
	}

	region, err := unix.Mmap(fd, 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap accept lock: %w", err)
	}

	return &AcceptLock{region: region}, f, nil
}

// Open maps an inherited accept-lock file descriptor (passed down through
// ExtraFiles) into this worker's address space. It shares the same
// physical pages as the master's region, giving true cross-process
// mutual exclusion.
func Open(f *os.File) (*AcceptLock, error) {
	region, err := unix.Mmap(int(f.Fd()), 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap inherited accept lock: %w", err)
	}
	return &AcceptLock{region: region}, nil
}
