package engine

import (
	"fmt"
	"syscall"
)

// writerLock is an advisory, cross-process exclusive lock serializing
// BeginWrite across every Store open on the same path. It is a sidecar
// file (path + ".lock"), never the data file itself, so a stuck reader
// never blocks on it.
type writerLock struct {
	fd int
}

// tryAcquireWriterLock makes a single non-blocking attempt and fails with
// ErrBusy immediately rather than waiting: BeginWrite is called with the
// store's mu already held, so a blocking acquire here would stall every
// reader behind it too.
func tryAcquireWriterLock(path string) (*writerLock, error) {
	lockPath := path + ".lock"

	fd, err := syscall.Open(lockPath, syscall.O_RDWR|syscall.O_CREAT, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	flockErr := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
	if flockErr != nil {
		_ = syscall.Close(fd)

		return nil, ErrBusy
	}

	return &writerLock{fd: fd}, nil
}

func (l *writerLock) release() {
	if l == nil {
		return
	}

	_ = syscall.Flock(l.fd, syscall.LOCK_UN)
	_ = syscall.Close(l.fd)
}
