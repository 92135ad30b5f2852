package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// LockFileName is the lock file that guards a base path against a second
// driver process.
const LockFileName = ".taskloop.lock"

// ErrLocked is returned by AcquireLock when another process holds the lock.
var ErrLocked = errors.New("another taskloop driver holds the lock")

// Lock is an exclusive advisory lock on a base path.
type Lock struct {
	f *os.File
}

// AcquireLock takes a non-blocking exclusive flock on basePath's lock file.
// It returns ErrLocked if the lock is already held.
func AcquireLock(basePath string) (*Lock, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	path := filepath.Join(basePath, LockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("locking %s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}

	// The pid is informational only.
	if err := f.Truncate(0); err == nil {
		_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	defer func() { l.f = nil }()
	defer l.f.Close()
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
