package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrLockWouldBlock indicates the lock is held by another process.
var ErrLockWouldBlock = errors.New("lock is held by another process")

// FileLock provides exclusive file locking using flock(2). It enforces
// the single-writer rule: one watcher per output file, across processes.
// The lock is released automatically when the process exits or crashes.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a file lock at the given path. The lock file and
// its parent directories are created on first acquisition.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock attempts to acquire the exclusive lock without blocking.
// Returns ErrLockWouldBlock when another process holds it.
func (l *FileLock) TryLock() error {
	if err := l.ensureFileExists(); err != nil {
		return err
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = l.file.Close()
		l.file = nil
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLockWouldBlock
		}
		return fmt.Errorf("flock failed: %w", err)
	}
	return nil
}

// Unlock releases the lock. Calling Unlock on an unlocked FileLock is a
// no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// IsLocked returns true if the lock is currently held by this instance.
func (l *FileLock) IsLocked() bool {
	return l.file != nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

func (l *FileLock) ensureFileExists() error {
	if l.file != nil {
		return nil // Already open
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = file
	return nil
}
