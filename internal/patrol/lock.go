//go:build unix

package patrol

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// RunLock is an advisory lock that keeps two patrols off the same tree.
type RunLock struct {
	path string
	file *os.File
}

// AcquireRunLock takes the lock at path without blocking. It returns
// ErrRunInProgress when another process holds it.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrRunInProgress
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	// Holder info, for humans only.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))

	return &RunLock{path: path, file: f}, nil
}

// Release frees the lock. Safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
