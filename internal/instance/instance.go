// Package instance keeps a single pairing agent per user session.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("another pairing agent is already running")

// Lock is an acquired single-instance lock.
type Lock struct {
	lock *flock.Flock
}

// Acquire takes the exclusive lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fileLock := flock.New(path)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s held by another process)", ErrAlreadyRunning, path)
	}
	return &Lock{lock: fileLock}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || !l.lock.Locked() {
		return nil
	}
	return l.lock.Unlock()
}
