package storage

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is an advisory, cross-process lock on a path
type FileLock interface {
	// TryLockContext tries to acquire the lock, retrying every retryInterval
	// until ctx is done
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases the lock
	Unlock() error
}

// FileLockFactory creates FileLock instances
type FileLockFactory interface {
	// New creates a FileLock for the lock file at path
	New(path string) FileLock
}

// FlockFactory creates locks backed by github.com/gofrs/flock
type FlockFactory struct{}

// New implements FileLockFactory.New. *flock.Flock already satisfies FileLock.
func (f *FlockFactory) New(path string) FileLock {
	return flock.New(path)
}
