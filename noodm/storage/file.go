package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arthur-debert/noodm/types"
	"go.uber.org/zap"
)

// Lock acquisition constants
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// fileCodec converts snapshots to and from the bytes of one file format
type fileCodec interface {
	encode(snap *Snapshot, now time.Time) ([]byte, error)
	decode(data []byte) (*Snapshot, error)
}

// fileAdapter writes whole snapshots to a single file. Writes go to a ticketed
// temp file that is renamed into place while holding the advisory file lock.
type fileAdapter struct {
	path        string
	fs          FileSystem
	lockFactory FileLockFactory
	timeFunc    func() time.Time
	idGen       IDGenerator
	logger      *zap.Logger
	seq         Sequencer
	codec       fileCodec
}

func newFileAdapter(path string, codec fileCodec, opts []Option) *fileAdapter {
	a := &fileAdapter{
		path:        path,
		fs:          &OSFileSystem{},
		lockFactory: &FlockFactory{},
		timeFunc:    time.Now,
		idGen:       SlugID,
		logger:      zap.NewNop(),
		codec:       codec,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the snapshot file path
func (a *fileAdapter) Path() string {
	return a.path
}

// GenerateID implements Adapter.GenerateID
func (a *fileAdapter) GenerateID(doc types.Document) (string, error) {
	return a.idGen(doc)
}

// Serialize implements Adapter.Serialize
func (a *fileAdapter) Serialize(ctx context.Context, snap *Snapshot) error {
	ticket := a.seq.Reserve()

	data, err := a.codec.encode(snap, a.timeFunc())
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	skipped, err := a.seq.Write(ticket, func() error {
		return a.writeFile(ctx, ticket, data)
	})
	if err != nil {
		return err
	}
	if skipped {
		a.logger.Debug("snapshot write skipped",
			zap.String("path", a.path),
			zap.Uint64("ticket", ticket),
			zap.Uint64("latest", a.seq.Latest()))
		return nil
	}
	a.logger.Debug("snapshot written",
		zap.String("path", a.path),
		zap.Uint64("ticket", ticket),
		zap.Int("bytes", len(data)))
	return nil
}

// Deserialize implements Adapter.Deserialize
func (a *fileAdapter) Deserialize(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	lock := a.lockFactory.New(a.lockPath())
	if err := acquireLock(ctx, lock); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := a.fs.Stat(a.path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := a.fs.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	snap, err := a.codec.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", a.path, err)
	}
	return snap, nil
}

func (a *fileAdapter) lockPath() string {
	return a.path + ".lock"
}

// writeFile writes data atomically (temp file, then rename under the file lock)
func (a *fileAdapter) writeFile(ctx context.Context, ticket uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpFile := fmt.Sprintf("%s.%d.tmp", a.path, ticket)
	if err := a.fs.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	lock := a.lockFactory.New(a.lockPath())
	if err := acquireLock(lockCtx, lock); err != nil {
		_ = a.fs.Remove(tmpFile)
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := a.fs.Rename(tmpFile, a.path); err != nil {
		_ = a.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// acquireLock attempts to acquire the file lock with retries
func acquireLock(ctx context.Context, lock FileLock) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}
