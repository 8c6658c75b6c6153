package storage

import (
	"sync"
)

// OperationType selects the lock mode of an operation
type OperationType int

const (
	ReadOperation OperationType = iota // shared
	WriteOperation                     // exclusive
)

// LockManager guards one piece of in-memory state: a collection's table and
// indexes, or the snapshot's collection registry.
type LockManager struct {
	mu sync.RWMutex
}

func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn under the lock selected by opType and releases it when fn
// returns or panics.
//
//	err := cd.Lock().Execute(storage.ReadOperation, func() error {
//		doc, ok = cd.Documents.Get(id)
//		return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	if opType == WriteOperation {
		lm.mu.Lock()
		defer lm.mu.Unlock()
	} else {
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	}
	return fn()
}

// ExecuteWithResult is Execute for functions that produce a value
func ExecuteWithResult[T any](lm *LockManager, opType OperationType, fn func() (T, error)) (T, error) {
	var result T
	err := lm.Execute(opType, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
