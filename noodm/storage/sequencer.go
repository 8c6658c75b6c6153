package storage

import (
	"sync"
	"sync/atomic"
)

// Sequencer orders snapshot writes. Every save reserves a ticket before it
// encodes the snapshot; physical writes run one at a time and a write whose
// ticket is older than the newest reservation is skipped, since a snapshot
// at least as recent is already on its way.
type Sequencer struct {
	reserved atomic.Uint64

	mu      sync.Mutex
	written uint64
}

// Reserve takes the next ticket
func (s *Sequencer) Reserve() uint64 {
	return s.reserved.Add(1)
}

// Latest returns the newest reserved ticket
func (s *Sequencer) Latest() uint64 {
	return s.reserved.Load()
}

// Write runs fn for ticket unless a newer ticket exists or has been written.
// skipped reports that fn did not run.
func (s *Sequencer) Write(ticket uint64, fn func() error) (skipped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket <= s.written || ticket < s.reserved.Load() {
		return true, nil
	}
	if err := fn(); err != nil {
		return false, err
	}
	s.written = ticket
	return false, nil
}
