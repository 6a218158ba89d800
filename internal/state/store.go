package state

import (
	"context"
	"sync"

	"github.com/thatsimonsguy/spa-controller/internal/model"
)

// Store holds the most recent device files. One poller writes, any number of
// readers block until a panel buffer captured at the current epoch exists.
//
// The epoch moves forward every time a command sequence changes the spa. A
// poll carries the epoch it started at, so a reply that was already in flight
// during the presses can refresh the buffers but cannot make them readable.
type Store struct {
	mu         sync.RWMutex
	epoch      uint64
	panelEpoch uint64
	buffers    model.Buffers
	readable   bool
	ready      chan struct{}
}

func NewStore() *Store {
	return &Store{ready: make(chan struct{})}
}

// Epoch is sampled by the poller before it sends its request.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Write installs a poll result. Files missing from update keep their previous
// contents. It reports whether the store is readable afterwards.
func (s *Store) Write(epoch uint64, update model.Buffers) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffers = s.buffers.Merge(update)
	if update.Panel != nil && epoch > s.panelEpoch {
		s.panelEpoch = epoch
	}

	if !s.readable && s.buffers.Panel != nil && s.panelEpoch == s.epoch {
		s.readable = true
		close(s.ready)
	}
	return s.readable
}

// Invalidate marks the buffers stale until a poll started after this call lands.
func (s *Store) Invalidate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if s.readable {
		s.readable = false
		s.ready = make(chan struct{})
	}
	return s.epoch
}

// Read waits for fresh buffers or for ctx to end.
func (s *Store) Read(ctx context.Context) (model.Buffers, error) {
	for {
		s.mu.RLock()
		if s.readable {
			b := s.buffers
			s.mu.RUnlock()
			return b, nil
		}
		ready := s.ready
		s.mu.RUnlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return model.Buffers{}, ctx.Err()
		}
	}
}

// Peek returns whatever is installed without waiting. ok is false until the
// first panel buffer arrives; stale buffers are still returned.
func (s *Store) Peek() (model.Buffers, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffers, s.buffers.Panel != nil
}
