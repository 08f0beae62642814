// Package memory provides an in-process event log. It keeps nothing across
// restarts and is meant for tests and ephemeral images.
package memory

import (
	"context"
	"sync"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage"
)

// Store is an in-memory event log.
type Store struct {
	cfg storage.Config

	mu     sync.RWMutex
	events []event.Event
	closed bool
}

// New creates an empty log.
func New(opts ...storage.Option) *Store {
	return &Store{cfg: storage.NewConfig(opts...)}
}

// Append seals evt after the last stored event and stores it.
func (s *Store) Append(_ context.Context, evt event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return event.Event{}, storage.ErrClosed
	}
	var prev event.Event
	if n := len(s.events); n > 0 {
		prev = s.events[n-1]
	}
	sealed, err := s.cfg.Seal(evt, prev)
	if err != nil {
		return event.Event{}, err
	}
	s.events = append(s.events, sealed)
	return sealed, nil
}

// ListEvents returns up to limit events with Seq greater than afterSeq.
func (s *Store) ListEvents(_ context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	if afterSeq >= uint64(len(s.events)) {
		return nil, nil
	}
	page := s.events[afterSeq:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	out := make([]event.Event, len(page))
	copy(out, page)
	return out, nil
}

// Replay calls apply for every stored event in order.
func (s *Store) Replay(ctx context.Context, apply func(event.Event) error) error {
	return s.cfg.Replay(ctx, s, apply)
}

// Events returns a copy of every stored event.
func (s *Store) Events() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Close marks the log closed.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ storage.Log = (*Store)(nil)
