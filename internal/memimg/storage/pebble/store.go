// Package pebble provides an event log on a Pebble LSM store. Events live
// under a single key prefix ordered by big-endian sequence number, and every
// append is committed with a synced write.
package pebble

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage"
)

const eventPrefix = 'E'

// Store is a Pebble-backed event log.
type Store struct {
	db  *pebble.DB
	cfg storage.Config

	// mu is held shared by readers for the life of their iterator and
	// exclusively by Append and Close.
	mu   sync.RWMutex
	last event.Event
}

// Open opens (creating if needed) the Pebble directory at dir.
func Open(dir string, opts ...storage.Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	store := &Store{db: db, cfg: storage.NewConfig(opts...)}
	last, err := store.loadLast()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.last = last
	return store, nil
}

// Close closes the underlying Pebble database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append seals evt after the last stored event and writes it with fsync.
func (s *Store) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil {
		return event.Event{}, storage.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return event.Event{}, storage.ErrClosed
	}

	sealed, err := s.cfg.Seal(evt, s.last)
	if err != nil {
		return event.Event{}, err
	}
	payload, err := json.Marshal(sealed)
	if err != nil {
		return event.Event{}, fmt.Errorf("marshal event: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(eventKey(sealed.Seq), payload, nil); err != nil {
		return event.Event{}, fmt.Errorf("stage event: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return event.Event{}, fmt.Errorf("commit event: %w", err)
	}
	s.last = sealed
	return sealed, nil
}

// ListEvents returns up to limit events with Seq greater than afterSeq.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if s == nil {
		return nil, storage.ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, storage.ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(afterSeq + 1),
		UpperBound: []byte{eventPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	var events []event.Event
	for valid := iter.First(); valid && len(events) < limit; valid = iter.Next() {
		var evt event.Event
		if err := json.Unmarshal(iter.Value(), &evt); err != nil {
			return nil, fmt.Errorf("unmarshal event %d: %w", binary.BigEndian.Uint64(iter.Key()[1:]), err)
		}
		events = append(events, evt)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Replay calls apply for every stored event in order.
func (s *Store) Replay(ctx context.Context, apply func(event.Event) error) error {
	return s.cfg.Replay(ctx, s, apply)
}

// Metrics exposes Pebble's internal metrics.
func (s *Store) Metrics() *pebble.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil
	}
	return s.db.Metrics()
}

func (s *Store) loadLast() (event.Event, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{eventPrefix},
		UpperBound: []byte{eventPrefix + 1},
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	var last event.Event
	if iter.Last() {
		if err := json.Unmarshal(iter.Value(), &last); err != nil {
			return event.Event{}, fmt.Errorf("unmarshal last event: %w", err)
		}
	}
	return last, iter.Error()
}

func eventKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = eventPrefix
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

var _ storage.Log = (*Store)(nil)
