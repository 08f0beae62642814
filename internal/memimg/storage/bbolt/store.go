// Package bbolt provides an event log stored in a BoltDB file, one bucket
// keyed by big-endian sequence number.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage"
)

const eventsBucket = "events"

// Store provides a BoltDB-backed event log.
type Store struct {
	db  *bbolt.DB
	cfg storage.Config
}

// Open opens a BoltDB-backed event log at the provided path.
func Open(path string, opts ...storage.Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db, cfg: storage.NewConfig(opts...)}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append seals evt after the last stored event and commits it. bbolt
// fsyncs on commit.
func (s *Store) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.db == nil {
		return event.Event{}, storage.ErrClosed
	}

	var sealed event.Event
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		if bucket == nil {
			return fmt.Errorf("events bucket is missing")
		}
		var prev event.Event
		if _, payload := bucket.Cursor().Last(); payload != nil {
			if err := json.Unmarshal(payload, &prev); err != nil {
				return fmt.Errorf("unmarshal previous event: %w", err)
			}
		}
		var err error
		sealed, err = s.cfg.Seal(evt, prev)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return bucket.Put(seqKey(sealed.Seq), payload)
	})
	if err != nil {
		return event.Event{}, err
	}
	return sealed, nil
}

// ListEvents returns up to limit events with Seq greater than afterSeq.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, storage.ErrClosed
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	var events []event.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventsBucket))
		if bucket == nil {
			return fmt.Errorf("events bucket is missing")
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Seek(seqKey(afterSeq + 1)); key != nil && len(events) < limit; key, payload = cursor.Next() {
			var evt event.Event
			if err := json.Unmarshal(payload, &evt); err != nil {
				return fmt.Errorf("unmarshal event %d: %w", binary.BigEndian.Uint64(key), err)
			}
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Replay calls apply for every stored event in order.
func (s *Store) Replay(ctx context.Context, apply func(event.Event) error) error {
	return s.cfg.Replay(ctx, s, apply)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(eventsBucket)); err != nil {
			return fmt.Errorf("create events bucket: %w", err)
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

var _ storage.Log = (*Store)(nil)
