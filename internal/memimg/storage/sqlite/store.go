// Package sqlite provides a SQLite-backed event log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage"
	"github.com/louisbranch/memimg/internal/memimg/storage/sqlite/migrations"
	"github.com/louisbranch/memimg/internal/platform/storage/sqlitemigrate"
)

// Store is an event log persisted in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
	cfg   storage.Config
}

// Open opens (creating if needed) the event log at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string, opts ...storage.Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.EventsFS, "events"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, cfg: storage.NewConfig(opts...)}, nil
}

// Close closes the underlying SQLite database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append seals evt after the last stored event and commits it.
func (s *Store) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, storage.ErrClosed
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := lastEvent(ctx, tx)
	if err != nil {
		return event.Event{}, fmt.Errorf("load previous event: %w", err)
	}
	sealed, err := s.cfg.Seal(evt, prev)
	if err != nil {
		return event.Event{}, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO events (
    seq, id, type, timestamp, payload_json, event_hash, prev_hash, chain_hash, signature_key_id, event_signature
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(sealed.Seq),
		sealed.ID,
		string(sealed.Type),
		sealed.Timestamp.UnixMilli(),
		sealed.PayloadJSON,
		sealed.Hash,
		sealed.PrevHash,
		sealed.ChainHash,
		sealed.SignatureKeyID,
		sealed.Signature,
	); err != nil {
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return sealed, nil
}

// ListEvents returns up to limit events with Seq greater than afterSeq.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, storage.ErrClosed
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectEvents+` WHERE seq > ? ORDER BY seq LIMIT ?`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// Replay calls apply for every stored event in order.
func (s *Store) Replay(ctx context.Context, apply func(event.Event) error) error {
	return s.cfg.Replay(ctx, s, apply)
}

const selectEvents = `SELECT seq, id, type, timestamp, payload_json, event_hash, prev_hash, chain_hash, signature_key_id, event_signature FROM events`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		eventType string
		millis    int64
	)
	if err := row.Scan(
		&seq,
		&evt.ID,
		&eventType,
		&millis,
		&evt.PayloadJSON,
		&evt.Hash,
		&evt.PrevHash,
		&evt.ChainHash,
		&evt.SignatureKeyID,
		&evt.Signature,
	); err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.Timestamp = time.UnixMilli(millis).UTC()
	return evt, nil
}

func lastEvent(ctx context.Context, tx *sql.Tx) (event.Event, error) {
	row := tx.QueryRowContext(ctx, selectEvents+` ORDER BY seq DESC LIMIT 1`)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, nil
	}
	return evt, err
}

var _ storage.Log = (*Store)(nil)
