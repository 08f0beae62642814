// Package backend opens an event log by name.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/memimg/internal/memimg/storage"
	boltstore "github.com/louisbranch/memimg/internal/memimg/storage/bbolt"
	"github.com/louisbranch/memimg/internal/memimg/storage/memory"
	pebblestore "github.com/louisbranch/memimg/internal/memimg/storage/pebble"
	"github.com/louisbranch/memimg/internal/memimg/storage/sqlite"
)

// Backend names accepted by Open.
const (
	Memory = "memory"
	SQLite = "sqlite"
	Bolt   = "bbolt"
	Pebble = "pebble"
)

// Names lists the supported backends.
func Names() []string {
	return []string{Memory, SQLite, Bolt, Pebble}
}

// Normalize canonicalizes a backend name as Open and DefaultPath read it.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultPath returns the conventional location of a backend's data under
// dir. Pebble stores a directory, the others a single file.
func DefaultPath(name, dir string) string {
	switch Normalize(name) {
	case SQLite:
		return filepath.Join(dir, "events.db")
	case Bolt:
		return filepath.Join(dir, "events.bolt")
	case Pebble:
		return filepath.Join(dir, "events")
	default:
		return ""
	}
}

// Open opens the named backend at path, creating parent directories as
// needed. The memory backend ignores path.
func Open(ctx context.Context, name, path string, opts ...storage.Option) (storage.Log, error) {
	name = Normalize(name)
	if name == Memory {
		return memory.New(opts...), nil
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s backend requires a path", name)
	}

	switch name {
	case SQLite:
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		store, err := sqlite.Open(ctx, path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite event log: %w", err)
		}
		return store, nil
	case Bolt:
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		store, err := boltstore.Open(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open bbolt event log: %w", err)
		}
		return store, nil
	case Pebble:
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		store, err := pebblestore.Open(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open pebble event log: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return nil
}
