package storage

import (
	"context"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage/integrity"
)

// Config holds the settings shared by every backend.
type Config struct {
	Keyring  *integrity.Keyring
	Scope    string
	PageSize int
}

// Option configures a backend.
type Option func(*Config)

// WithKeyring signs appended events and lets Verify check signatures.
func WithKeyring(keyring *integrity.Keyring) Option {
	return func(c *Config) {
		c.Keyring = keyring
	}
}

// WithScope names the log for signing key derivation.
func WithScope(scope string) Option {
	return func(c *Config) {
		c.Scope = scope
	}
}

// WithPageSize sets how many events Replay reads per page.
func WithPageSize(size int) Option {
	return func(c *Config) {
		c.PageSize = size
	}
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	cfg := Config{Scope: DefaultScope, PageSize: defaultPageSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.Scope = scopeOrDefault(cfg.Scope)
	return cfg
}

// Seal links evt after prev using the configured keyring and scope.
func (c Config) Seal(evt, prev event.Event) (event.Event, error) {
	return Seal(evt, prev, c.Keyring, c.Scope)
}

// Replay pages through lister with the configured page size.
func (c Config) Replay(ctx context.Context, lister Lister, apply func(event.Event) error) error {
	_, err := Replay(ctx, lister, apply, Options{PageSize: c.PageSize})
	return err
}
