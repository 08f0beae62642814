// Package memimg parses server command flags and starts the bank memory
// image.
package memimg

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/memimg/internal/memimg/storage/backend"
	"github.com/louisbranch/memimg/internal/memimg/storage/integrity"
	entrypoint "github.com/louisbranch/memimg/internal/platform/cmd"
	"github.com/louisbranch/memimg/internal/platform/config"
	"github.com/louisbranch/memimg/internal/platform/logging"
	"github.com/louisbranch/memimg/internal/platform/timeouts"
	"github.com/louisbranch/memimg/internal/server"
)

// Config holds server command configuration.
type Config struct {
	HTTPAddr       string          `env:"MEMIMG_HTTP_ADDR" envDefault:":8090"`
	HealthAddr     string          `env:"MEMIMG_HEALTH_ADDR" envDefault:":8091"`
	Storage        string          `env:"MEMIMG_STORAGE" envDefault:"sqlite"`
	DataDir        string          `env:"MEMIMG_DATA_DIR" envDefault:"data"`
	Scope          string          `env:"MEMIMG_SCOPE" envDefault:"memimg"`
	LockTimeout    time.Duration   `env:"MEMIMG_LOCK_TIMEOUT" envDefault:"5s"`
	MaxConns       int             `env:"MEMIMG_MAX_CONNS" envDefault:"256"`
	MaxBodyBytes   int64           `env:"MEMIMG_MAX_BODY_BYTES" envDefault:"1048576"`
	LogLevel       string          `env:"MEMIMG_LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool            `env:"MEMIMG_LOG_DEVELOPMENT"`
	HMACKey        config.HexBytes `env:"MEMIMG_HMAC_KEY"`
	HMACKeyID      string          `env:"MEMIMG_HMAC_KEY_ID" envDefault:"k1"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	return entrypoint.Load(fs, args, bindFlags)
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address (empty disables it)")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Event log backend: "+strings.Join(backend.Names(), ", "))
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the event log")
	fs.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "How long a request waits for the image lock")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent connections per listener (0 is unlimited)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
}

// Keyring returns the signing keyring, or nil when no key is configured.
func (c Config) Keyring() (*integrity.Keyring, error) {
	if len(c.HMACKey) == 0 {
		return nil, nil
	}
	keyring, err := integrity.NewKeyring(map[string][]byte{c.HMACKeyID: c.HMACKey}, c.HMACKeyID)
	if err != nil {
		return nil, fmt.Errorf("configure event signing: %w", err)
	}
	return keyring, nil
}

// ServerConfig translates the command configuration.
func (c Config) ServerConfig(logger *zap.Logger) (server.Config, error) {
	keyring, err := c.Keyring()
	if err != nil {
		return server.Config{}, err
	}
	lockTimeout := c.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = timeouts.LockWait
	}
	return server.Config{
		HTTPAddr:       c.HTTPAddr,
		GRPCAddr:       c.HealthAddr,
		Backend:        c.Storage,
		Path:           backend.DefaultPath(c.Storage, c.DataDir),
		Keyring:        keyring,
		Scope:          c.Scope,
		LockTimeout:    lockTimeout,
		MaxConnections: c.MaxConns,
		MaxBodyBytes:   c.MaxBodyBytes,
		Logger:         logger,
	}, nil
}

// Run starts the memory image server.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	serverConfig, err := cfg.ServerConfig(logger)
	if err != nil {
		return err
	}
	return entrypoint.Traced(ctx, entrypoint.ServiceMemimg, logger, func(ctx context.Context) error {
		return server.Run(ctx, serverConfig)
	})
}
