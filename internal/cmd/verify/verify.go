// Package verify checks an event log's hash chain and signatures, then
// replays it into a fresh bank and reports the balances.
package verify

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/louisbranch/memimg/internal/bank"
	"github.com/louisbranch/memimg/internal/memimg"
	"github.com/louisbranch/memimg/internal/memimg/storage"
	"github.com/louisbranch/memimg/internal/memimg/storage/backend"
	"github.com/louisbranch/memimg/internal/memimg/storage/integrity"
	entrypoint "github.com/louisbranch/memimg/internal/platform/cmd"
	"github.com/louisbranch/memimg/internal/platform/config"
	"github.com/louisbranch/memimg/internal/platform/i18n/catalog"
	"github.com/louisbranch/memimg/internal/platform/logging"
)

// ErrTampered is returned when the log fails verification.
var ErrTampered = storage.ErrTampered

// Config holds verify command configuration.
type Config struct {
	Storage   string          `env:"MEMIMG_STORAGE" envDefault:"sqlite"`
	DataDir   string          `env:"MEMIMG_DATA_DIR" envDefault:"data"`
	Path      string          `env:"MEMIMG_STORAGE_PATH"`
	Scope     string          `env:"MEMIMG_SCOPE" envDefault:"memimg"`
	HMACKey   config.HexBytes `env:"MEMIMG_HMAC_KEY"`
	HMACKeyID string          `env:"MEMIMG_HMAC_KEY_ID" envDefault:"k1"`
	Language  string          `env:"MEMIMG_LANGUAGE" envDefault:"en"`
	LogLevel  string          `env:"MEMIMG_LOG_LEVEL" envDefault:"warn"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	return entrypoint.Load(fs, args, bindFlags)
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Event log backend: "+strings.Join(backend.Names()[1:], ", "))
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the event log")
	fs.StringVar(&cfg.Path, "path", cfg.Path, "Event log path (overrides -data-dir)")
	fs.StringVar(&cfg.Language, "lang", cfg.Language, "Language used to format amounts")
}

// Report summarizes a verified log.
type Report struct {
	Events   int
	LastSeq  uint64
	Accounts []bank.AccountView
	Total    bank.Amount
}

// Verify checks the log and rebuilds the bank from it.
func Verify(ctx context.Context, cfg Config, logger *zap.Logger) (Report, error) {
	name := backend.Normalize(cfg.Storage)
	if name == backend.Memory {
		return Report{}, errors.New("the memory backend keeps no log to verify")
	}
	path := cfg.Path
	if path == "" {
		path = backend.DefaultPath(name, cfg.DataDir)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Report{}, fmt.Errorf("event log %s does not exist", path)
			}
			return Report{}, fmt.Errorf("stat event log: %w", err)
		}
	}
	var keyring *integrity.Keyring
	if len(cfg.HMACKey) > 0 {
		var err error
		keyring, err = integrity.NewKeyring(map[string][]byte{cfg.HMACKeyID: cfg.HMACKey}, cfg.HMACKeyID)
		if err != nil {
			return Report{}, fmt.Errorf("configure event signing: %w", err)
		}
	}

	log, err := backend.Open(ctx, name, path, storage.WithKeyring(keyring), storage.WithScope(cfg.Scope))
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = log.Close() }()

	result, err := storage.Verify(ctx, log, keyring, cfg.Scope)
	if err != nil {
		return Report{}, err
	}

	registry, err := bank.NewRegistry()
	if err != nil {
		return Report{}, err
	}
	img, err := memimg.New(ctx, bank.New(), log, registry, memimg.WithLogger(logger))
	if err != nil {
		return Report{}, err
	}
	accounts, err := memimg.Ask[[]bank.AccountView](ctx, img, &bank.ListAccounts{})
	if err != nil {
		return Report{}, err
	}
	total, err := memimg.Ask[bank.Amount](ctx, img, &bank.TotalBalance{})
	if err != nil {
		return Report{}, err
	}
	return Report{
		Events:   result.Applied,
		LastSeq:  result.LastSeq,
		Accounts: accounts,
		Total:    total,
	}, nil
}

// Write prints the report as an aligned table with amounts formatted for
// tag.
func (r Report) Write(w io.Writer, tag language.Tag) error {
	printer := catalog.Printer(tag)
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	if _, err := printer.Fprintf(table, "verify.summary", r.Events, r.LastSeq); err != nil {
		return err
	}
	for _, account := range r.Accounts {
		if _, err := printer.Fprintf(table, "verify.account", account.ID, account.Name, int64(account.Balance)); err != nil {
			return err
		}
	}
	if _, err := printer.Fprintf(table, "verify.total", int64(r.Total)); err != nil {
		return err
	}
	return table.Flush()
}

// Run verifies the configured log and writes the report to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tag, err := language.Parse(cfg.Language)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", cfg.Language, err)
	}
	return entrypoint.Traced(ctx, entrypoint.ServiceVerify, logger, func(ctx context.Context) error {
		report, err := Verify(ctx, cfg, logger)
		if err != nil {
			return err
		}
		return report.Write(out, tag)
	})
}
