// Package hmackey generates event signing keys in the environment format
// the memimg server reads.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const minBytes = 16

// Config holds configuration for key generation.
type Config struct {
	Bytes int
	KeyID string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32, KeyID: "k1"}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes")
	fs.StringVar(&cfg.KeyID, "key-id", cfg.KeyID, "identifier recorded on every signed event")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the key and writes MEMIMG_HMAC_KEY_ID and MEMIMG_HMAC_KEY
// lines to out.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < minBytes {
		return fmt.Errorf("bytes must be at least %d", minBytes)
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return errors.New("key id is required")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	_, err := fmt.Fprintf(out, "MEMIMG_HMAC_KEY_ID=%s\nMEMIMG_HMAC_KEY=%s\n", keyID, hex.EncodeToString(buf))
	return err
}
