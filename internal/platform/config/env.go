// Package config loads process configuration from the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the common prefix for memimg environment variables.
const EnvPrefix = "MEMIMG_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvWithPrefix loads configuration from environment variables whose
// names are the struct tags prefixed with prefix.
func ParseEnvWithPrefix(target any, prefix string) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// HexBytes is a byte slice configured as a hex string, used for key material.
type HexBytes []byte

// UnmarshalText decodes a hex string, ignoring surrounding whitespace.
func (h *HexBytes) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		*h = nil
		return nil
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	*h = decoded
	return nil
}

// String redacts the key material.
func (h HexBytes) String() string {
	if len(h) == 0 {
		return ""
	}
	return fmt.Sprintf("<%d bytes>", len(h))
}
