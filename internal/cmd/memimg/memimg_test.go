package memimg

import (
	"flag"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("memimg", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" || cfg.HealthAddr != ":8091" {
		t.Fatalf("addrs = %q %q", cfg.HTTPAddr, cfg.HealthAddr)
	}
	if cfg.Storage != "sqlite" || cfg.DataDir != "data" {
		t.Fatalf("storage = %q in %q", cfg.Storage, cfg.DataDir)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Fatalf("lock timeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.MaxConns != 256 {
		t.Fatalf("max conns = %d, want 256", cfg.MaxConns)
	}
}

func TestParseConfigEnvThenFlags(t *testing.T) {
	t.Setenv("MEMIMG_STORAGE", "pebble")
	t.Setenv("MEMIMG_LOG_LEVEL", "debug")

	fs := flag.NewFlagSet("memimg", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-storage", "bbolt", "-lock-timeout", "250ms"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Storage != "bbolt" {
		t.Fatalf("storage = %q, want flag override", cfg.Storage)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q, want env value", cfg.LogLevel)
	}
	if cfg.LockTimeout != 250*time.Millisecond {
		t.Fatalf("lock timeout = %v", cfg.LockTimeout)
	}
}

func TestParseConfigRejectsBadHexKey(t *testing.T) {
	t.Setenv("MEMIMG_HMAC_KEY", "not-hex")
	fs := flag.NewFlagSet("memimg", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected error for invalid hex key")
	}
}

func TestServerConfig(t *testing.T) {
	t.Setenv("MEMIMG_HMAC_KEY", "00112233445566778899aabbccddeeff")
	fs := flag.NewFlagSet("memimg", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-data-dir", "var"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	serverConfig, err := cfg.ServerConfig(nil)
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	if serverConfig.Path != filepath.Join("var", "events.db") {
		t.Fatalf("path = %q", serverConfig.Path)
	}
	if serverConfig.Keyring == nil || serverConfig.Keyring.ActiveKeyID() != "k1" {
		t.Fatal("expected keyring with active key k1")
	}
}

func TestKeyringOptional(t *testing.T) {
	keyring, err := Config{}.Keyring()
	if err != nil || keyring != nil {
		t.Fatalf("keyring = %v, %v; want nil, nil", keyring, err)
	}
}
