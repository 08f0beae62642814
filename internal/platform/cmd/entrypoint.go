// Package cmd wires the pieces every memimg binary starts with: MEMIMG_*
// environment defaults overridden by flags, a tracer provider around the
// command's work, and a context tied to termination signals.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/memimg/internal/platform/config"
	"github.com/louisbranch/memimg/internal/platform/otel"
)

// Trace service names. The server and the offline verifier report under
// separate names so their spans are not mixed.
const (
	ServiceMemimg = "memimg"
	ServiceVerify = "memimg-verify"
)

const tracerFlushTimeout = 5 * time.Second

// Load fills a T from the environment, lets bind register flags whose
// defaults are those values, then parses args. Flags win over env.
func Load[T any](fs *flag.FlagSet, args []string, bind func(*flag.FlagSet, *T)) (T, error) {
	var cfg T
	if fs == nil {
		return cfg, errors.New("flag set is required")
	}
	if err := config.ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if bind != nil {
		bind(fs, &cfg)
	}
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		var zero T
		return zero, err
	}
	return cfg, nil
}

// Traced runs work with the tracer provider for service installed and
// flushes pending spans afterwards. Flush failures are logged, never
// returned, so they cannot mask work's own result.
func Traced(ctx context.Context, service string, logger *zap.Logger, work func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if work == nil {
		return fmt.Errorf("work function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil && logger != nil {
			logger.Warn("flush traces", zap.String("service", service), zap.Error(err))
		}
	}()
	return work(ctx)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
