package main

import (
	"context"
	"errors"
	"flag"
	"os"

	verifycmd "github.com/louisbranch/memimg/internal/cmd/verify"
	entrypoint "github.com/louisbranch/memimg/internal/platform/cmd"
	"github.com/louisbranch/memimg/internal/platform/config"
)

func main() {
	cfg, err := verifycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitWith(config.ExitUsage, "parse flags: %v", err)
	}
	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := verifycmd.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		if errors.Is(err, verifycmd.ErrTampered) {
			config.ExitWith(config.ExitTampered, "verify: %v", err)
		}
		config.Exitf("verify: %v", err)
	}
}
