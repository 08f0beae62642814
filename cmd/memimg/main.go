package main

import (
	"context"
	"flag"
	"os"

	memimgcmd "github.com/louisbranch/memimg/internal/cmd/memimg"
	entrypoint "github.com/louisbranch/memimg/internal/platform/cmd"
	"github.com/louisbranch/memimg/internal/platform/config"
)

func main() {
	cfg, err := memimgcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitWith(config.ExitUsage, "parse flags: %v", err)
	}
	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := memimgcmd.Run(ctx, cfg); err != nil {
		stop()
		config.Exitf("failed to serve: %v", err)
	}
}
