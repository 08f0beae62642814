package main

import (
	"flag"
	"os"

	"github.com/louisbranch/memimg/internal/platform/config"
	"github.com/louisbranch/memimg/internal/tools/hmackey"
)

func main() {
	cfg, err := hmackey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitWith(config.ExitUsage, "parse flags: %v", err)
	}
	if err := hmackey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate key: %v", err)
	}
}
