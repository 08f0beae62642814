package config

import (
	"fmt"
	"io"
	"os"
)

// Process exit codes used by the memimg commands.
const (
	ExitFailure  = 1
	ExitUsage    = 2
	ExitTampered = 3
)

var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	ExitWith(ExitFailure, format, args...)
}

// ExitWith writes a formatted error message to stderr and exits with code.
func ExitWith(code int, format string, args ...any) {
	fmt.Fprintf(stderr, format+"\n", args...)
	exit(code)
}
