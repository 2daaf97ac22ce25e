package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wrale/device-auth/pkg/deviceauth"
)

// Version is set by the build process
var Version = "dev"

// Exit codes
const (
	exitOK         = 0
	exitError      = 1
	exitAuthFailed = 3
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode separates failures reported by the instance from everything else
func exitCode(err error) int {
	var opErr *deviceauth.OperationError
	if errors.As(err, &opErr) {
		return exitAuthFailed
	}
	return exitError
}
