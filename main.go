// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/reporting-cli/cmd"
)

// osExit is replaced in tests.
var osExit = os.Exit

// main is the entry point for the reporting CLI.
func main() {
	// SIGINT and SIGTERM cancel the capture; the browser is still torn down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		osExit(1)
	}
}
