package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikepea/smartmark/pkg/smartmark/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
