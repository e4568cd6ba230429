package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/just-nibble/gh-stats/internal/cli"
	"github.com/just-nibble/gh-stats/pkg/errcodes"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.RootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, errcodes.ErrContextCancelled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
