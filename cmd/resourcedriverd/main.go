// Package main provides the resourcedriverd server entrypoint: it reads
// a resourcedriver.yaml config file, wires C1-C5, and serves HTTP until
// an interrupt or SIGTERM is received.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/justapithecus/resourcedriver/server"
)

func main() {
	configPath := flag.String("config", "resourcedriver.yaml", "path to resourcedriver.yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "resourcedriverd: %v\n", err)
		os.Exit(1)
	}
}
