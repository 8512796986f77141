package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/resourcedriver/server"
)

// ServeCommand runs the resource driver core in the foreground, wiring
// C1-C5 from the given config file and serving HTTP until interrupted.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the resource driver service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "resourcedriver.yaml",
				Usage: "Path to resourcedriver.yaml",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return server.Run(ctx, c.String("config"))
		},
	}
}
