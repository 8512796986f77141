package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/resourcedriver/cli/render"
	"github.com/justapithecus/resourcedriver/iox"
	"github.com/justapithecus/resourcedriver/metrics"
)

// JobsCommand reports the in-flight request/monitor-poll counters a
// running resourcedriverd exposes at GET /metrics, either as a single
// snapshot (default) or as a live dashboard (--tui).
func JobsCommand() *cli.Command {
	flags := append([]cli.Flag{}, ReadOnlyFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:  "addr",
		Value: "http://localhost:8080",
		Usage: "Base URL of a running resourcedriverd",
	})

	return &cli.Command{
		Name:   "jobs",
		Usage:  "Show in-flight request and monitor-poll counts",
		Flags:  flags,
		Action: jobsAction,
	}
}

func jobsAction(c *cli.Context) error {
	addr := c.String("addr")
	fetch := func() (metrics.Snapshot, error) {
		return fetchSnapshot(addr)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderJobsTUI(fetch)
	}

	snapshot, err := fetch()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(snapshot)
}

func fetchSnapshot(addr string) (metrics.Snapshot, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/metrics")
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("fetching %s/metrics: %w", addr, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return metrics.Snapshot{}, fmt.Errorf("%s/metrics returned status %d", addr, resp.StatusCode)
	}

	var snapshot metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return metrics.Snapshot{}, fmt.Errorf("decoding metrics response: %w", err)
	}
	return snapshot, nil
}
