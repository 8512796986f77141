// Package server wires C1-C5 from a loaded Config and serves HTTP
// until ctx is canceled. It backs both the resourcedriverd daemon
// binary and driverctl's serve command.
package server

import (
	"context"
	"fmt"

	"github.com/justapithecus/resourcedriver/bus"
	"github.com/justapithecus/resourcedriver/bus/localbus"
	"github.com/justapithecus/resourcedriver/bus/redisbus"
	"github.com/justapithecus/resourcedriver/config"
	"github.com/justapithecus/resourcedriver/driver"
	"github.com/justapithecus/resourcedriver/handler/subprocess"
	"github.com/justapithecus/resourcedriver/httpapi"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/messaging"
	"github.com/justapithecus/resourcedriver/metrics"
	"github.com/justapithecus/resourcedriver/monitor"
	"github.com/justapithecus/resourcedriver/queue"
	"github.com/justapithecus/resourcedriver/requestqueue"
	"github.com/justapithecus/resourcedriver/workspace"
)

// Run loads configPath, wires the resource driver core, and serves HTTP
// until ctx is canceled.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New()
	defer logger.Sync()

	ws, err := workspace.New(workspace.Config{Root: cfg.ScriptsWorkspace})
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	requestPublisher, jobPublisher, completionPublisher, requestInbox, jobInbox, err := wireBus(ctx, cfg.Bus, cfg.LifecycleRequestQueue.GroupID)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	collector := metrics.NewCollector(cfg.Handler.Command, cfg.Bus.Backend)

	msgSvc, err := messaging.New(messaging.Config{CompletionTopic: cfg.Bus.CompletionTopic}, completionPublisher)
	if err != nil {
		return fmt.Errorf("messaging: %w", err)
	}
	msgSvc.SetMetrics(collector)

	h, err := subprocess.New(ctx, subprocess.Config{Command: cfg.Handler.Command, Args: cfg.Handler.Args})
	if err != nil {
		return fmt.Errorf("handler: %w", err)
	}

	jobQueue, err := queue.New(cfg.Bus.JobQueueTopic, jobPublisher, jobInbox, logger)
	if err != nil {
		return fmt.Errorf("job queue: %w", err)
	}

	monSvc, err := monitor.New(jobQueue, msgSvc, h, logger)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	monSvc.SetMetrics(collector)

	var requestQueueSvc *requestqueue.Service
	if cfg.LifecycleRequestQueue.Enabled {
		requestQueueSvc, err = requestqueue.New(requestqueue.Config{
			RequestTopic: cfg.Bus.RequestTopic,
			FailedTopic:  cfg.Bus.FailedTopic,
		}, requestPublisher, requestInbox, ws, h, msgSvc, monSvc, logger)
		if err != nil {
			return fmt.Errorf("request queue: %w", err)
		}
		requestQueueSvc.SetMetrics(collector)
	}

	driverSvc, err := driver.New(driver.Config{
		AsyncRequestsEnabled: cfg.Handler.AsyncRequestsEnabled,
		AsyncEnabled:         cfg.AsyncMessagingEnabledOrDefault(),
	}, ws, h, monSvc, msgSvc, requestQueueSvc, logger)
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	driverSvc.SetMetrics(collector)

	archiver, err := workspace.NewArchiver(ctx, workspace.ArchiveConfig{
		Bucket:       cfg.Archive.Bucket,
		Prefix:       cfg.Archive.Prefix,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.S3PathStyle,
	})
	if err != nil {
		return fmt.Errorf("archiver: %w", err)
	}
	if archiver != nil {
		janitor := workspace.NewJanitor(ws, archiver, cfg.Archive.SweepInterval.Duration, cfg.Archive.TTL.Duration)
		go janitor.Run(ctx)
	}

	httpSrv := httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr}, driverSvc, logger)
	httpSrv.SetMetrics(collector)

	go func() {
		if err := jobQueue.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorw("job queue consumer stopped", "error", err)
		}
	}()
	if requestQueueSvc != nil {
		go func() {
			if err := requestQueueSvc.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Errorw("request queue consumer stopped", "error", err)
			}
		}()
	}

	return httpSrv.ListenAndServe(ctx)
}

// wireBus selects the bus backend per cfg.Backend ("local" or "redis")
// and returns the publisher/inbox pairs C2, C3, and C4 need. On redis,
// requestGroup is the consumer group of the C4 request inbox.
func wireBus(ctx context.Context, cfg config.BusConfig, requestGroup string) (requestPublisher, jobPublisher, completionPublisher bus.Publisher, requestInbox, jobInbox bus.Inbox, err error) {
	switch cfg.Backend {
	case "", "local":
		b := localbus.New()
		return b.Publisher(), b.Publisher(), b.Publisher(),
			b.Inbox(cfg.RequestTopic), b.Inbox(cfg.JobQueueTopic), nil

	case "redis":
		pub, err := redisbus.NewPublisher(redisbus.Config{URL: cfg.RedisURL})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		reqInbox, err := redisbus.NewInbox(ctx, redisbus.InboxConfig{
			Config: redisbus.Config{URL: cfg.RedisURL},
			Topic:  cfg.RequestTopic,
			Group:  requestGroup,
		})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		jobIn, err := redisbus.NewInbox(ctx, redisbus.InboxConfig{
			Config: redisbus.Config{URL: cfg.RedisURL},
			Topic:  cfg.JobQueueTopic,
			Group:  "execution_monitor",
		})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		return pub, pub, pub, reqInbox, jobIn, nil

	default:
		return nil, nil, nil, nil, nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
	}
}
