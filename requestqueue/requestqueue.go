// Package requestqueue implements C4, the request queue consumer: an
// optional front-end that pulls queued lifecycle requests off the bus
// and dispatches them to a handler, scheduling monitoring on success.
//
// Grounded on spec §4.4's consumption sequence (the original Python
// source's equivalent consumer was not captured in original_source/;
// this rewrite follows the distilled spec directly) and on the
// disposition-by-error-kind pattern already established in monitor and
// queue.
package requestqueue

import (
	"context"
	"encoding/json"

	"github.com/justapithecus/resourcedriver/bus"
	"github.com/justapithecus/resourcedriver/handler"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/messaging"
	"github.com/justapithecus/resourcedriver/metrics"
	"github.com/justapithecus/resourcedriver/monitor"
	"github.com/justapithecus/resourcedriver/rderr"
	"github.com/justapithecus/resourcedriver/types"
	"github.com/justapithecus/resourcedriver/workspace"
)

// Config configures the request queue consumer.
type Config struct {
	// RequestTopic is the primary request topic (spec §6, 20 partitions,
	// ~60s retention in production).
	RequestTopic string
	// FailedTopic is the dead-letter/retry topic for transient failures.
	FailedTopic string
}

// Service consumes LifecycleRequests from the bus and dispatches them
// to a handler.
type Service struct {
	cfg       Config
	publisher bus.Publisher
	inbox     bus.Inbox
	workspace *workspace.Manager
	handler   handler.Handler
	messaging *messaging.Service
	monitor   *monitor.Service
	logger    *log.Logger
	metrics   *metrics.Collector
}

// SetMetrics attaches a Collector that dispatch outcomes are recorded
// against, reusing driver.Service's admission/sync-dispatch counters
// since a consumed request is dispatched the same way regardless of
// whether it arrived inline or off the queue.
func (s *Service) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// New constructs a Service. inbox consumes cfg.RequestTopic; publisher
// posts to cfg.RequestTopic (QueueLifecycleRequest) and to
// cfg.FailedTopic on transient failure. monitor and messaging publish
// through their own publishers.
func New(cfg Config, publisher bus.Publisher, inbox bus.Inbox, ws *workspace.Manager, h handler.Handler, messagingSvc *messaging.Service, monitorSvc *monitor.Service, logger *log.Logger) (*Service, error) {
	if cfg.RequestTopic == "" {
		return nil, rderr.New(rderr.ErrInvalidConfig, "requestqueue.New", nil)
	}
	if publisher == nil || inbox == nil || ws == nil || h == nil || messagingSvc == nil || monitorSvc == nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "requestqueue.New", nil)
	}
	return &Service{
		cfg: cfg, publisher: publisher, inbox: inbox,
		workspace: ws, handler: h, messaging: messagingSvc, monitor: monitorSvc, logger: logger,
	}, nil
}

// QueueLifecycleRequest posts req to the request topic, partitioned by
// RequestID for per-request ordering.
func (s *Service) QueueLifecycleRequest(ctx context.Context, req *types.LifecycleRequest) error {
	if req == nil || req.RequestID == "" {
		return rderr.New(rderr.ErrInvalidArgument, "requestqueue.QueueLifecycleRequest", nil)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "requestqueue.QueueLifecycleRequest.marshal", err)
	}
	return s.publisher.Publish(ctx, bus.Envelope{Topic: s.cfg.RequestTopic, Key: req.RequestID, Body: body})
}

// Run consumes requests until ctx is done, handling each per spec
// §4.4's sequence and disposition table.
func (s *Service) Run(ctx context.Context) error {
	for {
		d, err := s.inbox.Receive(ctx)
		if err != nil {
			return err
		}
		if d.Body == nil {
			continue
		}
		s.handleDelivery(ctx, d)
	}
}

func (s *Service) handleDelivery(ctx context.Context, d bus.Delivery) {
	var req types.LifecycleRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		s.logger.Warnw("discarding malformed lifecycle request", "error", err)
		_ = s.inbox.Ack(ctx, d)
		return
	}

	logger := s.logger.WithContext(req.LoggingContext)

	if err := s.handleRequest(ctx, &req, logger); err != nil {
		s.metrics.IncSyncDispatchFailed()
		if rderr.IsTemporary(err) {
			logger.Warnw("transient failure handling request, routing to failed topic", "request_id", req.RequestID, "error", err)
			_ = s.requeueToFailedTopic(ctx, &req)
		} else {
			logger.Errorw("permanent failure handling request, publishing failure", "request_id", req.RequestID, "error", err)
			s.publishSynthesizedFailure(ctx, &req, err, logger)
		}
	} else {
		s.metrics.IncSyncDispatchAccepted()
	}
	_ = s.inbox.Ack(ctx, d)
}

func (s *Service) requeueToFailedTopic(ctx context.Context, req *types.LifecycleRequest) error {
	if s.cfg.FailedTopic == "" {
		return nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, bus.Envelope{Topic: s.cfg.FailedTopic, Key: req.RequestID, Body: body})
}

func (s *Service) publishSynthesizedFailure(ctx context.Context, req *types.LifecycleRequest, cause error, logger *log.Logger) {
	failure := &types.LifecycleExecution{
		RequestID: req.RequestID,
		Status:    types.StatusFailed,
		FailureDetails: &types.FailureDetails{
			Code:        types.FailureCodeInternalError,
			Description: cause.Error(),
		},
	}
	if err := s.messaging.SendLifecycleExecution(ctx, failure, req.TenantID); err != nil {
		logger.Errorw("failed to publish synthesized failure", "request_id", req.RequestID, "error", err)
	}
}

// handleRequest implements the per-request sequence: build the
// driver-files tree, dispatch to the handler, schedule monitoring, and
// release the tree on every exit path.
func (s *Service) handleRequest(ctx context.Context, req *types.LifecycleRequest, logger *log.Logger) error {
	tree, err := s.workspace.BuildTree(req.RequestID, req.DriverFiles)
	if err != nil {
		return err
	}
	defer tree.Release()

	resp, err := s.handler.ExecuteLifecycle(ctx, handler.ExecuteLifecycleRequest{
		LifecycleName:      req.LifecycleName,
		DriverFiles:        tree,
		SystemProperties:   req.SystemProperties,
		ResourceProperties: req.ResourceProperties,
		RequestProperties:  req.RequestProperties,
		AssociatedTopology: req.AssociatedTopology,
		DeploymentLocation: req.DeploymentLocation,
	})
	if err != nil {
		return err
	}

	if resp != nil && resp.RequestID != "" {
		if err := s.monitor.MonitorExecution(ctx, resp.RequestID, req.DeploymentLocation, req.TenantID); err != nil {
			logger.Errorw("failed to schedule monitoring", "request_id", resp.RequestID, "error", err)
		}
	}
	return nil
}
