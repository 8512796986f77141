// Package driver implements C5, the Resource Driver Service: the facade
// an HTTP handler calls into. It owns the dispatch decision between
// synchronous handler invocation and enqueue-to-C4, per spec §4.5's
// configuration matrix.
package driver

import (
	"context"

	"github.com/google/uuid"

	"github.com/justapithecus/resourcedriver/handler"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/messaging"
	"github.com/justapithecus/resourcedriver/metrics"
	"github.com/justapithecus/resourcedriver/monitor"
	"github.com/justapithecus/resourcedriver/rderr"
	"github.com/justapithecus/resourcedriver/requestqueue"
	"github.com/justapithecus/resourcedriver/types"
	"github.com/justapithecus/resourcedriver/workspace"
)

// Config selects the dispatch behavior of a Service (spec §4.5's
// async_requests_enabled / async_enabled matrix).
type Config struct {
	// AsyncRequestsEnabled, when true, enqueues every request onto C4
	// instead of calling the handler inline. Takes priority over
	// AsyncEnabled.
	AsyncRequestsEnabled bool
	// AsyncEnabled, when true (and AsyncRequestsEnabled is false), calls
	// the handler synchronously and schedules a monitor job on an
	// accepted response. When false, the handler is assumed to complete
	// (and emit, if it wants to) entirely on its own.
	AsyncEnabled bool
}

// ExecuteLifecycleRequest bundles the admission-time arguments to
// ExecuteLifecycle, mirroring the HTTP request body (spec §6).
type ExecuteLifecycleRequest struct {
	LifecycleName      string
	DriverFiles        string // base64 zip
	SystemProperties   types.PropertyValueMap
	ResourceProperties types.PropertyValueMap
	RequestProperties  types.PropertyValueMap
	AssociatedTopology types.AssociatedTopology
	DeploymentLocation types.DeploymentLocation
	TenantID           string
	LoggingContext     types.LoggingContext
}

// FindReferenceRequest bundles the arguments to FindReference.
type FindReferenceRequest struct {
	InstanceName       string
	DriverFiles        string // base64 zip
	DeploymentLocation types.DeploymentLocation
}

// Service is the admission-time facade, invoked concurrently by HTTP
// request handlers; every method is safe under parallel invocation
// (spec §5, no single event loop).
type Service struct {
	cfg          Config
	workspace    *workspace.Manager
	handler      handler.Handler
	monitor      *monitor.Service
	messaging    *messaging.Service
	requestQueue *requestqueue.Service
	logger       *log.Logger
	metrics      *metrics.Collector
}

// SetMetrics attaches a Collector that admission/sync-dispatch counts
// are recorded against.
func (s *Service) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// New constructs a Service. requestQueue may be nil only if
// cfg.AsyncRequestsEnabled is false.
func New(cfg Config, ws *workspace.Manager, h handler.Handler, monitorSvc *monitor.Service, messagingSvc *messaging.Service, requestQueueSvc *requestqueue.Service, logger *log.Logger) (*Service, error) {
	if ws == nil || h == nil || monitorSvc == nil || messagingSvc == nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "driver.New", nil)
	}
	if cfg.AsyncRequestsEnabled && requestQueueSvc == nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "driver.New", nil)
	}
	return &Service{
		cfg: cfg, workspace: ws, handler: h, monitor: monitorSvc,
		messaging: messagingSvc, requestQueue: requestQueueSvc, logger: logger,
	}, nil
}

// ExecuteLifecycle dispatches a lifecycle request per the configured
// async_requests/async matrix (spec §4.5).
func (s *Service) ExecuteLifecycle(ctx context.Context, req ExecuteLifecycleRequest) (*types.LifecycleExecuteResponse, error) {
	if req.LifecycleName == "" || req.DriverFiles == "" || req.DeploymentLocation == nil {
		s.metrics.IncRequestRejected()
		return nil, rderr.New(rderr.ErrInvalidRequest, "driver.ExecuteLifecycle", nil)
	}
	s.metrics.IncRequestAdmitted()

	if s.cfg.AsyncRequestsEnabled {
		return s.enqueueRequest(ctx, req)
	}
	return s.executeSynchronously(ctx, req)
}

// enqueueRequest mints a request_id, snapshots the logging context, and
// posts the request onto C4 without ever calling the handler.
func (s *Service) enqueueRequest(ctx context.Context, req ExecuteLifecycleRequest) (*types.LifecycleExecuteResponse, error) {
	requestID := uuid.New().String()

	lifecycleReq := &types.LifecycleRequest{
		RequestID:          requestID,
		LifecycleName:      req.LifecycleName,
		DriverFiles:        req.DriverFiles,
		SystemProperties:   req.SystemProperties,
		ResourceProperties: req.ResourceProperties,
		RequestProperties:  req.RequestProperties,
		AssociatedTopology: req.AssociatedTopology,
		DeploymentLocation: req.DeploymentLocation,
		TenantID:           req.TenantID,
		LoggingContext:     req.LoggingContext,
	}
	if err := s.requestQueue.QueueLifecycleRequest(ctx, lifecycleReq); err != nil {
		return nil, err
	}
	s.metrics.IncRequestEnqueued()
	return &types.LifecycleExecuteResponse{RequestID: requestID}, nil
}

// executeSynchronously materializes the driver-files tree, calls the
// handler inline, and (when AsyncEnabled) schedules monitoring on an
// accepted response. The tree is released on every exit path.
func (s *Service) executeSynchronously(ctx context.Context, req ExecuteLifecycleRequest) (*types.LifecycleExecuteResponse, error) {
	requestID := uuid.New().String()

	tree, err := s.workspace.BuildTree(requestID, req.DriverFiles)
	if err != nil {
		return nil, err
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
		s.metrics.IncSyncDispatchFailed()
		return nil, err
	}
	s.metrics.IncSyncDispatchAccepted()

	if s.cfg.AsyncEnabled && resp != nil && resp.RequestID != "" {
		if err := s.monitor.MonitorExecution(ctx, resp.RequestID, req.DeploymentLocation, req.TenantID); err != nil {
			s.logger.Errorw("failed to schedule monitoring", "request_id", resp.RequestID, "error", err)
		}
	}
	return resp, nil
}

// FindReference is always synchronous, regardless of the dispatch
// configuration (spec §4.5).
func (s *Service) FindReference(ctx context.Context, req FindReferenceRequest) (*types.FindReferenceResponse, error) {
	if req.InstanceName == "" || req.DriverFiles == "" || req.DeploymentLocation == nil {
		return nil, rderr.New(rderr.ErrInvalidRequest, "driver.FindReference", nil)
	}

	treeName := uuid.New().String()
	tree, err := s.workspace.BuildTree(treeName, req.DriverFiles)
	if err != nil {
		return nil, err
	}
	defer tree.Release()

	return s.handler.FindReference(ctx, req.InstanceName, tree, req.DeploymentLocation)
}
