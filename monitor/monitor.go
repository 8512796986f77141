// Package monitor implements C3, the execution monitor: a background
// poller that repeatedly asks a handler for a request's status, emits
// the terminal status through C2, and self-requeues on transient
// failure or while the request is still in progress.
//
// Grounded directly on the original Python's
// LifecycleExecutionMonitoringService (resourcedriver.py): it registers
// itself as the queue.HandlerFunc for the monitor job type, and its
// job_handler's disposition table is reproduced verbatim in
// Service.handleJob.
package monitor

import (
	"context"

	"github.com/justapithecus/resourcedriver/handler"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/messaging"
	"github.com/justapithecus/resourcedriver/metrics"
	"github.com/justapithecus/resourcedriver/queue"
	"github.com/justapithecus/resourcedriver/rderr"
	"github.com/justapithecus/resourcedriver/types"
)

// Service polls a Handler for the status of in-flight lifecycle
// requests, delivering terminal results to a messaging.Service.
type Service struct {
	jobQueue  *queue.Service
	messaging *messaging.Service
	handler   handler.Handler
	logger    *log.Logger
	metrics   *metrics.Collector
}

// SetMetrics attaches a Collector that poll-disposition counts are
// recorded against.
func (s *Service) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// New constructs a Service and registers its job handler with jobQueue
// under types.LifecycleExecutionMonitorJobType.
func New(jobQueue *queue.Service, messagingSvc *messaging.Service, h handler.Handler, logger *log.Logger) (*Service, error) {
	if jobQueue == nil || messagingSvc == nil || h == nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "monitor.New", nil)
	}
	s := &Service{jobQueue: jobQueue, messaging: messagingSvc, handler: h, logger: logger}
	if err := jobQueue.RegisterJobHandler(types.LifecycleExecutionMonitorJobType, s.handleJob); err != nil {
		return nil, err
	}
	return s, nil
}

// MonitorExecution schedules a poll job for requestID. Both requestID
// and deploymentLocation are required.
func (s *Service) MonitorExecution(ctx context.Context, requestID string, deploymentLocation types.DeploymentLocation, tenantID string) error {
	if requestID == "" {
		return rderr.New(rderr.ErrInvalidArgument, "monitor.MonitorExecution", nil)
	}
	if deploymentLocation == nil {
		return rderr.New(rderr.ErrInvalidArgument, "monitor.MonitorExecution", nil)
	}
	job := queue.Job{
		"job_type":            types.LifecycleExecutionMonitorJobType,
		"request_id":          requestID,
		"deployment_location": deploymentLocation,
		"tenant_id":           tenantID,
	}
	return s.jobQueue.QueueJob(ctx, job)
}

// handleJob is the queue.HandlerFunc for monitor jobs. It reports
// finished=true when the job should be dropped (acked), and
// finished=false when it should be requeued for another poll.
func (s *Service) handleJob(job queue.Job) bool {
	ctx := context.Background()

	requestID, ok := job["request_id"].(string)
	if !ok || requestID == "" {
		s.logger.Warnw("monitor job missing request_id, discarding")
		s.metrics.IncMonitorPollDropped()
		return true
	}
	deploymentLocation, ok := decodeDeploymentLocation(job["deployment_location"])
	if !ok {
		s.logger.Warnw("monitor job missing deployment_location, discarding", "request_id", requestID)
		s.metrics.IncMonitorPollDropped()
		return true
	}
	tenantID, _ := job["tenant_id"].(string)

	execution, err := s.handler.GetLifecycleExecution(ctx, requestID, deploymentLocation)
	switch {
	case rderr.IsNotFound(err):
		s.logger.Debugw("request no longer found, stopping monitoring", "request_id", requestID)
		s.metrics.IncMonitorPollDropped()
		return true
	case rderr.IsTemporary(err):
		s.logger.Warnw("temporary error checking request status, requeueing", "request_id", requestID, "error", err)
		s.metrics.IncMonitorPollRequeued()
		return false
	case err != nil:
		s.logger.Errorw("unexpected error checking request status, posting failure", "request_id", requestID, "error", err)
		failure := &types.LifecycleExecution{
			RequestID: requestID,
			Status:    types.StatusFailed,
			FailureDetails: &types.FailureDetails{
				Code:        types.FailureCodeInternalError,
				Description: err.Error(),
			},
		}
		if sendErr := s.messaging.SendLifecycleExecution(ctx, failure, tenantID); sendErr != nil {
			s.logger.Errorw("failed to publish synthesized failure", "request_id", requestID, "error", sendErr)
		}
		s.metrics.IncMonitorPollPublished()
		return true
	}

	if !types.IsTerminal(execution.Status) {
		s.metrics.IncMonitorPollRequeued()
		return false
	}

	if err := s.messaging.SendLifecycleExecution(ctx, execution, tenantID); err != nil {
		s.logger.Errorw("failed to publish lifecycle execution, requeueing", "request_id", requestID, "error", err)
		return false
	}
	s.metrics.IncMonitorPollPublished()

	if responder, ok := s.handler.(handler.PostResponder); ok {
		if err := responder.PostLifecycleResponse(ctx, requestID, deploymentLocation); err != nil {
			s.logger.Errorw("post_lifecycle_response failed, ignoring", "request_id", requestID, "error", err)
		}
	}
	return true
}

// decodeDeploymentLocation accepts either a types.DeploymentLocation
// directly (in-process callers) or a JSON-decoded map[string]any (after
// a round trip through the bus), since queue.Job values come back from
// json.Unmarshal as plain maps.
func decodeDeploymentLocation(v any) (types.DeploymentLocation, bool) {
	switch dl := v.(type) {
	case types.DeploymentLocation:
		return dl, dl != nil
	case map[string]any:
		return types.DeploymentLocation(dl), true
	default:
		return nil, false
	}
}
