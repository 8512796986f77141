// Package messaging implements C2: posting a LifecycleExecution to the
// completion topic as a canonical JSON envelope.
//
// Grounded on the original Python's LifecycleMessagingService
// (resourcedriver.py): a thin wrapper that validates its topic name at
// construction (failing fast with InvalidConfig) and otherwise just
// canonicalizes a payload and posts it through the bus.
package messaging

import (
	"context"
	"encoding/json"

	"github.com/justapithecus/resourcedriver/bus"
	"github.com/justapithecus/resourcedriver/metrics"
	"github.com/justapithecus/resourcedriver/rderr"
	"github.com/justapithecus/resourcedriver/types"
)

// Config configures the completion-event topic.
type Config struct {
	// CompletionTopic is the bus topic lifecycle execution completions
	// are posted to (spec §6 lifecycle_execution_events).
	CompletionTopic string
}

// Service sends LifecycleExecution completions onto the bus.
type Service struct {
	topic     string
	publisher bus.Publisher
	metrics   *metrics.Collector
}

// SetMetrics attaches a Collector that PublishSuccess/PublishFailure
// counts are recorded against. Optional: a Service with no Collector
// attached simply doesn't count (Collector's Inc* methods are
// nil-receiver safe).
func (s *Service) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// New constructs a Service. Returns InvalidConfig if cfg.CompletionTopic
// is empty: the spec requires this to fail at construction, not at the
// first send.
func New(cfg Config, publisher bus.Publisher) (*Service, error) {
	if cfg.CompletionTopic == "" {
		return nil, rderr.New(rderr.ErrInvalidConfig, "messaging.New", nil)
	}
	if publisher == nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "messaging.New", nil)
	}
	return &Service{topic: cfg.CompletionTopic, publisher: publisher}, nil
}

// wireExecution mirrors types.LifecycleExecution but holds Outputs
// behind a pointer so json's omitempty actually elides it when absent:
// omitempty never elides a struct value, only nil/zero scalars and nil
// pointers.
type wireExecution struct {
	RequestID          string                    `json:"requestId"`
	Status             string                    `json:"status"`
	Outputs            *types.PropertyValueMap   `json:"outputs,omitempty"`
	AssociatedTopology *types.AssociatedTopology `json:"associatedTopology,omitempty"`
	FailureDetails     *types.FailureDetails     `json:"failureDetails,omitempty"`
}

// SendLifecycleExecution canonicalizes execution to {requestId, status,
// outputs?, associatedTopology?, failureDetails?} (only present fields
// emitted) and posts it to the completion topic, partitioned by
// requestId so per-request ordering is preserved on the bus.
func (s *Service) SendLifecycleExecution(ctx context.Context, execution *types.LifecycleExecution, tenantID string) error {
	if execution == nil {
		return rderr.New(rderr.ErrInvalidArgument, "messaging.SendLifecycleExecution", nil)
	}

	payload := wireExecution{
		RequestID:          execution.RequestID,
		Status:             execution.Status,
		AssociatedTopology: execution.AssociatedTopology,
		FailureDetails:     execution.FailureDetails,
	}
	if execution.Outputs.Len() > 0 {
		outputs := execution.Outputs
		payload.Outputs = &outputs
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "messaging.SendLifecycleExecution.marshal", err)
	}

	env := bus.Envelope{
		Topic:    s.topic,
		Key:      execution.RequestID,
		Body:     body,
		TenantID: tenantID,
	}

	if err := s.publisher.Publish(ctx, env); err != nil {
		s.metrics.IncPublishFailure()
		return rderr.New(rderr.ErrResourceDriverError, "messaging.SendLifecycleExecution.publish", err)
	}
	s.metrics.IncPublishSuccess()
	return nil
}
