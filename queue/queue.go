// Package queue implements the generic job queue C3 is built on
// (C4 consumes the bus directly): handler registration by job_type,
// enqueueing, and a consume loop
// that requeues a job when its handler reports unfinished work or when
// no handler is registered for its job_type.
//
// Grounded on the original Python's MessagingJobQueueService
// (ignition/service/queue.py, exercised by
// tests/unit/service/test_queue.py): a job is a JSON object with a
// job_type key; queue_job posts it to the job queue topic; the watch
// callback decodes it, dispatches to the registered handler, and
// reposts it if the handler returns false (not finished) or no handler
// is registered.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/justapithecus/resourcedriver/bus"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/rderr"
)

// Job is a job definition: an arbitrary JSON object that must carry a
// "job_type" key identifying which handler processes it.
type Job map[string]any

// JobType returns job's job_type, or "" if absent or not a string.
func (j Job) JobType() string {
	v, _ := j["job_type"].(string)
	return v
}

// HandlerFunc processes one job and reports whether it is finished.
// Returning false requeues the job for another delivery (spec §4.3's
// "leave job to be requeued" disposition).
type HandlerFunc func(job Job) bool

// Service is a job queue backed by a single bus topic: QueueJob posts,
// Run consumes.
type Service struct {
	topic     string
	publisher bus.Publisher
	inbox     bus.Inbox
	logger    *log.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// New constructs a Service watching topic via inbox and posting via
// publisher. Both publisher and inbox typically wrap the same
// underlying topic/stream.
func New(topic string, publisher bus.Publisher, inbox bus.Inbox, logger *log.Logger) (*Service, error) {
	if topic == "" {
		return nil, rderr.New(rderr.ErrInvalidConfig, "queue.New", fmt.Errorf("job_queue topic must be set"))
	}
	if publisher == nil || inbox == nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "queue.New", nil)
	}
	return &Service{
		topic:     topic,
		publisher: publisher,
		inbox:     inbox,
		logger:    logger,
		handlers:  make(map[string]HandlerFunc),
	}, nil
}

// RegisterJobHandler associates jobType with fn. Registering the same
// jobType twice is an error.
func (s *Service) RegisterJobHandler(jobType string, fn HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		return rderr.New(rderr.ErrInvalidArgument, "queue.RegisterJobHandler", fmt.Errorf("handler_func argument must be a callable function"))
	}
	if _, exists := s.handlers[jobType]; exists {
		return rderr.New(rderr.ErrInvalidArgument, "queue.RegisterJobHandler",
			fmt.Errorf("handler for job_type %q has already been registered", jobType))
	}
	s.handlers[jobType] = fn
	return nil
}

// QueueJob posts job to the job queue topic. job must carry a non-empty
// job_type.
func (s *Service) QueueJob(ctx context.Context, job Job) error {
	if job.JobType() == "" {
		return rderr.New(rderr.ErrInvalidArgument, "queue.QueueJob", fmt.Errorf("job_definition must have a job_type value"))
	}
	body, err := json.Marshal(job)
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "queue.QueueJob.marshal", err)
	}
	return s.publisher.Publish(ctx, bus.Envelope{Topic: s.topic, Body: body})
}

// Run consumes jobs from the inbox until ctx is done, dispatching each
// to its registered handler and requeueing per the disposition table:
// no job_type -> drop (malformed, logged); unregistered job_type ->
// requeue; handler returns false -> requeue; handler returns true ->
// ack and drop.
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
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		s.logger.Warnw("discarding malformed job", "error", err)
		_ = s.inbox.Ack(ctx, d)
		return
	}

	jobType := job.JobType()
	if jobType == "" {
		s.logger.Warnw("job missing job_type, discarding")
		_ = s.inbox.Ack(ctx, d)
		return
	}

	s.mu.Lock()
	handler, ok := s.handlers[jobType]
	s.mu.Unlock()

	if !ok {
		s.logger.Warnw("no handler registered for job_type, requeueing", "job_type", jobType)
		_ = s.inbox.Requeue(ctx, d)
		return
	}

	if handler(job) {
		_ = s.inbox.Ack(ctx, d)
		return
	}
	_ = s.inbox.Requeue(ctx, d)
}
