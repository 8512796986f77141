// Package metrics provides accumulator-style instrumentation for the
// resource driver core. The Collector is a leaf package with no
// internal dependencies; every component that wants metrics takes one
// as an optional dependency and calls its Inc* methods directly.
//
// Adapted from the teacher's metrics.Collector: same mutex-guarded
// counter/Snapshot shape and nil-receiver-safe increments, re-dimensioned
// from (policy, executor, storage_backend) to (lifecycle_name,
// bus_backend) and re-counted around admission, sync dispatch, monitor
// poll disposition, and completion-event publication instead of a
// scraping run's ingestion pipeline.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters. Returned
// by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Admission (C5)
	RequestsAdmitted int64
	RequestsEnqueued int64
	RequestsRejected int64

	// Handler dispatch outcomes (C5 inline dispatch and C4 consumed requests)
	SyncDispatchAccepted int64
	SyncDispatchFailed   int64

	// Monitor poll disposition (C3)
	MonitorPollsRequeued  int64
	MonitorPollsDropped   int64
	MonitorPollsPublished int64

	// Completion-event publication (C2)
	PublishSuccess int64
	PublishFailure int64

	// Dimensions (informational, set at construction)
	LifecycleName string
	BusBackend    string
}

// Collector accumulates metrics for the life of a server process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver
// safe, so a component can be constructed with a nil *Collector when
// metrics are disabled.
type Collector struct {
	mu sync.Mutex

	requestsAdmitted int64
	requestsEnqueued int64
	requestsRejected int64

	syncDispatchAccepted int64
	syncDispatchFailed   int64

	monitorPollsRequeued  int64
	monitorPollsDropped   int64
	monitorPollsPublished int64

	publishSuccess int64
	publishFailure int64

	lifecycleName string
	busBackend    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(lifecycleName, busBackend string) *Collector {
	return &Collector{lifecycleName: lifecycleName, busBackend: busBackend}
}

// --- Admission (C5) ---

// IncRequestAdmitted records a lifecycle request accepted at the HTTP
// boundary, regardless of dispatch path.
func (c *Collector) IncRequestAdmitted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsAdmitted++
	c.mu.Unlock()
}

// IncRequestEnqueued records a request routed onto the async request
// queue (C4) instead of dispatched inline.
func (c *Collector) IncRequestEnqueued() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsEnqueued++
	c.mu.Unlock()
}

// IncRequestRejected records a request rejected at admission because a
// required field (lifecycle name, driver files, deployment location)
// is missing.
func (c *Collector) IncRequestRejected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsRejected++
	c.mu.Unlock()
}

// --- Synchronous dispatch (C5/C4) ---

// IncSyncDispatchAccepted records a handler.ExecuteLifecycle call that
// returned an accepted response.
func (c *Collector) IncSyncDispatchAccepted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.syncDispatchAccepted++
	c.mu.Unlock()
}

// IncSyncDispatchFailed records a handler.ExecuteLifecycle call that
// returned an error.
func (c *Collector) IncSyncDispatchFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.syncDispatchFailed++
	c.mu.Unlock()
}

// --- Monitor poll disposition (C3) ---

// IncMonitorPollRequeued records a poll that left the job in the queue
// (in-progress or transient failure).
func (c *Collector) IncMonitorPollRequeued() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.monitorPollsRequeued++
	c.mu.Unlock()
}

// IncMonitorPollDropped records a poll that consumed the job without
// publishing (not-found, or malformed job payload).
func (c *Collector) IncMonitorPollDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.monitorPollsDropped++
	c.mu.Unlock()
}

// IncMonitorPollPublished records a poll that consumed the job and
// published a completion event (terminal status, or a synthesized
// failure).
func (c *Collector) IncMonitorPollPublished() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.monitorPollsPublished++
	c.mu.Unlock()
}

// --- Completion-event publication (C2) ---

// IncPublishSuccess records a successful bus.Publisher.Publish call
// from messaging.Service.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a failed bus.Publisher.Publish call from
// messaging.Service.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RequestsAdmitted: c.requestsAdmitted,
		RequestsEnqueued: c.requestsEnqueued,
		RequestsRejected: c.requestsRejected,

		SyncDispatchAccepted: c.syncDispatchAccepted,
		SyncDispatchFailed:   c.syncDispatchFailed,

		MonitorPollsRequeued:  c.monitorPollsRequeued,
		MonitorPollsDropped:   c.monitorPollsDropped,
		MonitorPollsPublished: c.monitorPollsPublished,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,

		LifecycleName: c.lifecycleName,
		BusBackend:    c.busBackend,
	}
}
