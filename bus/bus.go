// Package bus defines the message-bus boundary the resource driver core
// runs on top of: a Publisher side used by C2 (messaging) and C3/C4 to
// emit events and jobs, and an Inbox side used by C3/C4 to consume them
// with at-least-once, per-key-ordered delivery.
//
// Concrete backends live in subpackages (redisbus, localbus), mirroring
// the teacher's adapter/<backend> layout (adapter/redis, adapter/webhook).
package bus

import "context"

// Envelope is one message in flight on the bus. Key partitions delivery
// order: two envelopes with the same Key are delivered to a given
// consumer in the order they were published (spec §5, FIFO per
// request_id). Body is the already-serialized payload; callers own
// encoding so the bus never needs to know about domain types.
type Envelope struct {
	Topic string
	Key   string
	Body  []byte
	// TenantID is carried alongside the payload for tenant-scoped
	// routing/observability on backends that support it (spec §4.2's
	// Envelope{topic, payload, tenant_id}). Optional; backends that
	// don't distinguish tenants may ignore it.
	TenantID string
}

// Delivery is an Envelope as handed to a consumer, plus the handle
// needed to acknowledge or abandon it.
type Delivery struct {
	Envelope
	// ID is a backend-specific delivery identifier (e.g. a Redis Streams
	// entry ID) used for Ack/Requeue.
	ID string
}

// Publisher sends envelopes onto the bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Inbox consumes envelopes from one or more topics under a named
// consumer group, with at-least-once semantics: a Delivery remains
// pending (and eligible for redelivery to another consumer) until
// Acked.
type Inbox interface {
	// Receive blocks until a Delivery is available or ctx is done. A
	// backend with its own wait limit (redisbus) may instead return an
	// empty Delivery (nil Body) and a nil error; consumers skip those.
	Receive(ctx context.Context) (Delivery, error)
	// Ack marks a Delivery as successfully processed.
	Ack(ctx context.Context, d Delivery) error
	// Requeue returns a Delivery to the bus for later redelivery,
	// instead of acking it. Used on transient failure (spec §5).
	Requeue(ctx context.Context, d Delivery) error
	Close() error
}
