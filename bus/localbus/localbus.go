// Package localbus provides an in-memory bus.Publisher/bus.Inbox pair
// for local development and tests, in place of redisbus. It preserves
// per-key FIFO ordering and an at-least-once Requeue, but has no
// cross-process durability.
package localbus

import (
	"context"
	"strconv"
	"sync"

	"github.com/justapithecus/resourcedriver/bus"
)

// Bus is a shared in-memory message bus. One Bus may back several
// topics; each topic gets its own FIFO queue.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]bus.Delivery
	notify chan struct{}
	nextID int
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		topics: make(map[string][]bus.Delivery),
		notify: make(chan struct{}, 1),
	}
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Publisher returns a bus.Publisher bound to this Bus.
func (b *Bus) Publisher() bus.Publisher { return &publisher{b} }

// Inbox returns a bus.Inbox that consumes from the given topics, in
// the order they were published (per-key FIFO is a consequence of each
// topic's queue being FIFO overall, since localbus is single-consumer
// per topic in practice).
func (b *Bus) Inbox(topics ...string) bus.Inbox { return &inbox{bus: b, topics: topics} }

type publisher struct{ b *Bus }

func (p *publisher) Publish(_ context.Context, env bus.Envelope) error {
	p.b.mu.Lock()
	p.b.nextID++
	id := p.b.nextID
	p.b.topics[env.Topic] = append(p.b.topics[env.Topic], bus.Delivery{
		Envelope: env,
		ID:       strconv.Itoa(id),
	})
	p.b.mu.Unlock()
	p.b.wake()
	return nil
}

func (p *publisher) Close() error { return nil }

type inbox struct {
	bus    *Bus
	topics []string
}

func (i *inbox) Receive(ctx context.Context) (bus.Delivery, error) {
	for {
		if d, ok := i.tryDequeue(); ok {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return bus.Delivery{}, ctx.Err()
		case <-i.bus.notify:
		}
	}
}

func (i *inbox) tryDequeue() (bus.Delivery, bool) {
	i.bus.mu.Lock()
	defer i.bus.mu.Unlock()
	for _, topic := range i.topics {
		q := i.bus.topics[topic]
		if len(q) > 0 {
			d := q[0]
			i.bus.topics[topic] = q[1:]
			return d, true
		}
	}
	return bus.Delivery{}, false
}

func (i *inbox) Ack(_ context.Context, _ bus.Delivery) error {
	return nil
}

// Requeue re-appends the delivery to the back of its topic's queue, so
// it is redelivered after any currently-queued work (at-least-once,
// no ordering guarantee against entries published since the original
// attempt, matching Redis Streams' XCLAIM behavior for this bus too).
func (i *inbox) Requeue(_ context.Context, d bus.Delivery) error {
	i.bus.mu.Lock()
	i.bus.topics[d.Topic] = append(i.bus.topics[d.Topic], d)
	i.bus.mu.Unlock()
	i.bus.wake()
	return nil
}

func (i *inbox) Close() error { return nil }

var (
	_ bus.Publisher = (*publisher)(nil)
	_ bus.Inbox     = (*inbox)(nil)
)
