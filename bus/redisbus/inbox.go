package redisbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/resourcedriver/bus"
)

// InboxConfig configures a consumer-group Inbox over one stream.
type InboxConfig struct {
	Config
	// Topic is the stream name to consume.
	Topic string
	// Group is the consumer group name (spec §6 group_id).
	Group string
	// Consumer is this process's consumer name within Group.
	Consumer string
	// Block is how long XREADGROUP blocks waiting for new entries.
	Block time.Duration
	// ClaimMinIdle is the minimum pending-idle duration before another
	// consumer may XCLAIM an entry left unacked by a crashed consumer.
	ClaimMinIdle time.Duration
}

func (c InboxConfig) withDefaults() InboxConfig {
	c.Config = c.Config.withDefaults()
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = DefaultClaimMinIdle
	}
	if c.Consumer == "" {
		c.Consumer = "resourcedriver"
	}
	return c
}

// Inbox consumes envelopes from a single Redis stream under a consumer
// group, using XREADGROUP for new entries and XCLAIM for redelivering
// entries abandoned by a crashed consumer (spec §5's requeue protocol).
type Inbox struct {
	cfg    InboxConfig
	client *goredis.Client
}

// NewInbox constructs an Inbox and ensures the consumer group exists.
func NewInbox(ctx context.Context, cfg InboxConfig) (*Inbox, error) {
	cfg = cfg.withDefaults()
	if cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.New("redisbus: Topic and Group are required")
	}
	client, err := newClient(cfg.Config)
	if err != nil {
		return nil, err
	}

	err = client.XGroupCreateMkStream(ctx, cfg.Topic, cfg.Group, "0").Err()
	if err != nil && !errors.Is(err, goredis.Nil) && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("redisbus: create group: %w", err)
	}

	return &Inbox{cfg: cfg, client: client}, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// Receive first tries XAUTOCLAIM of a stale pending entry (one idle
// longer than ClaimMinIdle) so a crashed consumer's in-flight
// deliveries are eventually redelivered, and otherwise reads one new
// entry via XREADGROUP. If the XREADGROUP wait (Block) elapses with
// nothing to read, it returns an empty Delivery and a nil error.
func (i *Inbox) Receive(ctx context.Context) (bus.Delivery, error) {
	if d, ok, err := i.claimStale(ctx); err != nil {
		return bus.Delivery{}, err
	} else if ok {
		return d, nil
	}

	streams, err := i.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    i.cfg.Group,
		Consumer: i.cfg.Consumer,
		Streams:  []string{i.cfg.Topic, ">"},
		Count:    1,
		Block:    i.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return bus.Delivery{}, nil
		}
		return bus.Delivery{}, fmt.Errorf("redisbus: xreadgroup: %w", err)
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			return toDelivery(i.cfg.Topic, msg), nil
		}
	}
	return bus.Delivery{}, nil
}

func (i *Inbox) claimStale(ctx context.Context) (bus.Delivery, bool, error) {
	pending, _, err := i.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   i.cfg.Topic,
		Group:    i.cfg.Group,
		Consumer: i.cfg.Consumer,
		MinIdle:  i.cfg.ClaimMinIdle,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return bus.Delivery{}, false, nil
		}
		return bus.Delivery{}, false, fmt.Errorf("redisbus: xautoclaim: %w", err)
	}
	if len(pending) == 0 {
		return bus.Delivery{}, false, nil
	}
	return toDelivery(i.cfg.Topic, pending[0]), true, nil
}

func toDelivery(topic string, msg goredis.XMessage) bus.Delivery {
	key, _ := msg.Values["key"].(string)
	tenantID, _ := msg.Values["tenant_id"].(string)
	var body []byte
	switch v := msg.Values["body"].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}
	return bus.Delivery{
		Envelope: bus.Envelope{Topic: topic, Key: key, Body: body, TenantID: tenantID},
		ID:       msg.ID,
	}
}

// Ack acknowledges the delivery, removing it from the pending entries list.
func (i *Inbox) Ack(ctx context.Context, d bus.Delivery) error {
	return i.client.XAck(ctx, i.cfg.Topic, i.cfg.Group, d.ID).Err()
}

// Requeue is a no-op: leaving the entry unacked keeps it pending, and it
// becomes eligible for XAutoClaim redelivery once ClaimMinIdle elapses.
func (i *Inbox) Requeue(ctx context.Context, d bus.Delivery) error {
	return nil
}

// Close releases the underlying client.
func (i *Inbox) Close() error {
	return i.client.Close()
}

var _ bus.Inbox = (*Inbox)(nil)
