package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/runledger/pkg/events"
	"github.com/google/uuid"
)

// ErrBusClosed is returned by operations on a closed StatusBus.
var ErrBusClosed = errors.New("status bus closed")

const defaultSubscriptionBuffer = 64

// StatusPublisher is the write side used by the orchestrator.
type StatusPublisher interface {
	PublishNodeStatus(ctx context.Context, event events.NodeStatus) error
}

// StatusBus fans node status events out to live subscription handles.
//
// Each (channel, topic) pair is consumed from the transport once; incoming
// messages are acked immediately and offered to every attached handle without
// blocking. Delivery is at-most-once: slow, expired or disconnected handles
// miss events and must fall back to the log store.
type StatusBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	issuer     TokenIssuer
	logger     *slog.Logger
	buffer     int
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]map[string]*Subscription
	closed bool
}

// StatusBusOption customizes a StatusBus.
type StatusBusOption func(*StatusBus)

// WithSubscriptionBuffer sets the per-handle event buffer.
func WithSubscriptionBuffer(size int) StatusBusOption {
	return func(b *StatusBus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithClock overrides the time source used for subscription expiry.
func WithClock(now func() time.Time) StatusBusOption {
	return func(b *StatusBus) {
		b.now = now
	}
}

func NewStatusBus(pub message.Publisher, sub message.Subscriber, issuer TokenIssuer, logger *slog.Logger, opts ...StatusBusOption) *StatusBus {
	ctx, cancel := context.WithCancel(context.Background())

	bus := &StatusBus{
		publisher:  pub,
		subscriber: sub,
		issuer:     issuer,
		logger:     logger.With("module", "status_bus"),
		buffer:     defaultSubscriptionBuffer,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		topics:     make(map[string]map[string]*Subscription),
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// Issuer returns the token issuer used to authorize subscriptions.
func (b *StatusBus) Issuer() TokenIssuer {
	return b.issuer
}

// PublishNodeStatus publishes event on the channel of its node type. It never
// waits for subscribers.
func (b *StatusBus) PublishNodeStatus(ctx context.Context, event events.NodeStatus) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode node status: %w", err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, event.NodeID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return b.publisher.Publish(events.ChannelTopic(event.NodeType, events.StatusTopic), msg)
}

// Subscribe verifies tokenValue and returns a handle receiving every topic it grants.
func (b *StatusBus) Subscribe(ctx context.Context, tokenValue string) (*Subscription, error) {
	token, err := b.issuer.Verify(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:        uuid.New().String(),
		channel:   token.Channel,
		topics:    token.Topics,
		expiresAt: token.ExpiresAt,
		events:    make(chan events.NodeStatus, b.buffer),
		bus:       b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	for _, topic := range sub.topics {
		transportTopic := events.ChannelTopic(sub.channel, topic)

		handles, ok := b.topics[transportTopic]
		if !ok {
			messages, err := b.subscriber.Subscribe(b.ctx, transportTopic)
			if err != nil {
				b.detachLocked(sub)

				return nil, fmt.Errorf("failed to subscribe to %s: %w", transportTopic, err)
			}

			handles = make(map[string]*Subscription)
			b.topics[transportTopic] = handles

			go b.pump(transportTopic, messages)
		}

		handles[sub.id] = sub
	}

	b.logger.DebugContext(ctx, "Subscription attached", "channel", sub.channel, "topics", sub.topics, "subscription_id", sub.id)

	return sub, nil
}

// Close detaches every handle and closes the transport.
func (b *StatusBus) Close() error {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return nil
	}

	b.closed = true

	var handles []*Subscription

	for _, subs := range b.topics {
		for _, sub := range subs {
			handles = append(handles, sub)
		}
	}

	b.topics = make(map[string]map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range handles {
		sub.shutdown()
	}

	b.cancel()

	err := b.publisher.Close()
	if err != nil {
		return err
	}

	return b.subscriber.Close()
}

func (b *StatusBus) pump(topic string, messages <-chan *message.Message) {
	for msg := range messages {
		msg.Ack()

		var event events.NodeStatus

		err := json.Unmarshal(msg.Payload, &event)
		if err != nil {
			b.logger.Warn("Dropping malformed node status", "topic", topic, "error", err)

			continue
		}

		b.mu.Lock()
		handles := make([]*Subscription, 0, len(b.topics[topic]))

		for _, sub := range b.topics[topic] {
			handles = append(handles, sub)
		}
		b.mu.Unlock()

		now := b.now()

		for _, sub := range handles {
			if !sub.deliver(event, now) {
				b.logger.Debug("Node status dropped", "subscription_id", sub.id, "node_id", event.NodeID)
			}
		}
	}
}

func (b *StatusBus) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.detachLocked(sub)
}

func (b *StatusBus) detachLocked(sub *Subscription) {
	for _, topic := range sub.topics {
		delete(b.topics[events.ChannelTopic(sub.channel, topic)], sub.id)
	}
}
