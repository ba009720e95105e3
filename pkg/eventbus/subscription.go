package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/runledger/pkg/events"
)

// Subscription is a caller-owned handle on one channel. It stops receiving
// events once its token expires and resumes after a successful Refresh.
type Subscription struct {
	id      string
	channel string
	topics  []string
	bus     *StatusBus

	mu        sync.Mutex
	expiresAt time.Time
	closed    bool
	events    chan events.NodeStatus
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Channel() string {
	return s.channel
}

// Events returns the receive side of the handle. It is closed by Close.
func (s *Subscription) Events() <-chan events.NodeStatus {
	return s.events
}

func (s *Subscription) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expiresAt
}

// Refresh extends the handle with a newly issued token for the same scope.
func (s *Subscription) Refresh(ctx context.Context, tokenValue string) error {
	token, err := s.bus.issuer.Verify(ctx, tokenValue)
	if err != nil {
		return err
	}

	if !token.Covers(s.channel, s.topics) {
		return fmt.Errorf("%w: token for %s does not cover channel %s", ErrInvalidScope, token.Channel, s.channel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrBusClosed
	}

	if token.ExpiresAt.After(s.expiresAt) {
		s.expiresAt = token.ExpiresAt
	}

	return nil
}

// Close detaches the handle from the bus and closes its event channel.
func (s *Subscription) Close() {
	s.bus.detach(s)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.events)
}

// deliver offers event without blocking and reports whether it was queued.
func (s *Subscription) deliver(event events.NodeStatus, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !now.Before(s.expiresAt) {
		return false
	}

	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}
