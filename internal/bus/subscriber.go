package bus

import (
	"context"
	"sync"

	"pioreactor.com/dosing/internal/identity"
)

type registeredSub struct {
	id            int64
	pattern       string
	qos           QoS
	allowRetained bool
	handler       Handler
}

// SubClient wraps a Transport with the subscribe-side contract of spec
// §4.1: a duplicate-pattern guard, a retained-message filter, and
// reconnect republishing of every passive listener.
type SubClient struct {
	identity  identity.Identity
	jobName   string
	transport Transport

	mu   sync.Mutex
	subs []*registeredSub
}

func NewSubClient(id identity.Identity, jobName string, transport Transport) *SubClient {
	return &SubClient{identity: id, jobName: jobName, transport: transport}
}

// Subscribe registers pattern with the transport. allowRetained=false drops
// messages the transport marks Message.Retained (spec "Retained filter").
// Subscribing the same pattern twice is a guard violation (spec §4.1
// "Duplicate-pattern guard", §8 invariant 5) and returns before any message
// can be delivered.
func (s *SubClient) Subscribe(ctx context.Context, pattern string, qos QoS, allowRetained bool, handler Handler) error {
	s.mu.Lock()
	for _, existing := range s.subs {
		if existing.pattern == pattern {
			s.mu.Unlock()
			return ErrDuplicateSubscription
		}
	}
	s.mu.Unlock()

	wrapped := func(msg Message) {
		if msg.Retained && !allowRetained {
			return
		}
		handler(msg)
	}

	id, err := s.transport.Subscribe(ctx, pattern, qos, allowRetained, wrapped)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs = append(s.subs, &registeredSub{id: id, pattern: pattern, qos: qos, allowRetained: allowRetained, handler: wrapped})
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscription registered for pattern, if any. It is
// a no-op if pattern was never subscribed (or was already unsubscribed).
func (s *SubClient) Unsubscribe(pattern string) error {
	s.mu.Lock()
	var target *registeredSub
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.pattern == pattern && target == nil {
			target = sub
			continue
		}
		kept = append(kept, sub)
	}
	s.subs = kept
	s.mu.Unlock()

	if target == nil {
		return nil
	}
	return s.transport.Unsubscribe(target.id)
}

// Reconnect re-registers every passive subscription and republishes the
// current `state` attribute retained, so a broker-originated `lost`
// last-will is overwritten by the real state (spec §4.1 "Reconnect
// republish").
func (s *SubClient) Reconnect(ctx context.Context, pub *PubClient, currentState string) error {
	s.mu.Lock()
	existing := make([]*registeredSub, len(s.subs))
	copy(existing, s.subs)
	s.subs = s.subs[:0]
	s.mu.Unlock()

	for _, sub := range existing {
		if _, err := s.transport.Subscribe(ctx, sub.pattern, sub.qos, sub.allowRetained, sub.handler); err != nil {
			return err
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}

	return pub.Publish(ctx, ExactlyOnce, true, []byte(currentState), "$state")
}
