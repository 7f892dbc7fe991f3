package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/serialx/hashring"

	"pioreactor.com/dosing/internal/identity"
)

// partition is a single worker goroutine draining its own queue, the same
// shape as the teacher's internal/eventbus partition. Topics are assigned to
// partitions via a consistent-hash ring (serialx/hashring) instead of the
// teacher's raw fnv-mod, so growing the partition count only reshuffles the
// minority of topics that must move.
type partition struct {
	id    int
	queue chan func()
	done  chan struct{}
}

func newPartition(id, queueSize int) *partition {
	p := &partition{id: id, queue: make(chan func(), queueSize), done: make(chan struct{})}
	go p.run()
	return p
}

func (p *partition) run() {
	defer close(p.done)
	for fn := range p.queue {
		fn()
	}
}

func (p *partition) close() {
	close(p.queue)
	<-p.done
}

type subscription struct {
	id            int64
	pattern       string
	qos           QoS
	allowRetained bool
	handler       Handler
}

// MemTransport is an in-process pub/sub transport. Grounded on the teacher's
// internal/eventbus.InMemoryEventBus: partitioned delivery queues, retained
// message store, subscriber registry — extended here with MQTT-style
// wildcard topic matching, retained messages and a last-will slot so it can
// stand in for a real broker in tests and single-host deployments.
type MemTransport struct {
	mu            sync.RWMutex
	partitions    []*partition
	ring          *hashring.HashRing
	subscriptions map[int64]*subscription
	nextSubID     int64
	retained      map[string]Message
	lastWillTopic string
	lastWill      []byte
	lastWillQoS   QoS
	closed        int32

	published int64
	delivered int64
}

// NewMemTransport creates a transport with partitionCount worker goroutines,
// each buffering up to queueSize pending deliveries.
func NewMemTransport(partitionCount, queueSize int) *MemTransport {
	if partitionCount < 1 {
		partitionCount = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	nodes := make([]string, partitionCount)
	t := &MemTransport{
		partitions:    make([]*partition, partitionCount),
		subscriptions: make(map[int64]*subscription),
		retained:      make(map[string]Message),
	}
	for i := 0; i < partitionCount; i++ {
		t.partitions[i] = newPartition(i, queueSize)
		nodes[i] = partitionKey(i)
	}
	t.ring = hashring.New(nodes)
	return t
}

func partitionKey(i int) string {
	return "partition-" + string(rune('a'+i))
}

func (t *MemTransport) partitionFor(topic string) *partition {
	node, ok := t.ring.GetNode(topic)
	if !ok {
		return t.partitions[0]
	}
	for i, p := range t.partitions {
		if partitionKey(i) == node {
			return p
		}
	}
	return t.partitions[0]
}

func (t *MemTransport) Publish(_ context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return ErrClosed
	}

	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...), QoS: qos}

	t.mu.Lock()
	if retain {
		if len(payload) == 0 {
			delete(t.retained, topic)
		} else {
			t.retained[topic] = msg
		}
	}
	subs := make([]*subscription, 0, len(t.subscriptions))
	for _, s := range t.subscriptions {
		if identity.Match(s.pattern, topic) {
			subs = append(subs, s)
		}
	}
	t.mu.Unlock()

	atomic.AddInt64(&t.published, 1)
	for _, s := range subs {
		s := s
		p := t.partitionFor(topic)
		p.queue <- func() {
			atomic.AddInt64(&t.delivered, 1)
			s.handler(msg)
		}
	}
	return nil
}

func (t *MemTransport) Subscribe(_ context.Context, pattern string, qos QoS, allowRetained bool, handler Handler) (int64, error) {
	if atomic.LoadInt32(&t.closed) == 1 {
		return 0, ErrClosed
	}

	t.mu.Lock()
	id := atomic.AddInt64(&t.nextSubID, 1)
	t.subscriptions[id] = &subscription{id: id, pattern: pattern, qos: qos, allowRetained: allowRetained, handler: handler}

	var retainedMatches []Message
	if allowRetained {
		for topic, msg := range t.retained {
			if identity.Match(pattern, topic) {
				retained := msg
				retained.Retained = true
				retainedMatches = append(retainedMatches, retained)
			}
		}
	}
	t.mu.Unlock()

	for _, msg := range retainedMatches {
		msg := msg
		p := t.partitionFor(msg.Topic)
		p.queue <- func() {
			atomic.AddInt64(&t.delivered, 1)
			handler(msg)
		}
	}
	return id, nil
}

func (t *MemTransport) Unsubscribe(id int64) error {
	t.mu.Lock()
	delete(t.subscriptions, id)
	t.mu.Unlock()
	return nil
}

func (t *MemTransport) RegisterLastWill(topic string, payload []byte, qos QoS) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastWillTopic = topic
	t.lastWill = append([]byte(nil), payload...)
	t.lastWillQoS = qos
}

func (t *MemTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	for _, p := range t.partitions {
		p.close()
	}
	return nil
}

// Crash publishes the registered last-will retained, then closes — modeling
// a broker-originated last-will delivery on an ungraceful disconnect (spec
// §4.1 "Last-will").
func (t *MemTransport) Crash() {
	t.mu.RLock()
	topic, payload, qos := t.lastWillTopic, t.lastWill, t.lastWillQoS
	t.mu.RUnlock()
	if topic != "" {
		_ = t.Publish(context.Background(), topic, payload, qos, true)
	}
	_ = t.Close()
}

func (t *MemTransport) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		Published:     atomic.LoadInt64(&t.published),
		Delivered:     atomic.LoadInt64(&t.delivered),
		Subscriptions: len(t.subscriptions),
	}
}
