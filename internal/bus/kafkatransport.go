package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"pioreactor.com/dosing/internal/identity"
)

// envelope is the wire format carried inside every Kafka record — the
// logical bus topic travels as a field since Kafka topics are not as cheap
// to create per-MQTT-topic as a real broker's. Grounded on the teacher's
// command/kafka.go KafkaCommand/SimpleCommand envelopes and their
// self-selection model: "each agent consumes all messages and self-selects
// items matching its local role" — here every subscriber self-selects on
// Topic pattern instead of Role.
type envelope struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	QoS       QoS             `json:"qos"`
	Retain    bool            `json:"retain"`
	Timestamp time.Time       `json:"timestamp"`
}

// KafkaTransport backs the bus with a single shared Kafka topic, exactly as
// the teacher's command channel does for its SimpleCommand traffic, plus a
// local retained-message cache (Kafka has no native retain/last-will
// semantics) so Subscribe(allowRetained=true) still works.
type KafkaTransport struct {
	writer *kafka.Writer
	reader *kafka.Reader

	mu            sync.RWMutex
	subscriptions map[int64]*subscription
	nextSubID     int64
	retained      map[string]Message
	lastWillTopic string
	lastWill      []byte
	lastWillQoS   QoS
	closed        int32

	published int64
	delivered int64

	cancel context.CancelFunc
}

// NewKafkaTransport connects to brokers and starts consuming topic under
// groupID. Every bus Publish/Subscribe call funnels through this one Kafka
// topic.
func NewKafkaTransport(brokers []string, topic, groupID string) *KafkaTransport {
	t := &KafkaTransport{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		subscriptions: make(map[int64]*subscription),
		retained:      make(map[string]Message),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.consume(ctx)
	return t
}

func (t *KafkaTransport) consume(ctx context.Context) {
	for {
		m, err := t.reader.ReadMessage(ctx)
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			continue
		}
		t.deliver(env)
	}
}

func (t *KafkaTransport) deliver(env envelope) {
	msg := Message{Topic: env.Topic, Payload: env.Payload, QoS: env.QoS}

	t.mu.Lock()
	if env.Retain {
		if len(env.Payload) == 0 {
			delete(t.retained, env.Topic)
		} else {
			t.retained[env.Topic] = msg
		}
	}
	var matched []*subscription
	for _, s := range t.subscriptions {
		if identity.Match(s.pattern, env.Topic) {
			matched = append(matched, s)
		}
	}
	t.mu.Unlock()

	for _, s := range matched {
		atomic.AddInt64(&t.delivered, 1)
		s.handler(msg)
	}
}

func (t *KafkaTransport) Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return ErrClosed
	}
	env := envelope{Topic: topic, Payload: append(json.RawMessage(nil), payload...), QoS: qos, Retain: retain, Timestamp: time.Now()}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	atomic.AddInt64(&t.published, 1)
	return t.writer.WriteMessages(ctx, kafka.Message{Key: []byte(topic), Value: raw})
}

func (t *KafkaTransport) Subscribe(_ context.Context, pattern string, qos QoS, allowRetained bool, handler Handler) (int64, error) {
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
				r := msg
				r.Retained = true
				retainedMatches = append(retainedMatches, r)
			}
		}
	}
	t.mu.Unlock()

	for _, msg := range retainedMatches {
		handler(msg)
	}
	return id, nil
}

func (t *KafkaTransport) Unsubscribe(id int64) error {
	t.mu.Lock()
	delete(t.subscriptions, id)
	t.mu.Unlock()
	return nil
}

func (t *KafkaTransport) RegisterLastWill(topic string, payload []byte, qos QoS) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastWillTopic = topic
	t.lastWill = append([]byte(nil), payload...)
	t.lastWillQoS = qos
}

func (t *KafkaTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	t.cancel()
	_ = t.reader.Close()
	return t.writer.Close()
}

func (t *KafkaTransport) Crash() {
	t.mu.RLock()
	topic, payload, qos := t.lastWillTopic, t.lastWill, t.lastWillQoS
	t.mu.RUnlock()
	if topic != "" {
		_ = t.Publish(context.Background(), topic, payload, qos, true)
	}
	_ = t.Close()
}

func (t *KafkaTransport) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		Published:     atomic.LoadInt64(&t.published),
		Delivered:     atomic.LoadInt64(&t.delivered),
		Subscriptions: len(t.subscriptions),
	}
}
