package bus

import "context"

// Transport is the broker contract the pub/sub clients drive. The real
// broker (MQTT-like: QoS, retain, last-will) is an external collaborator per
// spec §1 ("out of scope... referenced only through their contract"); this
// interface is that contract. Two implementations are provided: an
// in-process transport (memtransport.go, for single-host/tests) grounded on
// the teacher's internal/eventbus, and a Kafka-backed transport
// (kafkatransport.go) grounded on the teacher's internal/command/kafka.go
// command-channel for real multi-unit deployments.
type Transport interface {
	// Publish delivers payload to every live subscriber whose pattern
	// matches topic. When retain is true the transport also stores payload
	// as the topic's retained value, delivered to future subscribers that
	// allow retained messages.
	Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error

	// Subscribe registers handler for every topic matching pattern. If
	// allowRetained is true, currently-retained topics matching pattern are
	// delivered to handler immediately (with Message.Retained set).
	// The returned subscriptionID is used to Unsubscribe.
	Subscribe(ctx context.Context, pattern string, qos QoS, allowRetained bool, handler Handler) (subscriptionID int64, err error)

	Unsubscribe(subscriptionID int64) error

	// RegisterLastWill stores a message to be published automatically if
	// this transport handle is released via Crash instead of Close.
	RegisterLastWill(topic string, payload []byte, qos QoS)

	// Close performs a graceful disconnect: last-will is NOT published.
	Close() error

	// Crash simulates an ungraceful disconnect: the registered last-will (if
	// any) is published retained, then the transport handle is released.
	// Used by tests and by process-level crash recovery paths.
	Crash()

	Stats() Stats
}

// Stats exposes transport-level counters, mirroring the teacher's
// eventbus.Stats.
type Stats struct {
	Published     int64
	Delivered     int64
	Subscriptions int
}
