package bus

// Message is one published or delivered bus record.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      QoS
	Retained bool // true when delivered from the retained-message store, not live
}

// Handler processes one delivered message. Errors are logged by the caller
// and never propagated back to the transport (spec §7 "Callback exception").
type Handler func(Message)
