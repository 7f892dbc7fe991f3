package bus

import "errors"

var (
	// ErrDuplicateSubscription is returned by SubClient.Subscribe when the
	// identical pattern string is already registered on that client. Two
	// different patterns that match a common concrete topic (a wildcard and
	// a literal, say) are not detected and both receive the message.
	ErrDuplicateSubscription = errors.New("bus: pattern overlaps an existing subscription")

	// ErrClosed is returned by Publish/Subscribe once the transport has been
	// closed.
	ErrClosed = errors.New("bus: transport closed")
)
