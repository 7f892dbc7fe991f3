package pump

import "fmt"

// Event is the tagged-variant result of a control algorithm's Execute call
// (spec §3 "Events"). Concrete types implement Event; a type switch at the
// publish site renders the wire string, matching the teacher's preference
// for a capability interface over deep subclassing (spec §9).
type Event interface {
	Reason() string
	fmt.Stringer
}

// NoEvent means the algorithm decided not to actuate this tick.
type NoEvent struct {
	ReasonText string
}

func (e NoEvent) Reason() string { return e.ReasonText }
func (e NoEvent) String() string { return fmt.Sprintf("NoEvent(%s)", e.ReasonText) }

// DilutionEvent means media was added and an equal waste volume removed.
type DilutionEvent struct {
	ReasonText string
}

func (e DilutionEvent) Reason() string { return e.ReasonText }
func (e DilutionEvent) String() string { return fmt.Sprintf("DilutionEvent(%s)", e.ReasonText) }

// AltMediaEvent means alt media (and optionally fresh media) was dosed.
type AltMediaEvent struct {
	ReasonText string
	MediaML    float64
	AltMediaML float64
}

func (e AltMediaEvent) Reason() string { return e.ReasonText }
func (e AltMediaEvent) String() string {
	return fmt.Sprintf("AltMediaEvent(%s, media_ml=%.4f, alt_media_ml=%.4f)", e.ReasonText, e.MediaML, e.AltMediaML)
}
