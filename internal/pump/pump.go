// Package pump implements the volume-conserving actuation primitive of spec
// §4.3. No example repo in the retrieved pack drives physical actuators;
// this component is grounded on the teacher's plugin.Reporter shape
// (Name/Init/Start/Stop plus a narrow action method) for the Driver
// contract, and on internal/task's strict phase ordering for the terminal
// leg's fixed alt→media→waste sequence.
package pump

import (
	"context"
	"math"
	"time"
)

const (
	// safetySplitThresholdML triggers recursive halving above this waste
	// volume (spec §4.3 step 2).
	safetySplitThresholdML = 0.5

	// conservationEpsilon is the volume-conservation tolerance (spec §3,
	// §8 invariant 1).
	conservationEpsilon = 1e-5

	mixingDelay  = 2500 * time.Millisecond
	wasteTopUp   = 1 * time.Second
)

// Driver is the external pump-hardware contract (spec §1: "seen as
// add_media(ml|duration), add_alt_media(...), remove_waste(...)"). Media and
// alt media are dosed by ml only; waste removal has separate ml and duration
// methods rather than one overloaded signature, so each call names exactly
// one of the two.
type Driver interface {
	AddMediaML(ctx context.Context, ml float64) error
	AddAltMediaML(ctx context.Context, ml float64) error
	RemoveWasteML(ctx context.Context, ml float64) error
	RemoveWasteDuration(ctx context.Context, d time.Duration) error
}

// IOBatchedRecord is published once per outermost ExecuteIOAction call, with
// the original (pre-split) request (spec §6 "io_batched").
type IOBatchedRecord struct {
	AltMediaML float64 `json:"alt_media_ml"`
	MediaML    float64 `json:"media_ml"`
	WasteML    float64 `json:"waste_ml"`
}

// DosingEvent is published by the pump itself for every individual pump
// action, consumed by other jobs (spec §6 "dosing_events").
type DosingEvent struct {
	VolumeChange float64 `json:"volume_change"`
	Event        string  `json:"event"` // "add_media" | "add_alt_media" | "remove_waste"
	SourceOfEvent string `json:"source_of_event"`
}

// Publisher is the seam ExecuteIOAction uses to emit io_batched and
// dosing_events records.
type Publisher interface {
	PublishIOBatched(IOBatchedRecord) error
	PublishDosingEvent(DosingEvent) error
}

// Actuator drives a Driver with the safety-splitting policy of spec §4.3.
type Actuator struct {
	driver    Driver
	publisher Publisher
	source    string // job_name, recorded as DosingEvent.SourceOfEvent
	sleep     func(time.Duration)
}

// NewActuator wires driver/publisher for jobName. sleep defaults to
// time.Sleep; tests override it to make the mixing delays instantaneous.
func NewActuator(driver Driver, publisher Publisher, jobName string) *Actuator {
	return &Actuator{driver: driver, publisher: publisher, source: jobName, sleep: time.Sleep}
}

// SetSleepFunc overrides the delay function used for the mixing sleeps, for
// deterministic tests.
func (a *Actuator) SetSleepFunc(fn func(time.Duration)) {
	a.sleep = fn
}

// ExecuteIOAction actuates altMediaML of alt media, mediaML of fresh media,
// and wasteML of waste removal, enforcing the conservation invariant and the
// recursive safety-splitting policy. When log is true (always true for the
// outermost caller) the original request is published to io_batched before
// any splitting happens.
func (a *Actuator) ExecuteIOAction(ctx context.Context, altMediaML, mediaML, wasteML float64, log bool) error {
	if altMediaML < 0 || mediaML < 0 || wasteML < 0 {
		return ErrNegativeVolume
	}
	if math.Abs(altMediaML+mediaML-wasteML) >= conservationEpsilon {
		return ErrVolumeNotConserved
	}

	if log && a.publisher != nil {
		if err := a.publisher.PublishIOBatched(IOBatchedRecord{AltMediaML: altMediaML, MediaML: mediaML, WasteML: wasteML}); err != nil {
			return err
		}
	}

	if wasteML > safetySplitThresholdML {
		half := func(v float64) float64 { return v / 2 }
		if err := a.ExecuteIOAction(ctx, half(altMediaML), half(mediaML), half(wasteML), false); err != nil {
			return err
		}
		return a.ExecuteIOAction(ctx, half(altMediaML), half(mediaML), half(wasteML), false)
	}

	// Terminal leg: alt media, then media, then waste — in that fixed
	// order, so the fresh bolus dilutes into the vial before any volume is
	// removed (spec §4.3 step 3).
	if altMediaML > 0 {
		if err := a.driver.AddAltMediaML(ctx, altMediaML); err != nil {
			return err
		}
		if err := a.publish(DosingEvent{VolumeChange: altMediaML, Event: "add_alt_media", SourceOfEvent: a.source}); err != nil {
			return err
		}
		a.sleep(mixingDelay)
	}
	if mediaML > 0 {
		if err := a.driver.AddMediaML(ctx, mediaML); err != nil {
			return err
		}
		if err := a.publish(DosingEvent{VolumeChange: mediaML, Event: "add_media", SourceOfEvent: a.source}); err != nil {
			return err
		}
		a.sleep(mixingDelay)
	}
	if wasteML > 0 {
		if err := a.driver.RemoveWasteML(ctx, wasteML); err != nil {
			return err
		}
		if err := a.publish(DosingEvent{VolumeChange: wasteML, Event: "remove_waste", SourceOfEvent: a.source}); err != nil {
			return err
		}
		// Over-aspiration top-up: keeps vial volume at the level set by the
		// waste tube's geometric length (spec §4.3 step 3c, §9 open
		// question ii — retained as specified).
		if err := a.driver.RemoveWasteDuration(ctx, wasteTopUp); err != nil {
			return err
		}
	}

	return nil
}

func (a *Actuator) publish(evt DosingEvent) error {
	if a.publisher == nil {
		return nil
	}
	return a.publisher.PublishDosingEvent(evt)
}
