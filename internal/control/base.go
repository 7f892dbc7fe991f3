// Package control implements ControlAlgorithm (spec §4.5, §4.6): the sensor
// subscriptions, the active/paused gate, the bounded warmup wait, and the
// five dosing policies layered on top of the pump and PID primitives.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tevino/abool"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/job"
	"pioreactor.com/dosing/internal/pump"
)

const (
	// sensorWarmup bounds the wait for a first sensor reading to arrive
	// (spec §4.5 run step 2: "sleep for a bounded warmup (10s) and
	// recurse. This is the only place the control loop may block beyond a
	// tick.").
	sensorWarmup = 10 * time.Second
)

// AltMediaCalculator is the external alt-media-fraction bookkeeper spec §4.5
// mentions and places out of scope ("initializes an AltMediaCalculator
// collaborator... out of scope here"); Base only holds and forwards to it,
// never inspects its internals.
type AltMediaCalculator interface {
	Update(event pump.Event)
}

// TargetODSetter, VolumeSetter, TargetGrowthRateSetter and DurationSetter
// are implemented by whichever concrete algorithms have a live-mutable field
// behind the matching name (spec §3.6's editable set). A mode that has no
// such field (Silent has neither; PIDMorbidostat's volume is derived, not
// stored) simply doesn't implement the interface, so the caller wiring job
// settings can type-assert and only advertise $settable for what the active
// mode actually supports.
type TargetODSetter interface {
	SetTargetOD(float64)
}

type VolumeSetter interface {
	SetVolume(float64)
}

type TargetGrowthRateSetter interface {
	SetTargetGrowthRate(float64)
}

type DurationSetter interface {
	SetDurationMinutes(float64)
}

// Algorithm is implemented by each of the five dosing policies (spec
// §4.6). Execute evaluates one tick's decision; Base.Run wraps it with the
// active-gate, warmup and logging steps common to all of them (spec §4.5),
// favoring composition over the teacher's lack of any comparable base-class
// pattern — this is a fresh idiom applied consistently across the five
// algorithms below.
type Algorithm interface {
	Execute(ctx context.Context, counter int) (pump.Event, error)
}

// Base is embedded by every concrete algorithm. It owns the sensor
// subscriptions, the active/paused flag, the pump actuator and the optional
// alt-media bookkeeper.
type Base struct {
	JobName string
	Sensors *SensorCache
	Active  *abool.AtomicBool
	Pump    *pump.Actuator
	AltMedia AltMediaCalculator

	job        *job.Job
	sleep      func(time.Duration)
	sensorMu   sync.Mutex
	sensorName string
}

// NewBase subscribes to the sensor topics named in spec §4.5 and creates the
// active flag (default true); declaring it as the job's `active` editable
// setting is left to the caller.
func NewBase(j *job.Job, sensorName string, actuator *pump.Actuator, altMedia AltMediaCalculator) (*Base, error) {
	b := &Base{
		JobName:    j.Name,
		Sensors:    &SensorCache{},
		Active:     abool.NewBool(true),
		Pump:       actuator,
		AltMedia:   altMedia,
		job:        j,
		sleep:      time.Sleep,
		sensorName: sensorName,
	}

	ctx := context.Background()
	if err := b.subscribeOD(ctx, sensorName); err != nil {
		return nil, err
	}

	grTopic := j.Identity.Topic("growth_rate_calculating", "growth_rate")
	if err := j.Sub.Subscribe(ctx, grTopic, bus.AtMostOnce, false, func(msg bus.Message) {
		var v float64
		if _, err := fmt.Sscanf(string(msg.Payload), "%g", &v); err == nil {
			b.Sensors.SetGrowthRate(v)
		}
	}); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Base) subscribeOD(ctx context.Context, sensorName string) error {
	odTopic := b.job.Identity.Topic("od_reading", "od_filtered", sensorName)
	return b.job.Sub.Subscribe(ctx, odTopic, bus.AtMostOnce, false, func(msg bus.Message) {
		var v float64
		if _, err := fmt.Sscanf(string(msg.Payload), "%g", &v); err == nil {
			b.Sensors.SetOD(v)
		}
	})
}

// SensorName returns the OD sensor currently subscribed to.
func (b *Base) SensorName() string {
	b.sensorMu.Lock()
	defer b.sensorMu.Unlock()
	return b.sensorName
}

// SetSensor re-points the OD subscription at a different sensor (spec §3.6
// "sensor" is one of ControlAlgorithm's editable settings) — it unsubscribes
// the current od_filtered topic and subscribes the new one, clearing any
// cached reading so the next tick re-runs the warmup wait rather than acting
// on a stale value from the old sensor.
func (b *Base) SetSensor(ctx context.Context, sensorName string) error {
	b.sensorMu.Lock()
	defer b.sensorMu.Unlock()

	if sensorName == b.sensorName {
		return nil
	}

	oldTopic := b.job.Identity.Topic("od_reading", "od_filtered", b.sensorName)
	if err := b.job.Sub.Unsubscribe(oldTopic); err != nil {
		return err
	}
	if err := b.subscribeOD(ctx, sensorName); err != nil {
		return err
	}
	b.sensorName = sensorName
	b.Sensors.ResetOD()
	return nil
}

// SetSleepFunc overrides the warmup delay, for deterministic tests.
func (b *Base) SetSleepFunc(fn func(time.Duration)) {
	b.sleep = fn
}

// Job returns the underlying BackgroundJob, for algorithms that need
// logging or identity beyond what Base exposes directly.
func (b *Base) Job() *job.Job {
	return b.job
}

// logf logs at info level and publishes the line to the job's log topic,
// mirroring the one-off logging individual algorithms need beyond the
// "triggered <event>" line Run always emits.
func (b *Base) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	b.job.Log.Info(line)
	_ = b.job.Pub.Publish(context.Background(), bus.AtMostOnce, false, []byte(line), "log")
}

// Run implements spec §4.5's run(counter): pause gate, bounded sensor
// warmup, delegate to algo.Execute, then publish the triggered-event log
// line.
func (b *Base) Run(ctx context.Context, counter int, algo Algorithm) (pump.Event, error) {
	if !b.Active.IsSet() {
		return pump.NoEvent{ReasonText: "Paused"}, nil
	}

	if !b.Sensors.Ready() {
		b.sleep(sensorWarmup)
		return b.Run(ctx, counter, algo)
	}

	event, err := algo.Execute(ctx, counter)
	if err != nil {
		return nil, err
	}

	if b.AltMedia != nil {
		b.AltMedia.Update(event)
	}

	line := fmt.Sprintf("[%s]: triggered %s", b.JobName, event)
	if err := b.job.Pub.Publish(ctx, bus.AtMostOnce, false, []byte(line), "log"); err != nil {
		return event, err
	}

	return event, nil
}
