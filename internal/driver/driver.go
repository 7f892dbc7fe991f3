// Package driver implements the controller driver of spec §4.7: it resolves
// a mode name to a control.Algorithm, publishes a startup log, and runs a
// ticking loop that invokes the algorithm once per duration. Grounded on
// the teacher's internal/scheduler.Job: a context+cancel pair owning a
// single long-running loop, stopped cooperatively rather than killed.
package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/control"
	"pioreactor.com/dosing/internal/job"
)

// Options configures Run.
type Options struct {
	Job            *job.Job
	Base           *control.Base
	Mode           string
	DurationMinutes float64
	SkipFirstRun   bool
	Kwargs         map[string]string

	// sleep is overridden in tests to avoid real waits.
	sleep func(time.Duration)
}

// Driver runs one mode's algorithm on a fixed tick, publishing a startup
// log and routing any unhandled tick error to the error_log topic before
// re-raising (spec §4.7).
type Driver struct {
	opts     Options
	algo     control.Algorithm
	counter  int
	duration atomic.Float64
}

// New resolves mode against the control registry, constructing the
// algorithm instance. Unknown modes are a fatal assertion (spec §4.7).
func New(opts Options) (*Driver, error) {
	if opts.sleep == nil {
		opts.sleep = time.Sleep
	}

	factory, err := control.Get(opts.Mode)
	if err != nil {
		return nil, err
	}

	algo, err := factory(opts.Base, opts.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("driver: constructing mode %q: %w", opts.Mode, err)
	}

	d := &Driver{opts: opts, algo: algo}
	d.duration.Store(opts.DurationMinutes)
	return d, nil
}

// SetSleepFunc overrides the skip_first_run delay, for deterministic tests.
func (d *Driver) SetSleepFunc(fn func(time.Duration)) {
	d.opts.sleep = fn
}

// Algo returns the concrete algorithm instance this driver ticks, so callers
// (the job's editable-settings wiring) can type-assert against the
// control.*Setter interfaces the active mode happens to implement.
func (d *Driver) Algo() control.Algorithm {
	return d.algo
}

// SetDurationMinutes updates the tick interval the run loop reads on its
// next cycle, and, for modes whose per-tick dose depends on duration
// (PIDMorbidostat), propagates it to the algorithm too.
func (d *Driver) SetDurationMinutes(v float64) {
	d.duration.Store(v)
	if setter, ok := d.algo.(control.DurationSetter); ok {
		setter.SetDurationMinutes(v)
	}
}

// Run publishes the startup log, optionally sleeps one duration before the
// first tick (skip_first_run), then ticks every duration·60 seconds until
// ctx is cancelled, invoking algo.run(counter) each time (spec §4.7).
func (d *Driver) Run(ctx context.Context) error {
	if err := d.publishStartupLog(); err != nil {
		return err
	}

	if d.opts.SkipFirstRun {
		d.opts.sleep(d.interval())
	}

	for {
		d.counter++
		if _, err := d.opts.Base.Run(ctx, d.counter, d.algo); err != nil {
			d.publishErrorLog(err)
			return err
		}

		// interval is re-read every tick (rather than a single fixed
		// time.Ticker) so a live "duration" setting change takes effect on
		// the very next wait, not only after a restart.
		timer := time.NewTimer(d.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (d *Driver) interval() time.Duration {
	return time.Duration(d.duration.Load() * float64(time.Minute))
}

func (d *Driver) publishStartupLog() error {
	line := fmt.Sprintf("starting mode=%s duration=%g kwargs=%v", d.opts.Mode, d.opts.DurationMinutes, d.opts.Kwargs)
	return d.opts.Job.Pub.Publish(context.Background(), bus.AtMostOnce, false, []byte(line), "log")
}

func (d *Driver) publishErrorLog(err error) {
	line := err.Error()
	d.opts.Job.Log.Errorf("unhandled error in control loop: %v", err)
	_ = d.opts.Job.Pub.Publish(context.Background(), bus.ExactlyOnce, false, []byte(line), "error_log")
}
