package control

import (
	"context"

	"go.uber.org/atomic"

	"pioreactor.com/dosing/internal/pid"
	"pioreactor.com/dosing/internal/pump"
	"pioreactor.com/dosing/internal/telemetry"
)

// The pidMorbidostatK* gains and vialVolumeML implement spec §9 (Open Question i)
// and §4.6's "PIDMorbidostat(target_growth_rate, target_od, duration,
// volume)": negative gains (higher growth rate => less alt media), and the
// fixed vial volume used to derive per-tick dosing volume from growth rate.
const (
	pidMorbidostatKp = -2.00
	pidMorbidostatKi = -0.01
	pidMorbidostatKd = -0.05
	vialVolumeML     = 14.0
)

func init() {
	Register("pid_morbidostat", func(base *Base, kwargs map[string]string) (Algorithm, error) {
		targetGrowthRate, err := floatKwarg(kwargs, "target_growth_rate")
		if err != nil {
			return nil, err
		}
		targetOD, err := floatKwarg(kwargs, "target_od")
		if err != nil {
			return nil, err
		}
		duration, err := floatKwarg(kwargs, "duration")
		if err != nil {
			return nil, err
		}
		if _, passed := optionalFloatKwarg(kwargs, "volume"); passed {
			base.Job().Log.Info("pid_morbidostat: volume kwarg is ignored; per-tick volume is derived from target_growth_rate, VIAL_VOLUME and duration")
		}
		controller := pid.New(pidMorbidostatKp, pidMorbidostatKi, pidMorbidostatKd, targetGrowthRate, 0, 1)
		controller.SetTelemetryPublisher(telemetry.Adapter{Pub: base.Job().Pub})
		return &PIDMorbidostat{
			Base:             base,
			TargetGrowthRate: atomic.NewFloat64(targetGrowthRate),
			TargetOD:         atomic.NewFloat64(targetOD),
			DurationMinutes:  atomic.NewFloat64(duration),
			PID:              controller,
		}, nil
	})
}

// PIDMorbidostat apportions each tick's dose between alt media and fresh
// media according to a PID loop on growth rate (spec §4.6
// "PIDMorbidostat(...)"). TargetGrowthRate, TargetOD and DurationMinutes are
// atomic so the job's editable settings can update them concurrently with
// Execute running on the driver's tick goroutine.
type PIDMorbidostat struct {
	*Base
	TargetGrowthRate *atomic.Float64
	TargetOD         *atomic.Float64
	DurationMinutes  *atomic.Float64
	PID              *pid.Controller
}

func (p *PIDMorbidostat) Execute(ctx context.Context, counter int) (pump.Event, error) {
	od, _ := p.Sensors.LatestOD()
	targetOD := p.TargetOD.Load()
	if od <= 0.75*targetOD {
		return pump.NoEvent{ReasonText: "od below minimum"}, nil
	}

	duration := p.DurationMinutes.Load()
	growthRate, _ := p.Sensors.LatestGrowthRate()
	f := p.PID.Update(growthRate, duration)

	targetGrowthRate := p.TargetGrowthRate.Load()
	vol := targetGrowthRate * vialVolumeML * (duration / 60)
	if od > 1.1*targetOD {
		vol *= 2
		p.logf("pid_morbidostat: od %.4f exceeds 1.1x target, doubling dose volume to %.4f", od, vol)
	}

	alt := f * vol
	media := (1 - f) * vol
	waste := vol

	if err := p.Pump.ExecuteIOAction(ctx, alt, media, waste, true); err != nil {
		return nil, err
	}
	return pump.AltMediaEvent{ReasonText: "PID-regulated alt-media dose", MediaML: media, AltMediaML: alt}, nil
}

// SetTargetGrowthRate implements TargetGrowthRateSetter, keeping the PID
// controller's setpoint synchronized.
func (p *PIDMorbidostat) SetTargetGrowthRate(v float64) {
	p.TargetGrowthRate.Store(v)
	p.PID.SetSetpoint(v)
}

// SetTargetOD implements TargetODSetter.
func (p *PIDMorbidostat) SetTargetOD(v float64) { p.TargetOD.Store(v) }

// SetDurationMinutes implements DurationSetter. Volume has no setter here:
// per-tick volume is derived from target_growth_rate/duration, not stored
// (see the "volume kwarg is ignored" log in the factory above).
func (p *PIDMorbidostat) SetDurationMinutes(v float64) { p.DurationMinutes.Store(v) }
