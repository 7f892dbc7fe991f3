package control

import (
	"context"

	"go.uber.org/atomic"

	"pioreactor.com/dosing/internal/pid"
	"pioreactor.com/dosing/internal/pump"
	"pioreactor.com/dosing/internal/telemetry"
)

// The pidTurbidostatK* constants are the fixed gains spec §9 (Open Question i)
// resolves this algorithm to: "PID(0.07, 0.05, 0.2, setpoint=target_od,
// limits=(0,1))".
const (
	pidTurbidostatKp = 0.07
	pidTurbidostatKi = 0.05
	pidTurbidostatKd = 0.2
)

func init() {
	Register("pid_turbidostat", func(base *Base, kwargs map[string]string) (Algorithm, error) {
		targetOD, err := floatKwarg(kwargs, "target_od")
		if err != nil {
			return nil, err
		}
		volume, err := floatKwarg(kwargs, "volume")
		if err != nil {
			return nil, err
		}
		controller := pid.New(pidTurbidostatKp, pidTurbidostatKi, pidTurbidostatKd, targetOD, 0, 1)
		controller.SetTelemetryPublisher(telemetry.Adapter{Pub: base.Job().Pub})
		return &PIDTurbidostat{Base: base, TargetOD: atomic.NewFloat64(targetOD), Volume: atomic.NewFloat64(volume), PID: controller}, nil
	})
}

// PIDTurbidostat asymptotically regulates dilution volume toward zero as OD
// approaches target (spec §4.6 "PIDTurbidostat(target_od, volume)").
// TargetOD and Volume are atomic so the job's target_od/volume editable
// settings can update them concurrently; changing TargetOD also re-points
// the PID controller's setpoint.
type PIDTurbidostat struct {
	*Base
	TargetOD *atomic.Float64
	Volume   *atomic.Float64
	PID      *pid.Controller
}

func (p *PIDTurbidostat) Execute(ctx context.Context, counter int) (pump.Event, error) {
	od, _ := p.Sensors.LatestOD()
	targetOD := p.TargetOD.Load()
	minOD := 0.75 * targetOD
	if od <= minOD {
		return pump.NoEvent{ReasonText: "od below minimum"}, nil
	}

	output := p.PID.Update(od, 1)
	vol := (1 - output) * p.Volume.Load()
	if vol == 0 {
		return pump.NoEvent{ReasonText: "PID output saturated at setpoint"}, nil
	}

	if err := p.Pump.ExecuteIOAction(ctx, 0, vol, vol, true); err != nil {
		return nil, err
	}
	return pump.DilutionEvent{ReasonText: "PID-regulated dilution"}, nil
}

// SetTargetOD implements TargetODSetter, keeping the PID controller's
// internal setpoint synchronized so the next Update uses it.
func (p *PIDTurbidostat) SetTargetOD(v float64) {
	p.TargetOD.Store(v)
	p.PID.SetSetpoint(v)
}

// SetVolume implements VolumeSetter.
func (p *PIDTurbidostat) SetVolume(v float64) { p.Volume.Store(v) }
