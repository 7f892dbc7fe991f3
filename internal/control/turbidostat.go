package control

import (
	"context"

	"go.uber.org/atomic"

	"pioreactor.com/dosing/internal/pump"
)

func init() {
	Register("turbidostat", func(base *Base, kwargs map[string]string) (Algorithm, error) {
		targetOD, err := floatKwarg(kwargs, "target_od")
		if err != nil {
			return nil, err
		}
		volume, err := floatKwarg(kwargs, "volume")
		if err != nil {
			return nil, err
		}
		return &Turbidostat{Base: base, TargetOD: atomic.NewFloat64(targetOD), Volume: atomic.NewFloat64(volume)}, nil
	})
}

// Turbidostat doses a fixed volume of media whenever OD crosses the target
// (spec §4.6 "Turbidostat(target_od, volume)"). TargetOD and Volume are
// atomic so the job's target_od/volume editable settings (spec §3.6) can
// update them from a concurrent bus-delivery goroutine while Execute reads
// them from the driver's tick goroutine.
type Turbidostat struct {
	*Base
	TargetOD *atomic.Float64
	Volume   *atomic.Float64
}

func (t *Turbidostat) Execute(ctx context.Context, counter int) (pump.Event, error) {
	od, _ := t.Sensors.LatestOD()
	targetOD := t.TargetOD.Load()
	if od < targetOD {
		return pump.NoEvent{ReasonText: "od below target"}, nil
	}

	volume := t.Volume.Load()
	if err := t.Pump.ExecuteIOAction(ctx, 0, volume, volume, true); err != nil {
		return nil, err
	}
	return pump.DilutionEvent{ReasonText: "od at or above target"}, nil
}

// SetTargetOD implements TargetODSetter.
func (t *Turbidostat) SetTargetOD(v float64) { t.TargetOD.Store(v) }

// SetVolume implements VolumeSetter.
func (t *Turbidostat) SetVolume(v float64) { t.Volume.Store(v) }
