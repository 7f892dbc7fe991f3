package control

import (
	"context"

	"go.uber.org/atomic"

	"pioreactor.com/dosing/internal/pump"
)

func init() {
	Register("morbidostat", func(base *Base, kwargs map[string]string) (Algorithm, error) {
		targetOD, err := floatKwarg(kwargs, "target_od")
		if err != nil {
			return nil, err
		}
		volume, err := floatKwarg(kwargs, "volume")
		if err != nil {
			return nil, err
		}
		return &Morbidostat{Base: base, TargetOD: atomic.NewFloat64(targetOD), Volume: atomic.NewFloat64(volume)}, nil
	})
}

// Morbidostat doses alt media (selective pressure) when OD is monotonically
// rising above target, otherwise dilutes with fresh media (spec §4.6
// "Morbidostat(target_od, volume)"). TargetOD and Volume are atomic so the
// job's target_od/volume editable settings can update them concurrently.
type Morbidostat struct {
	*Base
	TargetOD *atomic.Float64
	Volume   *atomic.Float64
}

func (m *Morbidostat) Execute(ctx context.Context, counter int) (pump.Event, error) {
	od, _ := m.Sensors.LatestOD()
	previousOD, havePrevious := m.Sensors.PreviousOD()

	if !havePrevious {
		return pump.NoEvent{ReasonText: "Skip first event since we don't have a previous OD measurement"}, nil
	}

	targetOD := m.TargetOD.Load()
	volume := m.Volume.Load()

	if od >= targetOD && od >= previousOD {
		if err := m.Pump.ExecuteIOAction(ctx, volume, 0, volume, true); err != nil {
			return nil, err
		}
		return pump.AltMediaEvent{ReasonText: "growth outpaces dilution", MediaML: 0, AltMediaML: volume}, nil
	}

	if err := m.Pump.ExecuteIOAction(ctx, 0, volume, volume, true); err != nil {
		return nil, err
	}
	return pump.DilutionEvent{ReasonText: "od not rising above target"}, nil
}

// SetTargetOD implements TargetODSetter.
func (m *Morbidostat) SetTargetOD(v float64) { m.TargetOD.Store(v) }

// SetVolume implements VolumeSetter.
func (m *Morbidostat) SetVolume(v float64) { m.Volume.Store(v) }
