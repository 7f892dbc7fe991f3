package control_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/control"
	"pioreactor.com/dosing/internal/identity"
	"pioreactor.com/dosing/internal/job"
	"pioreactor.com/dosing/internal/pump"
)

type fakeDriver struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeDriver) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, name)
}

func (f *fakeDriver) AddMediaML(ctx context.Context, ml float64) error     { f.record("add_media"); return nil }
func (f *fakeDriver) AddAltMediaML(ctx context.Context, ml float64) error  { f.record("add_alt_media"); return nil }
func (f *fakeDriver) RemoveWasteML(ctx context.Context, ml float64) error  { f.record("remove_waste"); return nil }
func (f *fakeDriver) RemoveWasteDuration(ctx context.Context, d time.Duration) error {
	f.record("remove_waste_duration")
	return nil
}

type fakePublisher struct{}

func (fakePublisher) PublishIOBatched(pump.IOBatchedRecord) error { return nil }
func (fakePublisher) PublishDosingEvent(pump.DosingEvent) error   { return nil }

func newTestJobAndBase(t *testing.T, name string) (*job.Job, *control.Base) {
	t.Helper()
	transport := bus.NewMemTransport(1, 32)
	t.Cleanup(func() { transport.Close() })

	log := logrus.NewEntry(logrus.New())
	j, err := job.New(job.Options{
		Identity:           identity.Identity{Unit: "unit1", Experiment: "exp1"},
		Name:               name,
		Transport:          transport,
		Log:                log,
		SkipDuplicateCheck: true,
	})
	require.NoError(t, err)

	driver := &fakeDriver{}
	actuator := pump.NewActuator(driver, fakePublisher{}, name)
	actuator.SetSleepFunc(func(time.Duration) {})

	base, err := control.NewBase(j, "135/A", actuator, nil)
	require.NoError(t, err)
	base.SetSleepFunc(func(time.Duration) {})
	return j, base
}

func TestSilentNeverActuates(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_silent")
	algo, err := control.Get("silent")
	require.NoError(t, err)
	instance, err := algo(base, nil)
	require.NoError(t, err)

	event, err := base.Run(context.Background(), 1, instance)
	require.NoError(t, err)
	assert.IsType(t, pump.NoEvent{}, event)
}

func TestTurbidostatDosesAboveTarget(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_turbidostat")

	factory, err := control.Get("turbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "1.0", "volume": "2.0"})
	require.NoError(t, err)

	base.Sensors.SetOD(1.5)
	base.Sensors.SetGrowthRate(0.1)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.DilutionEvent{}, event)
}

func TestTurbidostatNoEventBelowTarget(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_turbidostat2")

	factory, err := control.Get("turbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "2.0", "volume": "2.0"})
	require.NoError(t, err)

	base.Sensors.SetOD(0.5)
	base.Sensors.SetGrowthRate(0.1)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.NoEvent{}, event)
}

func TestMorbidostatFirstTickIsNoEvent(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_morbidostat")

	factory, err := control.Get("morbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "1.0", "volume": "2.0"})
	require.NoError(t, err)

	base.Sensors.SetOD(1.5)
	base.Sensors.SetGrowthRate(0.1)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	require.IsType(t, pump.NoEvent{}, event)
	assert.Equal(t, "Skip first event since we don't have a previous OD measurement", event.(pump.NoEvent).ReasonText)
}

func TestMorbidostatDosesAltMediaOnMonotonicRise(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_morbidostat2")

	factory, err := control.Get("morbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "1.0", "volume": "2.0"})
	require.NoError(t, err)

	base.Sensors.SetOD(1.2)
	base.Sensors.SetGrowthRate(0.1)
	_, err = base.Run(context.Background(), 1, algo) // seeds previous_od
	require.NoError(t, err)

	base.Sensors.SetOD(1.4) // rose further, still above target
	event, err := base.Run(context.Background(), 2, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.AltMediaEvent{}, event)
}

func TestPIDTurbidostatNoEventBelowMinimum(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_pid_turb")

	factory, err := control.Get("pid_turbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "1.0", "volume": "2.0"})
	require.NoError(t, err)

	base.Sensors.SetOD(0.5) // below 0.75*1.0
	base.Sensors.SetGrowthRate(0.1)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.NoEvent{}, event)
}

func TestPIDMorbidostatDosesProportionally(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_pid_morb")

	factory, err := control.Get("pid_morbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{
		"target_growth_rate": "0.1",
		"target_od":          "1.0",
		"duration":           "20",
	})
	require.NoError(t, err)

	base.Sensors.SetOD(1.0) // at target, above 0.75x minimum
	base.Sensors.SetGrowthRate(0.05)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.AltMediaEvent{}, event)
}

func TestUnknownModeIsFatalAssertion(t *testing.T) {
	_, err := control.Get("not_a_real_mode")
	require.ErrorIs(t, err, control.ErrUnknownMode)
}

func TestMorbidostatSetTargetODTakesEffectOnNextTick(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_morb")

	factory, err := control.Get("morbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "1.0", "volume": "1.0"})
	require.NoError(t, err)

	setter, ok := algo.(control.TargetODSetter)
	require.True(t, ok, "morbidostat must implement TargetODSetter")

	base.Sensors.SetOD(0.9)
	base.Sensors.SetOD(1.0) // now has a previous reading, od >= previousOD
	base.Sensors.SetGrowthRate(0.1)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.AltMediaEvent{}, event, "od above target_od=1.0 should trigger alt media dosing")

	// Raising target_od above the current reading should flip the next
	// tick's decision to a dilution event instead.
	setter.SetTargetOD(5.0)
	base.Sensors.SetOD(1.0)

	event, err = base.Run(context.Background(), 2, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.DilutionEvent{}, event)
}

func TestMorbidostatSetVolumeTakesEffectOnNextTick(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_morb_vol")

	factory, err := control.Get("morbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{"target_od": "1.0", "volume": "1.0"})
	require.NoError(t, err)

	setter, ok := algo.(control.VolumeSetter)
	require.True(t, ok, "morbidostat must implement VolumeSetter")
	setter.SetVolume(3.0)

	base.Sensors.SetOD(0.1)
	base.Sensors.SetOD(0.1)
	base.Sensors.SetGrowthRate(0.1)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.DilutionEvent{}, event)
}

func TestPIDMorbidostatSetTargetGrowthRateSyncsPID(t *testing.T) {
	_, base := newTestJobAndBase(t, "dosing_pid_morb_setter")

	factory, err := control.Get("pid_morbidostat")
	require.NoError(t, err)
	algo, err := factory(base, map[string]string{
		"target_growth_rate": "0.1",
		"target_od":          "1.0",
		"duration":           "20",
	})
	require.NoError(t, err)

	grSetter, ok := algo.(control.TargetGrowthRateSetter)
	require.True(t, ok, "pid_morbidostat must implement TargetGrowthRateSetter")
	odSetter, ok := algo.(control.TargetODSetter)
	require.True(t, ok, "pid_morbidostat must implement TargetODSetter")
	durSetter, ok := algo.(control.DurationSetter)
	require.True(t, ok, "pid_morbidostat must implement DurationSetter")

	// Should not panic and should be independently settable.
	grSetter.SetTargetGrowthRate(0.2)
	odSetter.SetTargetOD(2.0)
	durSetter.SetDurationMinutes(30)

	base.Sensors.SetOD(2.5) // above 0.75*target_od=1.5, so the tick proceeds
	base.Sensors.SetGrowthRate(0.3)

	event, err := base.Run(context.Background(), 1, algo)
	require.NoError(t, err)
	assert.IsType(t, pump.AltMediaEvent{}, event)

	// pid_morbidostat's volume is derived, not stored — it must not claim
	// VolumeSetter.
	_, hasVolumeSetter := algo.(control.VolumeSetter)
	assert.False(t, hasVolumeSetter, "pid_morbidostat volume is derived and must not be settable")
}

func TestBaseSetSensorResubscribesAndResetsCachedOD(t *testing.T) {
	transport := bus.NewMemTransport(1, 32)
	defer transport.Close()

	id := identity.Identity{Unit: "unit1", Experiment: "exp1"}
	log := logrus.NewEntry(logrus.New())
	j, err := job.New(job.Options{
		Identity:           id,
		Name:               "dosing_sensor_switch",
		Transport:          transport,
		Log:                log,
		SkipDuplicateCheck: true,
	})
	require.NoError(t, err)

	driver := &fakeDriver{}
	actuator := pump.NewActuator(driver, fakePublisher{}, "dosing_sensor_switch")
	actuator.SetSleepFunc(func(time.Duration) {})

	base, err := control.NewBase(j, "135/A", actuator, nil)
	require.NoError(t, err)
	base.SetSleepFunc(func(time.Duration) {})

	base.Sensors.SetOD(0.5)
	base.Sensors.SetGrowthRate(0.1)
	require.True(t, base.Sensors.Ready())
	assert.Equal(t, "135/A", base.SensorName())

	require.NoError(t, base.SetSensor(context.Background(), "90/A"))
	assert.Equal(t, "90/A", base.SensorName())

	// The cached OD reading from the old sensor must not survive the
	// switch: Ready() should go false until the new sensor delivers a
	// reading on its own topic.
	assert.False(t, base.Sensors.Ready())

	// A reading published on the OLD sensor's topic must no longer reach
	// the cache.
	require.NoError(t, transport.Publish(context.Background(), id.Topic("od_reading", "od_filtered", "135/A"), []byte("0.9"), bus.AtMostOnce, false))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, base.Sensors.Ready(), "old sensor's topic must be unsubscribed after SetSensor")

	// A reading on the NEW sensor's topic must reach the cache.
	require.NoError(t, transport.Publish(context.Background(), id.Topic("od_reading", "od_filtered", "90/A"), []byte("0.8"), bus.AtMostOnce, false))

	require.Eventually(t, func() bool {
		return base.Sensors.Ready()
	}, time.Second, 10*time.Millisecond, "new sensor's topic must be subscribed after SetSensor")
}
