package control

import "go.uber.org/atomic"

// SensorCache holds the two sensor readings a ControlAlgorithm decides on:
// optical density and growth rate, each with its previous value (spec §4.5
// "Subscribes at construction to..."). Grounded on the teacher's use of
// go.uber.org/atomic for hot-path counters (internal/task.Task's processed
// count); used here because sensor updates arrive on a bus-delivery
// goroutine while Run reads them from the driver's tick goroutine.
type SensorCache struct {
	od         atomic.Float64
	odCount    atomic.Int32
	previousOD atomic.Float64

	growthRate atomic.Float64
	grCount    atomic.Int32
	previousGR atomic.Float64
}

// SetOD records a new optical-density reading, shifting the previous value
// down first.
func (c *SensorCache) SetOD(v float64) {
	if c.odCount.Load() > 0 {
		c.previousOD.Store(c.od.Load())
	}
	c.od.Store(v)
	c.odCount.Inc()
}

// SetGrowthRate records a new growth-rate reading, shifting the previous
// value down first.
func (c *SensorCache) SetGrowthRate(v float64) {
	if c.grCount.Load() > 0 {
		c.previousGR.Store(c.growthRate.Load())
	}
	c.growthRate.Store(v)
	c.grCount.Inc()
}

// LatestOD returns the current OD reading and whether one has arrived yet.
func (c *SensorCache) LatestOD() (float64, bool) {
	return c.od.Load(), c.odCount.Load() > 0
}

// PreviousOD returns the prior OD reading and whether a second reading has
// arrived yet to populate it (spec §4.6 Morbidostat "On first tick
// (previous_od = null)").
func (c *SensorCache) PreviousOD() (float64, bool) {
	return c.previousOD.Load(), c.odCount.Load() > 1
}

// LatestGrowthRate returns the current growth-rate reading and whether one
// has arrived yet.
func (c *SensorCache) LatestGrowthRate() (float64, bool) {
	return c.growthRate.Load(), c.grCount.Load() > 0
}

// PreviousGrowthRate returns the prior growth-rate reading and whether a
// second reading has arrived yet to populate it.
func (c *SensorCache) PreviousGrowthRate() (float64, bool) {
	return c.previousGR.Load(), c.grCount.Load() > 1
}

// ResetOD clears the OD reading and its previous value, as if no OD message
// had arrived yet — used when the subscribed sensor changes, so a reading
// from the old sensor is never mistaken for one from the new sensor.
func (c *SensorCache) ResetOD() {
	c.od.Store(0)
	c.previousOD.Store(0)
	c.odCount.Store(0)
}

// Ready reports whether both sensors have delivered at least one reading
// (spec §4.5 run step 2: "If either sensor reading is missing...").
func (c *SensorCache) Ready() bool {
	return c.odCount.Load() > 0 && c.grCount.Load() > 0
}
