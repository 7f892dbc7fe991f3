// Package pid implements a discrete PID controller with exposed internals,
// matching spec §4.2. Grounded on the teacher's small single-purpose
// components (dispatch_strategy.go's tight interface + struct style): no
// example repo in the pack implements PID control, so this is a fresh
// component in the teacher's idiom rather than an adaptation.
package pid

import "sync"

// Telemetry is published after every Update, per spec §4.2's field list.
type Telemetry struct {
	Setpoint       float64 `json:"setpoint"`
	OutputLimitLB  float64 `json:"output_limits_lb"`
	OutputLimitUB  float64 `json:"output_limits_ub"`
	Kp             float64 `json:"Kp"`
	Ki             float64 `json:"Ki"`
	Kd             float64 `json:"Kd"`
	Integral       float64 `json:"integral"`
	Proportional   float64 `json:"proportional"`
	Derivative     float64 `json:"derivative"`
	LatestInput    float64 `json:"latest_input"`
	LatestOutput   float64 `json:"latest_output"`
}

// TelemetryPublisher receives one Telemetry blob per Update call.
type TelemetryPublisher interface {
	PublishPIDLog(Telemetry) error
}

// Controller is a discrete PID loop. Gains are fixed at construction but
// exposed for inspection; gains may be negative (PIDMorbidostat uses
// negative gains so rising growth rate reduces the alt-media fraction).
// sample_time is intentionally not modeled — the caller supplies dt on every
// Update, per spec §4.2.
type Controller struct {
	Kp, Ki, Kd     float64
	Setpoint       float64
	OutputLowerLimit float64
	OutputUpperLimit float64

	mu           sync.Mutex
	integral     float64
	proportional float64
	derivative   float64
	lastInput    float64
	lastOutput   float64
	hasLastInput bool

	telemetry TelemetryPublisher
}

// New constructs a Controller with the given gains, setpoint and output
// clamp range.
func New(kp, ki, kd, setpoint, lowerLimit, upperLimit float64) *Controller {
	return &Controller{
		Kp: kp, Ki: ki, Kd: kd,
		Setpoint:         setpoint,
		OutputLowerLimit: lowerLimit,
		OutputUpperLimit: upperLimit,
	}
}

// SetTelemetryPublisher wires a publisher that receives a Telemetry blob
// after every Update call (spec §4.2 "After each update, publish...").
func (c *Controller) SetTelemetryPublisher(p TelemetryPublisher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry = p
}

// SetSetpoint updates the setpoint future Update calls regulate toward,
// without resetting accumulated integral or derivative state.
func (c *Controller) SetSetpoint(setpoint float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Setpoint = setpoint
}

// Update computes the clamped PID output for input, using dt (caller-owned
// units — minutes, not seconds, when driven by PIDMorbidostat per spec §9).
func (c *Controller) Update(input, dt float64) float64 {
	c.mu.Lock()

	err := c.Setpoint - input
	c.proportional = c.Kp * err
	c.integral += c.Ki * err * dt
	c.derivative = 0
	if c.hasLastInput && dt != 0 {
		// derivative on measurement, not on error, to avoid derivative kick
		// on setpoint changes.
		c.derivative = -c.Kd * (input - c.lastInput) / dt
	}
	c.hasLastInput = true
	c.lastInput = input

	output := c.proportional + c.integral + c.derivative
	output = clamp(output, c.OutputLowerLimit, c.OutputUpperLimit)
	c.lastOutput = output

	telemetry := Telemetry{
		Setpoint:      c.Setpoint,
		OutputLimitLB: c.OutputLowerLimit,
		OutputLimitUB: c.OutputUpperLimit,
		Kp:            c.Kp,
		Ki:            c.Ki,
		Kd:            c.Kd,
		Integral:      c.integral,
		Proportional:  c.proportional,
		Derivative:    c.derivative,
		LatestInput:   input,
		LatestOutput:  output,
	}
	publisher := c.telemetry
	c.mu.Unlock()

	if publisher != nil {
		_ = publisher.PublishPIDLog(telemetry)
	}
	return output
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
