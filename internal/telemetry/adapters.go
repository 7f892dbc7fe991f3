// Package telemetry adapts the PID controller and pump actuator's narrow
// publisher interfaces onto a job's bus.PubClient, picking the QoS and
// payload encoding spec §6 assigns to each wire record.
package telemetry

import (
	"context"
	"encoding/json"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/pid"
	"pioreactor.com/dosing/internal/pump"
)

// Adapter implements pid.TelemetryPublisher and pump.Publisher over a
// single job's PubClient.
type Adapter struct {
	Pub *bus.PubClient
}

// PublishPIDLog sends a compact-JSON pid_log record, at-most-once (spec §6
// "telemetry uses at-most-once").
func (a Adapter) PublishPIDLog(t pid.Telemetry) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return a.Pub.Publish(context.Background(), bus.AtMostOnce, false, payload, "pid_log")
}

// PublishIOBatched sends the pre-split io_batched record, exactly-once
// (spec §6 "Lifecycle, io_batched, and state writes use exactly-once").
func (a Adapter) PublishIOBatched(r pump.IOBatchedRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return a.Pub.Publish(context.Background(), bus.ExactlyOnce, false, payload, "io_batched")
}

// PublishDosingEvent sends one dosing_events record per actuated step,
// at-most-once — spec §6 enumerates its payload shape without naming a QoS
// tier for it; we classify it alongside telemetry rather than the
// exactly-once lifecycle tier, since a missed dosing_events record has no
// correctness impact (ExecuteIOAction's own conservation check is
// authoritative, not this notification).
func (a Adapter) PublishDosingEvent(e pump.DosingEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return a.Pub.Publish(context.Background(), bus.AtMostOnce, false, payload, "dosing_events")
}
