package fleet

import (
	"context"
	"fmt"

	"github.com/satori/go.uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/config"
	"pioreactor.com/dosing/internal/identity"
)

// ErrNotLeader guards the fleet operations to the elected leader node (spec
// §4.8 "Only a node elected as leader may run these; workers refuse.").
var ErrNotLeader = fmt.Errorf("fleet: this node is not the leader")

// Dispatcher fans fleet operations out to units over a bounded worker pool,
// one task per unit, grounded on the other_examples worker-pool idiom
// (sourcegraph/conc/pool.New().WithMaxGoroutines), with per-unit errors
// aggregated via go.uber.org/multierr rather than failing fast.
type Dispatcher struct {
	Fleet     config.FleetConfig
	Runner    Runner
	Transport bus.Transport
}

// requireLeader is called at the top of every exported fleet operation.
func (d *Dispatcher) requireLeader() error {
	if !d.Fleet.Leader {
		return ErrNotLeader
	}
	return nil
}

func (d *Dispatcher) maxGoroutines() int {
	if d.Fleet.MaxConcurrent > 0 {
		return d.Fleet.MaxConcurrent
	}
	return 8
}

// Run launches a detached worker job on each unit via `pio run <job>`
// (spec §4.8 "run <job> [flags…]").
func (d *Dispatcher) Run(ctx context.Context, jobName string, flags []string, units []string) error {
	if err := d.requireLeader(); err != nil {
		return err
	}

	command := "pio run " + jobName
	for _, f := range flags {
		command += " " + f
	}

	return d.fanOut(ctx, units, func(ctx context.Context, unit string) error {
		_, err := d.Runner.RunCommand(ctx, unit, command)
		return err
	})
}

// Kill sends a termination command for each job on each unit (spec §4.8
// "kill <job…>").
func (d *Dispatcher) Kill(ctx context.Context, jobs []string, units []string) error {
	if err := d.requireLeader(); err != nil {
		return err
	}

	command := "pio kill"
	for _, j := range jobs {
		command += " " + j
	}

	return d.fanOut(ctx, units, func(ctx context.Context, unit string) error {
		_, err := d.Runner.RunCommand(ctx, unit, command)
		return err
	})
}

// UpdateSettings publishes attr=value to each unit's …/<job>/<attr>/set
// topic over the bus, rather than SSH — the attribute-set protocol is a bus
// operation even when dispatched fleet-wide (spec §4.8 "update-settings
// <job> --<attr> <val>…").
func (d *Dispatcher) UpdateSettings(ctx context.Context, experiment, jobName, attr, value string, units []string) error {
	if err := d.requireLeader(); err != nil {
		return err
	}

	return d.fanOut(ctx, units, func(ctx context.Context, unit string) error {
		id := identity.Identity{Unit: unit, Experiment: experiment}
		topic := id.Topic(jobName, attr, "set")
		return d.Transport.Publish(ctx, topic, []byte(value), bus.ExactlyOnce, false)
	})
}

// SyncConfigs copies the global config plus each unit's per-host config to
// that unit's configuration directory (spec §4.8 "sync-configs").
func (d *Dispatcher) SyncConfigs(ctx context.Context, globalConfigPath string, perUnitConfigPath func(unit string) string, remoteDir string, units []string) error {
	if err := d.requireLeader(); err != nil {
		return err
	}

	return d.fanOut(ctx, units, func(ctx context.Context, unit string) error {
		if err := d.Runner.PutFile(ctx, unit, globalConfigPath, remoteDir+"/config.ini"); err != nil {
			return fmt.Errorf("sync global config to %s: %w", unit, err)
		}
		local := perUnitConfigPath(unit)
		if local == "" {
			return nil
		}
		if err := d.Runner.PutFile(ctx, unit, local, remoteDir+"/unit_config.ini"); err != nil {
			return fmt.Errorf("sync unit config to %s: %w", unit, err)
		}
		return nil
	})
}

// fanOut runs task once per expanded unit over a bounded pool. Every call
// gets its own request ID so a unit's failure can be correlated back to one
// dispatch invocation across the leader's logs, even though the ID itself
// never appears on the bus.
func (d *Dispatcher) fanOut(ctx context.Context, units []string, task func(ctx context.Context, unit string) error) error {
	units = ExpandUnits(d.Fleet, units)
	requestID := uuid.NewV4()

	p := pool.New().WithMaxGoroutines(d.maxGoroutines())
	errs := make([]error, len(units))

	for i, unit := range units {
		i, unit := i, unit
		p.Go(func() {
			if err := task(ctx, unit); err != nil {
				errs[i] = fmt.Errorf("request %s unit %s: %w", requestID, unit, err)
			}
		})
	}
	p.Wait()

	var combined error
	for _, err := range errs {
		combined = multierr.Append(combined, err)
	}
	return combined
}
