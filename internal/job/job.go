// Package job implements BackgroundJob: the lifecycle state machine,
// editable-settings protocol, duplicate-instance guard and graceful-shutdown
// machinery every dosing job is built on (spec §4.4). Grounded on the
// teacher's internal/task.Task — a mutex-protected state machine with
// atomic hot-reloadable settings — generalized from packet-capture-task
// lifecycle to the job's init/ready/sleeping/disconnected states.
package job

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/identity"
)

// OnDisconnectFunc is the subclass hook run when the job transitions to
// Disconnected; exceptions are swallowed and logged per spec §4.4.
type OnDisconnectFunc func(ctx context.Context) error

// Job is a BackgroundJob instance: one per OS process (spec §5 "Scheduling
// model").
type Job struct {
	Identity identity.Identity
	Name     string
	// RunID distinguishes this process's lifetime from any prior run of
	// the same job on the same unit in log correlation; it never appears
	// on the wire.
	RunID uuid.UUID

	mu    sync.Mutex
	state State

	Pub       *bus.PubClient
	Sub       *bus.SubClient
	transport bus.Transport

	Settings SettingsTable

	Log *logrus.Entry

	onDisconnect OnDisconnectFunc
	exitFunc     func(code int)

	sigCh chan os.Signal
}

// Options configures New.
type Options struct {
	Identity     identity.Identity
	Name         string
	Transport    bus.Transport
	Settings     SettingsTable
	Log          *logrus.Entry
	OnDisconnect OnDisconnectFunc
	// SkipDuplicateCheck disables the /proc scan, for tests.
	SkipDuplicateCheck bool
}

// New constructs a Job in the Init state. It fails fatally (returns
// ErrDuplicateInstance) if another instance of name is already running on
// this unit (spec §4.4 "Duplicate-instance guard").
func New(opts Options) (*Job, error) {
	if !opts.SkipDuplicateCheck {
		if err := checkDuplicateInstance(opts.Name); err != nil {
			return nil, err
		}
	}

	if opts.Settings == nil {
		opts.Settings = SettingsTable{}
	}

	runID := uuid.NewV4()
	log := opts.Log
	if log != nil {
		log = log.WithField("run_id", runID.String())
	}

	j := &Job{
		Identity:     opts.Identity,
		Name:         opts.Name,
		RunID:        runID,
		Settings:     opts.Settings,
		Log:          log,
		onDisconnect: opts.OnDisconnect,
		exitFunc:     os.Exit,
		sigCh:        make(chan os.Signal, 1),
	}

	if err := j.enterInit(opts.Transport); err != nil {
		return nil, err
	}
	return j, nil
}

// enterInit is the `init` entry action (spec §4.4 table). Only New calls
// it: SetState(Init) records and publishes the state but does not re-run
// this action, so the bus clients are not recreated and $properties is not
// re-declared on a later return to Init.
func (j *Job) enterInit(transport bus.Transport) error {
	j.mu.Lock()
	reentering := j.transport != nil
	j.mu.Unlock()

	if reentering {
		// "If re-entered off-main-thread, stop and disconnect prior bus
		// clients, recreate both."
		_ = j.transport.Close()
	}

	j.mu.Lock()
	j.transport = transport
	j.Pub = bus.NewPubClient(j.Identity, j.Name, transport)
	j.Sub = bus.NewSubClient(j.Identity, j.Name, transport)
	j.state = Init
	j.mu.Unlock()

	ctx := context.Background()

	// Declare $properties: CSV of editable settings, retained,
	// at-least-once.
	names := j.Settings.Names()
	names = append(names, "state")
	csv := joinCSV(dedupe(names))
	if err := j.Pub.Publish(ctx, bus.AtLeastOnce, true, []byte(csv), "$properties"); err != nil {
		return fmt.Errorf("job: publish $properties: %w", err)
	}

	// For each setting, publish …/<s>/$settable, retained — true only when a
	// Set hook is actually registered (spec §4.4 table, `init` row; "state"
	// is always settable via set_state).
	for _, name := range dedupe(names) {
		if err := j.publishSettable(ctx, name); err != nil {
			return err
		}
	}

	// Register general passive listeners routing …/+/set (own unit and
	// broadcast) to attribute updates.
	if err := j.Sub.Subscribe(ctx, j.Identity.Topic(j.Name, "+", "set"), bus.ExactlyOnce, false, j.handleSet); err != nil {
		return fmt.Errorf("job: subscribe attribute-set: %w", err)
	}
	if err := j.Sub.Subscribe(ctx, j.Identity.BroadcastTopic(j.Name, "+", "set"), bus.ExactlyOnce, false, j.handleSet); err != nil {
		return fmt.Errorf("job: subscribe broadcast attribute-set: %w", err)
	}

	return nil
}

// AddSetting registers an additional editable setting after construction
// and republishes $properties plus the new setting's $settable flag.
// Algorithm-specific settings (volume, target_od, target_growth_rate,
// sensor — spec §3.6 "For ControlAlgorithm, the set contains at least
// {state, volume, target_od, target_growth_rate, sensor, active}") are
// only known once the mode is resolved, which happens after the job
// itself is constructed; this lets them join the declared set without
// forcing an artificial construction order.
func (j *Job) AddSetting(name string, s Setting) error {
	j.mu.Lock()
	j.Settings[name] = s
	names := append(j.Settings.Names(), "state")
	j.mu.Unlock()

	ctx := context.Background()
	csv := joinCSV(dedupe(names))
	if err := j.Pub.Publish(ctx, bus.AtLeastOnce, true, []byte(csv), "$properties"); err != nil {
		return fmt.Errorf("job: publish $properties: %w", err)
	}
	return j.publishSettable(ctx, name)
}

// publishSettable publishes whether name is remotely writable: true only
// when its Setting has a Set hook (or it's the always-settable "state"),
// false otherwise — never advertising $settable=true for an attribute
// handleSet would silently drop a write to.
func (j *Job) publishSettable(ctx context.Context, name string) error {
	settable := name == "state"
	if !settable {
		j.mu.Lock()
		setting, ok := j.Settings[name]
		j.mu.Unlock()
		settable = ok && setting.Set != nil
	}

	value := "false"
	if settable {
		value = "true"
	}
	if err := j.Pub.Publish(ctx, bus.AtLeastOnce, true, []byte(value), name, "$settable"); err != nil {
		return fmt.Errorf("job: publish %s/$settable: %w", name, err)
	}
	return nil
}

// SetExitFunc overrides the process-exit hook invoked on disconnect
// (defaults to os.Exit); tests substitute a recorder here.
func (j *Job) SetExitFunc(f func(code int)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.exitFunc = f
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// SetState drives the lifecycle entry action for to (spec §4.4 table). A
// write to …/state/set invokes this via set_state.
func (j *Job) SetState(ctx context.Context, to State) error {
	j.mu.Lock()
	from := j.state
	j.mu.Unlock()

	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	switch to {
	case Ready:
		j.mu.Lock()
		j.state = Ready
		j.mu.Unlock()
		j.Log.Info("ready")
	case Sleeping:
		j.mu.Lock()
		j.state = Sleeping
		j.mu.Unlock()
		j.Log.Debug("sleeping")
	case Disconnected:
		return j.enterDisconnected(ctx)
	default:
		j.mu.Lock()
		j.state = to
		j.mu.Unlock()
	}

	return j.Pub.PublishRetainedSetting("state", string(to))
}

// enterDisconnected runs on_disconnect (swallowing and logging exceptions),
// publishes state=disconnected retained, stops and disconnects both
// clients, then signals process exit (spec §4.4 table, `disconnected` row).
func (j *Job) enterDisconnected(ctx context.Context) error {
	if j.onDisconnect != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					j.Log.Errorf("on_disconnect panicked: %v", r)
				}
			}()
			if err := j.onDisconnect(ctx); err != nil {
				j.Log.Errorf("on_disconnect failed: %v", err)
			}
		}()
	}

	j.mu.Lock()
	j.state = Disconnected
	transport := j.transport
	j.mu.Unlock()

	if err := j.Pub.PublishRetainedSetting("state", string(Disconnected)); err != nil {
		j.Log.Errorf("publish disconnected state: %v", err)
	}

	if err := transport.Close(); err != nil {
		j.Log.Errorf("close transport: %v", err)
	}

	if j.exitFunc != nil {
		j.exitFunc(0)
	}
	return nil
}

// ListenForDisconnect installs signal handlers on the main execution
// context only (spec §5 "Signal handlers only install on the main
// context"). It blocks until a termination/interrupt signal arrives, then
// drives the job to Disconnected.
func (j *Job) ListenForDisconnect(ctx context.Context) {
	signal.Notify(j.sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(j.sigCh)

	select {
	case sig := <-j.sigCh:
		j.Log.Infof("received %s, disconnecting", sig)
		_ = j.SetState(ctx, Disconnected)
	case <-ctx.Done():
	}
}

func joinCSV(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
