package fleet_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/config"
	"pioreactor.com/dosing/internal/fleet"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands map[string]string
	fail     map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{commands: map[string]string{}, fail: map[string]bool{}}
}

func (f *fakeRunner) RunCommand(ctx context.Context, unit, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[unit] = command
	if f.fail[unit] {
		return "", assertErr(unit)
	}
	return "", nil
}

func (f *fakeRunner) PutFile(ctx context.Context, unit, local, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[unit+":"+remotePath] = local
	return nil
}

type fleetErr string

func (e fleetErr) Error() string { return string(e) }

func assertErr(unit string) error { return fleetErr("simulated failure on " + unit) }

func TestRunRequiresLeader(t *testing.T) {
	d := &fleet.Dispatcher{Fleet: config.FleetConfig{Leader: false}, Runner: newFakeRunner()}
	err := d.Run(context.Background(), "stirring", nil, []string{"unit1"})
	assert.ErrorIs(t, err, fleet.ErrNotLeader)
}

func TestRunFansOutToEachUnit(t *testing.T) {
	runner := newFakeRunner()
	d := &fleet.Dispatcher{Fleet: config.FleetConfig{Leader: true, MaxConcurrent: 4}, Runner: runner}

	require.NoError(t, d.Run(context.Background(), "stirring", []string{"--duty-cycle=50"}, []string{"unit1", "unit2"}))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, "pio run stirring --duty-cycle=50", runner.commands["unit1"])
	assert.Equal(t, "pio run stirring --duty-cycle=50", runner.commands["unit2"])
}

func TestKillAggregatesPerUnitErrors(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["unit2"] = true
	d := &fleet.Dispatcher{Fleet: config.FleetConfig{Leader: true}, Runner: runner}

	err := d.Kill(context.Background(), []string{"stirring"}, []string{"unit1", "unit2"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unit2"))
}

func TestUpdateSettingsPublishesToEachUnitTopic(t *testing.T) {
	transport := bus.NewMemTransport(1, 16)
	defer transport.Close()

	received := make(chan string, 2)
	_, err := transport.Subscribe(context.Background(), "pioreactor/+/exp1/stirring/duty_cycle/set", bus.AtMostOnce, false, func(msg bus.Message) {
		received <- msg.Topic
	})
	require.NoError(t, err)

	d := &fleet.Dispatcher{Fleet: config.FleetConfig{Leader: true}, Transport: transport}
	require.NoError(t, d.UpdateSettings(context.Background(), "exp1", "stirring", "duty_cycle", "60", []string{"unit1", "unit2"}))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[<-received] = true
	}
	assert.True(t, seen["pioreactor/unit1/exp1/stirring/duty_cycle/set"])
	assert.True(t, seen["pioreactor/unit2/exp1/stirring/duty_cycle/set"])
}

func TestExpandUnitsSubstitutesBroadcast(t *testing.T) {
	cfg := config.FleetConfig{Units: []string{"unit1", "unit2", "unit3"}}
	units := fleet.ExpandUnits(cfg, []string{fleet.UniversalIdentifier})
	assert.Equal(t, []string{"unit1", "unit2", "unit3"}, units)

	explicit := fleet.ExpandUnits(cfg, []string{"unit2"})
	assert.Equal(t, []string{"unit2"}, explicit)
}

func TestConfirmOnlyAcceptsExactY(t *testing.T) {
	assert.True(t, fleet.Confirm(strings.NewReader("Y\n"), &strings.Builder{}, "proceed?"))
	assert.False(t, fleet.Confirm(strings.NewReader("y\n"), &strings.Builder{}, "proceed?"))
	assert.False(t, fleet.Confirm(strings.NewReader("n\n"), &strings.Builder{}, "proceed?"))
}
