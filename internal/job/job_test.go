package job_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioreactor.com/dosing/internal/bus"
	"pioreactor.com/dosing/internal/identity"
	"pioreactor.com/dosing/internal/job"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l)
}

func newTestJob(t *testing.T, transport bus.Transport, settings job.SettingsTable) *job.Job {
	t.Helper()
	j, err := job.New(job.Options{
		Identity:           identity.Identity{Unit: "unit1", Experiment: "exp1"},
		Name:               "stirring",
		Transport:          transport,
		Settings:           settings,
		Log:                testLog(),
		SkipDuplicateCheck: true,
	})
	require.NoError(t, err)
	return j
}

func TestNewDeclaresPropertiesAndSettable(t *testing.T) {
	transport := bus.NewMemTransport(2, 16)
	defer transport.Close()

	var propsCSV string
	var settableSeen bool
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	_, err := transport.Subscribe(context.Background(), "pioreactor/unit1/exp1/stirring/$properties", bus.AtLeastOnce, true, func(msg bus.Message) {
		mu.Lock()
		propsCSV = string(msg.Payload)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	_, err = transport.Subscribe(context.Background(), "pioreactor/unit1/exp1/stirring/duty_cycle/$settable", bus.AtLeastOnce, true, func(msg bus.Message) {
		mu.Lock()
		settableSeen = string(msg.Payload) == "true"
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)

	settings := job.SettingsTable{
		"duty_cycle": {Get: func() string { return "50" }, Set: func(string) error { return nil }},
	}
	newTestJob(t, transport, settings)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for declaration publish")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, propsCSV, "duty_cycle")
	assert.Contains(t, propsCSV, "state")
	assert.True(t, settableSeen)
}

func TestNewDeclaresSettableFalseWithoutSetHook(t *testing.T) {
	transport := bus.NewMemTransport(2, 16)
	defer transport.Close()

	var settableVal string
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	_, err := transport.Subscribe(context.Background(), "pioreactor/unit1/exp1/stirring/read_only/$settable", bus.AtLeastOnce, true, func(msg bus.Message) {
		mu.Lock()
		settableVal = string(msg.Payload)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)

	settings := job.SettingsTable{
		"read_only": {Get: func() string { return "50" }},
	}
	newTestJob(t, transport, settings)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for declaration publish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "false", settableVal)
}

func TestLifecycleTransitions(t *testing.T) {
	transport := bus.NewMemTransport(1, 16)
	defer transport.Close()

	j := newTestJob(t, transport, nil)
	assert.Equal(t, job.Init, j.State())

	require.NoError(t, j.SetState(context.Background(), job.Ready))
	assert.Equal(t, job.Ready, j.State())

	require.NoError(t, j.SetState(context.Background(), job.Sleeping))
	assert.Equal(t, job.Sleeping, j.State())

	require.NoError(t, j.SetState(context.Background(), job.Ready))
	assert.Equal(t, job.Ready, j.State())

	// An unknown state is never a valid target, whatever the current state.
	err := j.SetState(context.Background(), "bogus")
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
}

func TestDisconnectPublishesRetainedStateAndExits(t *testing.T) {
	transport := bus.NewMemTransport(1, 16)
	defer transport.Close()

	var exitCode = -1
	var mu sync.Mutex
	var onDisconnectCalled bool

	j, err := job.New(job.Options{
		Identity:           identity.Identity{Unit: "unit1", Experiment: "exp1"},
		Name:               "stirring",
		Transport:          transport,
		Log:                testLog(),
		SkipDuplicateCheck: true,
		OnDisconnect: func(ctx context.Context) error {
			mu.Lock()
			onDisconnectCalled = true
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	j.SetExitFunc(func(code int) {
		mu.Lock()
		exitCode = code
		mu.Unlock()
	})

	states := make(chan string, 4)
	_, err = transport.Subscribe(context.Background(), "pioreactor/unit1/exp1/stirring/$state", bus.ExactlyOnce, false, func(msg bus.Message) {
		states <- string(msg.Payload)
	})
	require.NoError(t, err)

	require.NoError(t, j.SetState(context.Background(), job.Ready))
	require.NoError(t, j.SetState(context.Background(), job.Disconnected))

	// Disconnect closes the transport, which drains every queued delivery.
	require.Len(t, states, 2)
	assert.Equal(t, "ready", <-states)
	assert.Equal(t, "disconnected", <-states)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, onDisconnectCalled)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, job.Disconnected, j.State())
}

func TestAttributeSetProtocol(t *testing.T) {
	transport := bus.NewMemTransport(1, 16)
	defer transport.Close()

	var duty float64
	var mu sync.Mutex

	settings := job.SettingsTable{
		"duty_cycle": {
			Get: func() string {
				mu.Lock()
				defer mu.Unlock()
				return "set"
			},
			Set: job.ParseFloatSetter(func(v float64) {
				mu.Lock()
				duty = v
				mu.Unlock()
			}, nil),
		},
	}
	newTestJob(t, transport, settings)

	retained := make(chan string, 1)
	_, err := transport.Subscribe(context.Background(), "pioreactor/unit1/exp1/stirring/duty_cycle", bus.AtLeastOnce, true, func(msg bus.Message) {
		retained <- string(msg.Payload)
	})
	require.NoError(t, err)

	require.NoError(t, transport.Publish(context.Background(), "pioreactor/unit1/exp1/stirring/duty_cycle/set", []byte("75"), bus.ExactlyOnce, false))

	select {
	case <-retained:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retained republish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 75.0, duty)
}

func TestAttributeSetIgnoresUnknownAttribute(t *testing.T) {
	transport := bus.NewMemTransport(1, 16)
	defer transport.Close()

	newTestJob(t, transport, nil)

	// Should not panic or block; unknown attribute is silently dropped.
	require.NoError(t, transport.Publish(context.Background(), "pioreactor/unit1/exp1/stirring/nonexistent/set", []byte("1"), bus.ExactlyOnce, false))
	time.Sleep(50 * time.Millisecond)
}

func TestBroadcastSetReachesUnit(t *testing.T) {
	transport := bus.NewMemTransport(1, 16)
	defer transport.Close()

	var seen string
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	settings := job.SettingsTable{
		"active": {
			Get: func() string { return "1" },
			Set: job.ParseIntSetter(func(v int) {
				mu.Lock()
				seen = "active"
				mu.Unlock()
				done <- struct{}{}
			}, nil),
		},
	}
	newTestJob(t, transport, settings)

	require.NoError(t, transport.Publish(context.Background(), "pioreactor/$broadcast/exp1/stirring/active/set", []byte("0"), bus.ExactlyOnce, false))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast set never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "active", seen)
}
