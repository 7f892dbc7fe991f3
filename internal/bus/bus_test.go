package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioreactor.com/dosing/internal/identity"
)

func TestMemTransportPublishSubscribe(t *testing.T) {
	tr := NewMemTransport(2, 16)
	defer tr.Close()

	received := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), "pioreactor/unit1/exp1/dosing/+", AtLeastOnce, false, func(m Message) {
		received <- m
	})
	require.NoError(t, err)

	err = tr.Publish(context.Background(), "pioreactor/unit1/exp1/dosing/target_od", []byte("1.0"), AtLeastOnce, false)
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "pioreactor/unit1/exp1/dosing/target_od", msg.Topic)
		assert.Equal(t, "1.0", string(msg.Payload))
		assert.False(t, msg.Retained)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemTransportRetainedDeliveredOnSubscribe(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	require.NoError(t, tr.Publish(context.Background(), "pioreactor/unit1/exp1/dosing/$state", []byte("ready"), ExactlyOnce, true))

	received := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), "pioreactor/unit1/exp1/dosing/$state", ExactlyOnce, true, func(m Message) {
		received <- m
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.True(t, msg.Retained)
		assert.Equal(t, "ready", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retained delivery")
	}
}

func TestMemTransportRetainedNotDeliveredWhenDisallowed(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	require.NoError(t, tr.Publish(context.Background(), "pioreactor/unit1/exp1/dosing/$state", []byte("ready"), ExactlyOnce, true))

	received := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), "pioreactor/unit1/exp1/dosing/$state", ExactlyOnce, false, func(m Message) {
		received <- m
	})
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("retained message should not have been delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemTransportEmptyRetainedPayloadClears(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	require.NoError(t, tr.Publish(context.Background(), "pioreactor/unit1/exp1/dosing/$state", []byte("ready"), ExactlyOnce, true))
	require.NoError(t, tr.Publish(context.Background(), "pioreactor/unit1/exp1/dosing/$state", nil, ExactlyOnce, true))

	received := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), "pioreactor/unit1/exp1/dosing/$state", ExactlyOnce, true, func(m Message) {
		received <- m
	})
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("cleared retained topic should not deliver on subscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemTransportCrashPublishesLastWill(t *testing.T) {
	tr := NewMemTransport(1, 16)
	tr.RegisterLastWill("pioreactor/unit1/exp1/dosing/$state", []byte("lost"), ExactlyOnce)

	received := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), "pioreactor/unit1/exp1/dosing/$state", ExactlyOnce, false, func(m Message) {
		received <- m
	})
	require.NoError(t, err)

	tr.Crash()

	select {
	case msg := <-received:
		assert.Equal(t, "lost", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for last-will delivery")
	}

	err = tr.Publish(context.Background(), "pioreactor/unit1/exp1/dosing/$state", []byte("x"), AtMostOnce, false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPubClientRegistersLastWill(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	id := identity.Identity{Unit: "unit1", Experiment: "exp1"}
	_ = NewPubClient(id, "dosing", tr)

	received := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), id.Topic("dosing", "$state"), ExactlyOnce, false, func(m Message) {
		received <- m
	})
	require.NoError(t, err)

	tr.Crash()

	select {
	case msg := <-received:
		assert.Equal(t, "lost", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pub client last-will")
	}
}

func TestPubClientPublishLogRoutesErrorsToErrorLog(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	id := identity.Identity{Unit: "unit1", Experiment: "exp1"}
	pub := NewPubClient(id, "dosing", tr)

	log := make(chan Message, 1)
	errLog := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), id.Topic("dosing", "log"), AtMostOnce, false, func(m Message) { log <- m })
	require.NoError(t, err)
	_, err = tr.Subscribe(context.Background(), id.Topic("dosing", "error_log"), ExactlyOnce, false, func(m Message) { errLog <- m })
	require.NoError(t, err)

	require.NoError(t, pub.PublishLog(4 /* logrus.InfoLevel */, "starting up"))
	select {
	case msg := <-log:
		assert.Equal(t, "starting up", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for info log")
	}
	select {
	case <-errLog:
		t.Fatal("info-level message should not reach error_log")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, pub.PublishLog(2 /* logrus.ErrorLevel */, "boom"))
	select {
	case msg := <-errLog:
		assert.Equal(t, "boom", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error log")
	}
}

func TestSubClientDuplicatePatternGuard(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	id := identity.Identity{Unit: "unit1", Experiment: "exp1"}
	sub := NewSubClient(id, "dosing", tr)

	pattern := id.Topic("dosing", "+", "set")
	require.NoError(t, sub.Subscribe(context.Background(), pattern, ExactlyOnce, false, func(Message) {}))
	err := sub.Subscribe(context.Background(), pattern, ExactlyOnce, false, func(Message) {})
	assert.ErrorIs(t, err, ErrDuplicateSubscription)
}

func TestSubClientDropsRetainedWhenDisallowed(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	id := identity.Identity{Unit: "unit1", Experiment: "exp1"}
	require.NoError(t, tr.Publish(context.Background(), id.Topic("dosing", "$state"), []byte("ready"), ExactlyOnce, true))

	sub := NewSubClient(id, "dosing", tr)
	received := make(chan Message, 1)
	require.NoError(t, sub.Subscribe(context.Background(), id.Topic("dosing", "$state"), ExactlyOnce, false, func(m Message) {
		received <- m
	}))

	select {
	case <-received:
		t.Fatal("retained message should have been filtered by SubClient")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubClientReconnectRepublishesState(t *testing.T) {
	tr := NewMemTransport(1, 16)
	defer tr.Close()

	id := identity.Identity{Unit: "unit1", Experiment: "exp1"}
	pub := NewPubClient(id, "dosing", tr)
	sub := NewSubClient(id, "dosing", tr)

	received := make(chan Message, 4)
	require.NoError(t, sub.Subscribe(context.Background(), id.Topic("dosing", "+", "set"), ExactlyOnce, false, func(m Message) {
		received <- m
	}))

	stateCh := make(chan Message, 1)
	_, err := tr.Subscribe(context.Background(), id.Topic("dosing", "$state"), ExactlyOnce, false, func(m Message) {
		stateCh <- m
	})
	require.NoError(t, err)

	require.NoError(t, sub.Reconnect(context.Background(), pub, "ready"))

	select {
	case msg := <-stateCh:
		assert.Equal(t, "ready", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for republished state")
	}

	require.NoError(t, tr.Publish(context.Background(), id.Topic("dosing", "target_od", "set"), []byte("1.2"), ExactlyOnce, false))
	select {
	case msg := <-received:
		assert.Equal(t, "1.2", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("reconnected subscription did not receive delivery")
	}
}

func TestQoSString(t *testing.T) {
	assert.Equal(t, "at-most-once", AtMostOnce.String())
	assert.Equal(t, "at-least-once", AtLeastOnce.String())
	assert.Equal(t, "exactly-once", ExactlyOnce.String())
}
