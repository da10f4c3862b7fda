package eventbus

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/promptopt/internal/stream"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := Start()
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func receive(t *testing.T, sub *Subscription) stream.Frame {
	t.Helper()
	select {
	case f := <-sub.Frames():
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return stream.Frame{}
	}
}

func TestBusDeliversInOrderPerSession(t *testing.T) {
	bus := newTestBus(t)
	id := uuid.New()

	sub, err := bus.Subscribe(id, 16)
	require.NoError(t, err)
	defer sub.Close()

	for _, ev := range []string{"status", "result", "guidelines"} {
		require.NoError(t, bus.Publish(id, stream.Frame{Event: ev, Data: "<p>" + ev + "</p>"}))
	}

	require.Equal(t, stream.Frame{Event: "status", Data: "<p>status</p>"}, receive(t, sub))
	require.Equal(t, "result", receive(t, sub).Event)
	require.Equal(t, "guidelines", receive(t, sub).Event)
}

func TestBusIsolatesSessions(t *testing.T) {
	bus := newTestBus(t)
	mine, other := uuid.New(), uuid.New()

	sub, err := bus.Subscribe(mine, 4)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(other, stream.Frame{Event: "status", Data: "not yours"}))
	require.NoError(t, bus.Publish(mine, stream.Frame{Event: "status", Data: "yours"}))

	require.Equal(t, "yours", receive(t, sub).Data)
	select {
	case f := <-sub.Frames():
		t.Fatalf("unexpected frame %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusFanOut(t *testing.T) {
	bus := newTestBus(t)
	id := uuid.New()

	a, err := bus.Subscribe(id, 4)
	require.NoError(t, err)
	defer a.Close()
	b, err := bus.Subscribe(id, 4)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, bus.Publish(id, stream.Frame{Event: "controls", Data: "x"}))

	require.Equal(t, "controls", receive(t, a).Event)
	require.Equal(t, "controls", receive(t, b).Event)
}

func TestBusMarksSlowListenerLost(t *testing.T) {
	bus := newTestBus(t)
	id := uuid.New()

	sub, err := bus.Subscribe(id, 4)
	require.NoError(t, err)
	defer sub.Close()

	for i := range 6 {
		require.NoError(t, bus.Publish(id, stream.Frame{Event: "guidelines", Data: fmt.Sprintf("<p>%d</p>", i)}))
	}
	require.NoError(t, bus.Publish(id, stream.Frame{Event: "controls", Data: `data-busy="false"`}))

	select {
	case <-sub.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("slow listener was not marked lost")
	}

	require.Len(t, sub.Frames(), 4)
	for i := range 4 {
		require.Equal(t, fmt.Sprintf("<p>%d</p>", i), receive(t, sub).Data)
	}
}

func TestBusKeepsKeptUpListener(t *testing.T) {
	bus := newTestBus(t)
	id := uuid.New()

	sub, err := bus.Subscribe(id, 2)
	require.NoError(t, err)
	defer sub.Close()

	for i := range 5 {
		require.NoError(t, bus.Publish(id, stream.Frame{Event: "status", Data: fmt.Sprint(i)}))
		require.Equal(t, fmt.Sprint(i), receive(t, sub).Data)
	}
	select {
	case <-sub.Lost():
		t.Fatal("listener that kept up was marked lost")
	default:
	}
}

func TestBusCloseIsClean(t *testing.T) {
	bus, err := Start()
	require.NoError(t, err)

	_, err = bus.Subscribe(uuid.New(), 1)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(uuid.New(), stream.Frame{Event: "status", Data: "x"}))

	done := make(chan struct{})
	go func() {
		bus.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("close did not return")
	}
}

func TestViewSubject(t *testing.T) {
	id := uuid.MustParse("6f1c8a52-5c0e-4f59-9d7e-0c7a3e1b2d4f")
	require.Equal(t, "promptopt.session.6f1c8a52-5c0e-4f59-9d7e-0c7a3e1b2d4f.view", ViewSubject(id))
}
