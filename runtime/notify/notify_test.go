package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToActiveSubscriber(t *testing.T) {
	bus := NewMemoryBus(4)
	events, cancel, err := bus.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer cancel()

	bus.Publish(context.Background(), "user-1", Event{Type: "invitation_accepted"})

	select {
	case ev := <-events:
		require.Equal(t, "invitation_accepted", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishWithoutSubscribersIsANoOp(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NotPanics(t, func() {
		bus.Publish(context.Background(), "nobody-listening", Event{Type: "run_stopped"})
	})
}

func TestPublishDoesNotDeliverToOtherUsers(t *testing.T) {
	bus := NewMemoryBus(4)
	events, cancel, err := bus.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer cancel()

	bus.Publish(context.Background(), "user-2", Event{Type: "run_stopped"})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event delivered to user-1: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelClosesSubscriberChannel(t *testing.T) {
	bus := NewMemoryBus(4)
	events, cancel, err := bus.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)

	cancel()

	_, ok := <-events
	require.False(t, ok, "channel should be closed after cancel")
}

func TestPublishToFullChannelDropsRatherThanBlocks(t *testing.T) {
	bus := NewMemoryBus(1)
	events, cancel, err := bus.Subscribe(context.Background(), "user-1")
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), "user-1", Event{Type: "first"})
		bus.Publish(context.Background(), "user-1", Event{Type: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
	<-events // drain the one buffered event so the goroutine above is known to have completed
}
