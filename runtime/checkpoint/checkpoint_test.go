package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	failures int
	calls    int
	snap     Snapshot
}

func (f *fakeReader) GetState(ctx context.Context, graphID, config string) (Snapshot, error) {
	f.calls++
	if f.calls <= f.failures {
		return Snapshot{}, errors.New("connection reset")
	}
	return f.snap, nil
}

func TestGetStateOrDegradeSucceedsAfterRetry(t *testing.T) {
	reader := &fakeReader{failures: 2, snap: Snapshot{Tasks: []PendingTask{{ID: "t1"}}}}
	store := New(reader, nil)
	store.initialBackoff = 0

	snap, ok := store.GetStateOrDegrade(context.Background(), "g1", "cfg")
	require.True(t, ok)
	require.True(t, snap.HasInterrupt())
	require.Equal(t, 3, reader.calls)
}

func TestGetStateOrDegradeDegradesAfterExhaustion(t *testing.T) {
	reader := &fakeReader{failures: 10}
	store := New(reader, nil)
	store.initialBackoff = 0

	snap, ok := store.GetStateOrDegrade(context.Background(), "g1", "cfg")
	require.False(t, ok)
	require.False(t, snap.HasInterrupt())
	require.Equal(t, 3, reader.calls, "expected exactly maxAttempts calls")
}

func TestGetStateOrDegradeFirstTrySuccess(t *testing.T) {
	reader := &fakeReader{snap: Snapshot{Values: map[string]any{"x": 1}}}
	store := New(reader, nil)

	snap, ok := store.GetStateOrDegrade(context.Background(), "g1", "cfg")
	require.True(t, ok)
	require.False(t, snap.HasInterrupt())
	require.Equal(t, 1, reader.calls)
}
