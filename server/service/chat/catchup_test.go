package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/store"
	"github.com/parleychat/parley/store/kv"
)

// fakeLister serves a fixed ascending message log for one room and counts
// store queries.
type fakeLister struct {
	log        []*store.ChatMessage
	afterCalls int
	recent     int
}

func (f *fakeLister) GetChatMessage(_ context.Context, find *store.FindChatMessage) (*store.ChatMessage, error) {
	if find.ID == nil {
		return nil, nil
	}
	for _, m := range f.log {
		if m.ID == *find.ID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeLister) ListChatMessagesAfter(_ context.Context, _, afterID, upToID string) ([]*store.ChatMessage, error) {
	f.afterCalls++
	out := []*store.ChatMessage{}
	including := afterID == ""
	for _, m := range f.log {
		if including {
			out = append(out, m)
		}
		if m.ID == afterID {
			including = true
		}
		if m.ID == upToID {
			break
		}
	}
	return out, nil
}

func (f *fakeLister) ListRecentChatMessages(_ context.Context, _ string, limit int) ([]*store.ChatMessage, error) {
	f.recent++
	if len(f.log) <= limit {
		return f.log, nil
	}
	return f.log[len(f.log)-limit:], nil
}

func newTestCatchup(window int, log ...*store.ChatMessage) (*Catchup, *Tracker, *fakeLister, kv.Store) {
	lister := &fakeLister{log: log}
	kvStore := kv.NewMemoryStore()
	tracker := NewTracker(kvStore, lister)
	return NewCatchup(tracker, lister, window), tracker, lister, kvStore
}

func TestCatchupNoRoomPointer(t *testing.T) {
	catchup, _, lister, kvStore := newTestCatchup(50, storedMsg("m1", 100))
	defer kvStore.Close()

	missed, err := catchup.Missed(context.Background(), "u1", "room-1")
	require.NoError(t, err)
	assert.Empty(t, missed)
	assert.Zero(t, lister.afterCalls)
	assert.Zero(t, lister.recent)
}

func TestCatchupFirstTimeJoinerGetsBoundedWindow(t *testing.T) {
	log := []*store.ChatMessage{storedMsg("m1", 100), storedMsg("m2", 200), storedMsg("m3", 300)}
	catchup, tracker, lister, kvStore := newTestCatchup(2, log...)
	defer kvStore.Close()
	ctx := context.Background()

	tracker.AdvanceRoomLatest(ctx, "room-1", "m3")

	missed, err := catchup.Missed(ctx, "u1", "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, ids(missed), "window bounds first-join replay")
	assert.Equal(t, 1, lister.recent)

	// The user is tracked afterwards.
	last, ok := tracker.LastReceived(ctx, "u1", "room-1")
	require.True(t, ok)
	assert.Equal(t, "m3", last)
}

func TestCatchupCacheHitSkipsStore(t *testing.T) {
	catchup, tracker, lister, kvStore := newTestCatchup(50, storedMsg("m1", 100))
	defer kvStore.Close()
	ctx := context.Background()

	tracker.AdvanceRoomLatest(ctx, "room-1", "m1")
	require.True(t, tracker.MarkReceived(ctx, "u1", "room-1", "m1"))

	missed, err := catchup.Missed(ctx, "u1", "room-1")
	require.NoError(t, err)
	assert.Empty(t, missed)
	assert.Zero(t, lister.afterCalls, "pointer equality must short-circuit the store query")
}

func TestCatchupCompleteness(t *testing.T) {
	log := []*store.ChatMessage{
		storedMsg("m1", 100), storedMsg("m2", 200), storedMsg("m3", 300), storedMsg("m4", 400),
	}
	catchup, tracker, _, kvStore := newTestCatchup(50, log...)
	defer kvStore.Close()
	ctx := context.Background()

	tracker.AdvanceRoomLatest(ctx, "room-1", "m4")
	require.True(t, tracker.MarkReceived(ctx, "u1", "room-1", "m1"))

	missed, err := catchup.Missed(ctx, "u1", "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m4"}, ids(missed), "strictly after P, up to and including R")

	// Afterwards the user's pointer equals the room's latest.
	last, ok := tracker.LastReceived(ctx, "u1", "room-1")
	require.True(t, ok)
	assert.Equal(t, "m4", last)

	// A second catch-up is a cache hit.
	missed, err = catchup.Missed(ctx, "u1", "room-1")
	require.NoError(t, err)
	assert.Empty(t, missed)
}
