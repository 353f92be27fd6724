package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/server/broker"
	"github.com/parleychat/parley/store"
	"github.com/parleychat/parley/store/db/sqlite"
	"github.com/parleychat/parley/store/kv"
)

func newTestService(t *testing.T) (*Service, *store.Store, *broker.MemoryBroker) {
	t.Helper()

	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: "file::memory:", CatchupWindow: 50}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	kvStore := kv.NewMemoryStore()
	t.Cleanup(func() { kvStore.Close() })
	tracker := NewTracker(kvStore, st)
	catchup := NewCatchup(tracker, st, p.CatchupWindow)
	b := broker.NewMemoryBroker()
	t.Cleanup(func() { b.Close() })

	return NewService(st, tracker, catchup, b), st, b
}

func makeRoom(t *testing.T, st *store.Store, id string) *store.Room {
	t.Helper()
	room, err := st.CreateRoom(context.Background(), &store.Room{ID: id, Name: id, CreatorID: "u1"})
	require.NoError(t, err)
	return room
}

func TestSendStoresAndBroadcasts(t *testing.T) {
	service, st, b := newTestService(t)
	ctx := context.Background()
	makeRoom(t, st, "room-1")

	events, cancel, err := b.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	defer cancel()

	message, err := service.Send(ctx, "u1", &SendRequest{
		RoomID:  "room-1",
		Content: "hello",
		User:    store.MessageUser{ID: "u1", Name: "alice"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	assert.NotEmpty(t, message.CreatedAt)

	// Broadcast carries the authoritative copy.
	select {
	case payload := <-events:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, EventMessage, event.Type)
		assert.Equal(t, message.ID, event.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("expected broadcast event")
	}

	// Room latest pointer advanced.
	latest, ok := service.Tracker().RoomLatest(ctx, "room-1")
	require.True(t, ok)
	assert.Equal(t, message.ID, latest)
}

func TestSendValidation(t *testing.T) {
	service, st, _ := newTestService(t)
	ctx := context.Background()
	makeRoom(t, st, "room-1")

	tests := []struct {
		name     string
		callerID string
		req      *SendRequest
		code     codes.Code
	}{
		{
			name:     "missing content",
			callerID: "u1",
			req:      &SendRequest{RoomID: "room-1", User: store.MessageUser{ID: "u1", Name: "alice"}},
			code:     codes.InvalidArgument,
		},
		{
			name:     "missing user",
			callerID: "u1",
			req:      &SendRequest{RoomID: "room-1", Content: "hi"},
			code:     codes.InvalidArgument,
		},
		{
			name:     "impersonation",
			callerID: "u2",
			req:      &SendRequest{RoomID: "room-1", Content: "hi", User: store.MessageUser{ID: "u1", Name: "alice"}},
			code:     codes.PermissionDenied,
		},
		{
			name:     "unknown room",
			callerID: "u1",
			req:      &SendRequest{RoomID: "nope", Content: "hi", User: store.MessageUser{ID: "u1", Name: "alice"}},
			code:     codes.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Send(ctx, tt.callerID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestSendIdempotentOnClientMsgID(t *testing.T) {
	service, st, _ := newTestService(t)
	ctx := context.Background()
	makeRoom(t, st, "room-1")

	req := &SendRequest{
		RoomID:      "room-1",
		ClientMsgID: "client-abc",
		Content:     "hello",
		User:        store.MessageUser{ID: "u1", Name: "alice"},
	}

	first, err := service.Send(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "client-abc", first.ID, "client token becomes the message id")

	second, err := service.Send(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	roomID := "room-1"
	list, err := st.ListChatMessages(ctx, &store.FindChatMessage{RoomID: &roomID})
	require.NoError(t, err)
	assert.Len(t, list, 1, "retried send must not duplicate the row")
}

func TestUnsend(t *testing.T) {
	service, st, _ := newTestService(t)
	ctx := context.Background()
	makeRoom(t, st, "room-1")

	message, err := service.Send(ctx, "u1", &SendRequest{
		RoomID:  "room-1",
		Content: "regret",
		User:    store.MessageUser{ID: "u1", Name: "alice"},
	})
	require.NoError(t, err)

	err = service.Unsend(ctx, "u2", message.ID)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	require.NoError(t, service.Unsend(ctx, "u1", message.ID))

	stored, err := st.GetChatMessage(ctx, &store.FindChatMessage{ID: &message.ID})
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)

	// Deleted messages are invisible in the reconciled view but still stored.
	view := Reconcile("u1", Inputs{Initial: []*store.ChatMessage{stored}})
	assert.Empty(t, view)

	err = service.Unsend(ctx, "u1", "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMarkReceivedSelfOnly(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	err := service.MarkReceived(ctx, "u2", "u1", "room-1", "m1")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	err = service.MarkReceived(ctx, "u1", "u1", "", "m1")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCatchupEndToEnd(t *testing.T) {
	service, st, _ := newTestService(t)
	ctx := context.Background()
	makeRoom(t, st, "room-1")

	// Client tokens pin the ids so the same-millisecond tiebreak is deterministic.
	var sent []*store.ChatMessage
	for i, content := range []string{"one", "two", "three"} {
		m, err := service.Send(ctx, "u1", &SendRequest{
			RoomID:      "room-1",
			ClientMsgID: "m" + strconv.Itoa(i+1),
			Content:     content,
			User:        store.MessageUser{ID: "u1", Name: "alice"},
		})
		require.NoError(t, err)
		sent = append(sent, m)
	}

	// u2 saw only the first message before disconnecting.
	require.NoError(t, service.MarkReceived(ctx, "u2", "u2", "room-1", sent[0].ID))

	missed, err := service.Catchup(ctx, "u2", "u2", "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{sent[1].ID, sent[2].ID}, ids(missed))

	_, err = service.Catchup(ctx, "u1", "u2", "room-1")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
