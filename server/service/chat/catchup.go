package chat

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/parleychat/parley/store"
)

// messageLister is the slice of the store the catch-up service needs.
type messageLister interface {
	messageResolver
	ListChatMessagesAfter(ctx context.Context, roomID, afterID, upToID string) ([]*store.ChatMessage, error)
	ListRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*store.ChatMessage, error)
}

// Catchup computes the messages a user missed while disconnected from a
// room, bounded by the delivery pointers so rejoin never replays full history.
type Catchup struct {
	tracker *Tracker
	store   messageLister
	window  int

	// Concurrent rejoins for the same (user, room) share one store query.
	// Correctness does not depend on this; the monotone pointer write rule
	// already tolerates concurrent advancement.
	group singleflight.Group
}

// NewCatchup creates a catch-up service. window bounds the recent-history
// fetch for users without a delivery pointer.
func NewCatchup(tracker *Tracker, store messageLister, window int) *Catchup {
	return &Catchup{tracker: tracker, store: store, window: window}
}

// Missed returns the messages the user has not received in the room, and
// advances the user's delivery pointer to the room's latest message.
func (c *Catchup) Missed(ctx context.Context, userID, roomID string) ([]*store.ChatMessage, error) {
	result, err, _ := c.group.Do(userID+":"+roomID, func() (any, error) {
		return c.missed(ctx, userID, roomID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*store.ChatMessage), nil
}

func (c *Catchup) missed(ctx context.Context, userID, roomID string) ([]*store.ChatMessage, error) {
	latest, ok := c.tracker.RoomLatest(ctx, roomID)
	if !ok || latest == "" {
		// No latest pointer means nothing was ever sent (or the pointer
		// expired alongside activity); nothing to catch up on.
		return nil, nil
	}

	last, tracked := c.tracker.LastReceived(ctx, userID, roomID)
	if !tracked {
		// Never-tracked user: hand over a bounded recent window instead
		// of the full log.
		missed, err := c.store.ListRecentChatMessages(ctx, roomID, c.window)
		if err != nil {
			return nil, err
		}
		c.advance(ctx, userID, roomID, latest)
		return missed, nil
	}

	if last == latest {
		// Pointer cache hit; no store query.
		return nil, nil
	}

	missed, err := c.store.ListChatMessagesAfter(ctx, roomID, last, latest)
	if err != nil {
		return nil, err
	}
	c.advance(ctx, userID, roomID, latest)
	return missed, nil
}

func (c *Catchup) advance(ctx context.Context, userID, roomID, latest string) {
	if advanced := c.tracker.MarkReceived(ctx, userID, roomID, latest); !advanced {
		slog.Debug("delivery pointer not advanced after catch-up",
			slog.String("user_id", userID),
			slog.String("room_id", roomID),
			slog.String("latest", latest))
	}
}
