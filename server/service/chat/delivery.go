package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parleychat/parley/store"
	"github.com/parleychat/parley/store/kv"
)

// PointerTTL bounds how long delivery pointers live. An expired pointer
// degrades to a bounded resync, so the TTL is a cost ceiling, not a
// correctness parameter.
const PointerTTL = 30 * 24 * time.Hour

// messageResolver resolves a message id to its stored row, for recency comparison.
type messageResolver interface {
	GetChatMessage(ctx context.Context, find *store.FindChatMessage) (*store.ChatMessage, error)
}

// Tracker keeps the per-user "last received" and per-room "latest message"
// pointers in a TTL key-value store. All writes are best-effort: a failed
// write costs a redundant catch-up fetch later, never a lost message.
type Tracker struct {
	kv       kv.Store
	resolver messageResolver
}

// NewTracker creates a delivery tracker.
func NewTracker(kvStore kv.Store, resolver messageResolver) *Tracker {
	return &Tracker{kv: kvStore, resolver: resolver}
}

func deliveryKey(userID, roomID string) string {
	return fmt.Sprintf("delivery:%s:%s", userID, roomID)
}

func roomLatestKey(roomID string) string {
	return fmt.Sprintf("room-latest:%s", roomID)
}

// LastReceived returns the user's delivery pointer for a room.
func (t *Tracker) LastReceived(ctx context.Context, userID, roomID string) (string, bool) {
	value, ok, err := t.kv.Get(ctx, deliveryKey(userID, roomID))
	if err != nil {
		slog.Warn("failed to read delivery pointer", slog.String("user_id", userID), slog.String("room_id", roomID), slog.String("error", err.Error()))
		return "", false
	}
	return value, ok
}

// RoomLatest returns the room's latest-message pointer.
func (t *Tracker) RoomLatest(ctx context.Context, roomID string) (string, bool) {
	value, ok, err := t.kv.Get(ctx, roomLatestKey(roomID))
	if err != nil {
		slog.Warn("failed to read room latest pointer", slog.String("room_id", roomID), slog.String("error", err.Error()))
		return "", false
	}
	return value, ok
}

// AdvanceRoomLatest records messageID as the newest message of a room. It is
// written unconditionally on every accepted send, independent of broadcast
// success.
func (t *Tracker) AdvanceRoomLatest(ctx context.Context, roomID, messageID string) {
	if err := t.kv.Set(ctx, roomLatestKey(roomID), messageID, PointerTTL); err != nil {
		slog.Warn("failed to advance room latest pointer", slog.String("room_id", roomID), slog.String("error", err.Error()))
	}
}

// MarkReceived advances the user's delivery pointer to messageID. The pointer
// only moves forward: an update referencing a message not newer than the
// stored one is a no-op, which keeps concurrent out-of-order receipt
// confirmations from corrupting the pointer. When no pointer is stored yet,
// the id must resolve to a message of the room before it is accepted.
// Returns whether the pointer advanced.
func (t *Tracker) MarkReceived(ctx context.Context, userID, roomID, messageID string) bool {
	key := deliveryKey(userID, roomID)

	current, ok, err := t.kv.Get(ctx, key)
	if err != nil {
		slog.Warn("failed to read delivery pointer", slog.String("user_id", userID), slog.String("room_id", roomID), slog.String("error", err.Error()))
		return false
	}
	if ok && current != "" {
		if !t.isNewer(ctx, messageID, current) {
			return false
		}
	} else if !t.inRoom(ctx, messageID, roomID) {
		// The first write seeds the pointer. An id the store cannot place
		// in this room would turn the user's next catch-up into a full
		// replay, so unverifiable receipts are refused here.
		slog.Warn("rejecting receipt for unresolvable message",
			slog.String("user_id", userID),
			slog.String("room_id", roomID),
			slog.String("message_id", messageID))
		return false
	}

	if err := t.kv.Set(ctx, key, messageID, PointerTTL); err != nil {
		slog.Warn("failed to advance delivery pointer", slog.String("user_id", userID), slog.String("room_id", roomID), slog.String("error", err.Error()))
		return false
	}
	return true
}

// inRoom reports whether messageID resolves to a stored message of roomID.
func (t *Tracker) inRoom(ctx context.Context, messageID, roomID string) bool {
	message, err := t.resolver.GetChatMessage(ctx, &store.FindChatMessage{ID: &messageID})
	return err == nil && message != nil && message.RoomID == roomID
}

// isNewer reports whether candidate is strictly newer than reference, by
// stored creation time with id as tiebreak. Recency is encoded by the
// messages themselves, not by wall-clock write order, so last-write-wins
// KV semantics stay safe under concurrent readers.
func (t *Tracker) isNewer(ctx context.Context, candidateID, referenceID string) bool {
	if candidateID == referenceID {
		return false
	}
	candidate, err := t.resolver.GetChatMessage(ctx, &store.FindChatMessage{ID: &candidateID})
	if err != nil || candidate == nil {
		// Cannot prove the candidate is newer; keep the stored pointer.
		return false
	}
	reference, err := t.resolver.GetChatMessage(ctx, &store.FindChatMessage{ID: &referenceID})
	if err != nil || reference == nil {
		// The stored pointer references a message the store no longer
		// knows; any resolvable candidate supersedes it.
		return true
	}
	if candidate.CreatedTs != reference.CreatedTs {
		return candidate.CreatedTs > reference.CreatedTs
	}
	return candidate.ID > reference.ID
}
