package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/store"
)

// EntryState is the lifecycle state of one outbound message.
type EntryState string

const (
	// StateQueued: composed while offline, waiting for connectivity.
	StateQueued EntryState = "queued"
	// StatePending: first attempt in flight.
	StatePending EntryState = "pending"
	// StateRetrying: user-initiated or reconnect-initiated re-attempt in flight.
	StateRetrying EntryState = "retrying"
	// StateFailed: last attempt failed, waiting for an explicit retry or clear.
	StateFailed EntryState = "failed"
)

// Entry is one message the user has composed but the server has not yet
// accepted. LastError carries the most recent failure so the UI can decide
// what to show; no retry limit is enforced here.
type Entry struct {
	ID        string
	RoomID    string
	Request   *chat.SendRequest
	State     EntryState
	LastError string
	CreatedAt time.Time
}

// maxFlushDelay caps the reconnect flush backoff.
const maxFlushDelay = 5 * time.Second

// SendFunc performs one outbound send attempt.
type SendFunc func(ctx context.Context, roomID string, req *chat.SendRequest) (*store.ChatMessage, error)

// Queue guarantees that a composed message is eventually delivered exactly
// once from the user's perspective: every request carries a client-generated
// id the server adopts, so re-sends are idempotent, and an id already in
// flight is never attempted concurrently.
type Queue struct {
	send       SendFunc
	flushDelay time.Duration

	mu       sync.Mutex
	online   bool
	entries  map[string]*Entry
	order    []string
	inflight map[string]bool
}

// NewQueue creates a send queue in the online state.
func NewQueue(send SendFunc) *Queue {
	return &Queue{
		send:       send,
		flushDelay: 100 * time.Millisecond,
		online:     true,
		entries:    make(map[string]*Entry),
		inflight:   make(map[string]bool),
	}
}

// Enqueue registers a composed message and, when online, attempts delivery
// immediately. Offline messages wait in the queued state. The returned entry
// id doubles as the message's idempotency token.
func (q *Queue) Enqueue(ctx context.Context, roomID string, req *chat.SendRequest) *Entry {
	if req.ClientMsgID == "" {
		req.ClientMsgID = shortuuid.New()
	}
	req.RoomID = roomID

	q.mu.Lock()
	entry := &Entry{
		ID:        req.ClientMsgID,
		RoomID:    roomID,
		Request:   req,
		State:     StateQueued,
		CreatedAt: time.Now(),
	}
	q.entries[entry.ID] = entry
	q.order = append(q.order, entry.ID)
	online := q.online
	q.mu.Unlock()

	if online {
		q.attempt(ctx, entry.ID, StatePending)
	}
	return entry
}

// Retry re-attempts a failed entry. Retrying an id already in flight is a
// no-op, so concurrent retries collapse into one outbound attempt.
func (q *Queue) Retry(ctx context.Context, id string) {
	q.attempt(ctx, id, StateRetrying)
}

// SetOnline records connectivity. Coming back online flushes queued entries
// in compose order, pacing attempts so a burst of queued messages does not
// hammer a barely-recovered connection. The pacing delay doubles after each
// failed attempt, since a failure right after reconnect usually means the
// connection is not actually usable yet.
func (q *Queue) SetOnline(ctx context.Context, online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	var toFlush []string
	if online && !wasOnline {
		for _, id := range q.order {
			if e, ok := q.entries[id]; ok && e.State == StateQueued {
				toFlush = append(toFlush, id)
			}
		}
	}
	q.mu.Unlock()

	delay := q.flushDelay
	for i, id := range toFlush {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		q.attempt(ctx, id, StateRetrying)

		q.mu.Lock()
		failed := q.entries[id] != nil && q.entries[id].State == StateFailed
		q.mu.Unlock()
		if failed {
			if delay < maxFlushDelay {
				delay *= 2
			}
		} else {
			delay = q.flushDelay
		}
	}
}

// ClearFailed drops all failed entries. This is a deliberate user action,
// separate from the automatic flush of queued entries on reconnect.
func (q *Queue) ClearFailed() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := 0
	kept := q.order[:0]
	for _, id := range q.order {
		if e, ok := q.entries[id]; ok && e.State == StateFailed {
			delete(q.entries, id)
			cleared++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return cleared
}

// Entries returns a snapshot of the outstanding entries in compose order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]Entry, 0, len(q.order))
	for _, id := range q.order {
		if e, ok := q.entries[id]; ok {
			snapshot = append(snapshot, *e)
		}
	}
	return snapshot
}

// attempt delivers one entry. The in-flight set is checked and updated under
// the lock around the attempt, so the same id can never have two concurrent
// sends.
func (q *Queue) attempt(ctx context.Context, id string, state EntryState) {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || q.inflight[id] {
		q.mu.Unlock()
		return
	}
	q.inflight[id] = true
	entry.State = state
	roomID, req := entry.RoomID, entry.Request
	q.mu.Unlock()

	_, err := q.send(ctx, roomID, req)

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
	if err != nil {
		entry.State = StateFailed
		entry.LastError = err.Error()
		slog.Warn("message send failed", "id", id, "room", roomID, "error", err)
		return
	}
	q.remove(id)
}

func (q *Queue) remove(id string) {
	delete(q.entries, id)
	for i, existing := range q.order {
		if existing == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
