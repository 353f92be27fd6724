package store

import (
	"time"
)

// MessageUser is the denormalized sender identity captured at send time.
type MessageUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ChatMessage is the canonical message unit. The same type carries a message
// through its whole lifecycle: optimistic local entry, broadcast payload,
// stored row and reconciled view. ID is either server-assigned or the
// client-generated idempotency token echoed back by the server, so a sender
// can match its optimistic entry against the authoritative copy.
type ChatMessage struct {
	ID          string      `json:"id"`
	RoomID      string      `json:"roomId"`
	Content     string      `json:"content"`
	User        MessageUser `json:"user"`
	RequesterID string      `json:"requesterId,omitempty"`
	CreatedAt   string      `json:"createdAt"`

	IsPrivate   bool `json:"isPrivate,omitempty"`
	IsPending   bool `json:"isPending,omitempty"`
	IsQueued    bool `json:"isQueued,omitempty"`
	IsRetrying  bool `json:"isRetrying,omitempty"`
	IsFailed    bool `json:"isFailed,omitempty"`
	IsDeleted   bool `json:"isDeleted,omitempty"`
	IsStreaming bool `json:"isStreaming,omitempty"`

	// CreatedTs and DeletedTs are store-side columns, not part of the wire shape.
	CreatedTs int64 `json:"-"`
	DeletedTs int64 `json:"-"`
}

// CreatedTime parses the wire timestamp. Unparsable timestamps resolve to
// now so that a malformed message sorts to the end instead of failing the batch.
func (m *ChatMessage) CreatedTime() time.Time {
	if m.CreatedTs != 0 {
		return time.Unix(0, m.CreatedTs*int64(time.Millisecond))
	}
	if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
		return t
	}
	return time.Now()
}

// FindChatMessage is the filter for ListChatMessages.
type FindChatMessage struct {
	ID             *string
	RoomID         *string
	ExcludeDeleted bool
	Limit          *int
}

// DeleteChatMessage is the payload for MarkChatMessageDeleted.
type DeleteChatMessage struct {
	ID string
}
