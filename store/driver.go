package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Room model related methods.
	CreateRoom(ctx context.Context, create *Room) (*Room, error)
	ListRooms(ctx context.Context, find *FindRoom) ([]*Room, error)
	DeleteRoom(ctx context.Context, delete *DeleteRoom) error

	// ChatMessage model related methods.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)

	// ListChatMessagesAfter returns the messages in a room created strictly
	// after the message referenced by afterID, up to and including upToID.
	// Recency is created_ts with id as tiebreak.
	ListChatMessagesAfter(ctx context.Context, roomID, afterID, upToID string) ([]*ChatMessage, error)

	// ListRecentChatMessages returns the most recent limit messages of a
	// room in ascending creation order.
	ListRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error)

	// UpdateChatMessageContent replaces a message's content, used while an
	// assistant answer grows during streaming.
	UpdateChatMessageContent(ctx context.Context, id, content string) error

	// MarkChatMessageDeleted soft-deletes a message and returns the deletion timestamp.
	MarkChatMessageDeleted(ctx context.Context, delete *DeleteChatMessage) (int64, error)
}
