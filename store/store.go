package store

import (
	"context"

	"github.com/parleychat/parley/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateRoom(ctx context.Context, create *Room) (*Room, error) {
	return s.driver.CreateRoom(ctx, create)
}

func (s *Store) ListRooms(ctx context.Context, find *FindRoom) ([]*Room, error) {
	return s.driver.ListRooms(ctx, find)
}

// GetRoom returns the single room matching find, or nil when absent.
func (s *Store) GetRoom(ctx context.Context, find *FindRoom) (*Room, error) {
	list, err := s.driver.ListRooms(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteRoom(ctx context.Context, delete *DeleteRoom) error {
	return s.driver.DeleteRoom(ctx, delete)
}

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

// GetChatMessage returns the single message matching find, or nil when absent.
func (s *Store) GetChatMessage(ctx context.Context, find *FindChatMessage) (*ChatMessage, error) {
	list, err := s.driver.ListChatMessages(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListChatMessagesAfter(ctx context.Context, roomID, afterID, upToID string) ([]*ChatMessage, error) {
	return s.driver.ListChatMessagesAfter(ctx, roomID, afterID, upToID)
}

func (s *Store) ListRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error) {
	return s.driver.ListRecentChatMessages(ctx, roomID, limit)
}

func (s *Store) UpdateChatMessageContent(ctx context.Context, id, content string) error {
	return s.driver.UpdateChatMessageContent(ctx, id, content)
}

func (s *Store) MarkChatMessageDeleted(ctx context.Context, delete *DeleteChatMessage) (int64, error) {
	return s.driver.MarkChatMessageDeleted(ctx, delete)
}
