package chat

import (
	"context"

	"github.com/lithammer/shortuuid/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parleychat/parley/store"
)

// CreateRoom creates a room owned by the caller. Room names are unique;
// reusing one is a conflict, not an idempotent success.
func (s *Service) CreateRoom(ctx context.Context, callerID, name string) (*store.Room, error) {
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "room name is required")
	}
	existing, err := s.store.GetRoom(ctx, &store.FindRoom{Name: &name})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to check room name: %v", err)
	}
	if existing != nil {
		return nil, status.Errorf(codes.AlreadyExists, "room %q already exists", name)
	}

	room, err := s.store.CreateRoom(ctx, &store.Room{
		ID:        shortuuid.New(),
		Name:      name,
		CreatorID: callerID,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to create room: %v", err)
	}
	return room, nil
}

// ListRooms returns all rooms.
func (s *Service) ListRooms(ctx context.Context) ([]*store.Room, error) {
	rooms, err := s.store.ListRooms(ctx, &store.FindRoom{})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list rooms: %v", err)
	}
	return rooms, nil
}

// DeleteRoom removes a room. Only its creator may delete it.
func (s *Service) DeleteRoom(ctx context.Context, callerID, roomID string) error {
	room, err := s.store.GetRoom(ctx, &store.FindRoom{ID: &roomID})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to load room: %v", err)
	}
	if room == nil {
		return status.Errorf(codes.NotFound, "room %s not found", roomID)
	}
	if room.CreatorID != callerID {
		return status.Error(codes.PermissionDenied, "cannot delete another user's room")
	}
	if err := s.store.DeleteRoom(ctx, &store.DeleteRoom{ID: roomID}); err != nil {
		return status.Errorf(codes.Internal, "failed to delete room: %v", err)
	}
	return nil
}

// List returns the caller's reconciled view of a room's history: deleted
// messages excluded, private messages only for their participants, ordered
// by creation time.
func (s *Service) List(ctx context.Context, callerID, roomID string) ([]*store.ChatMessage, error) {
	room, err := s.store.GetRoom(ctx, &store.FindRoom{ID: &roomID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to load room: %v", err)
	}
	if room == nil {
		return nil, status.Errorf(codes.NotFound, "room %s not found", roomID)
	}

	messages, err := s.store.ListChatMessages(ctx, &store.FindChatMessage{RoomID: &roomID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list messages: %v", err)
	}
	return Reconcile(callerID, Inputs{Initial: messages}), nil
}

// Subscribe opens the caller's event feed for a room. The returned cancel
// func must be called when the consumer goes away.
func (s *Service) Subscribe(ctx context.Context, roomID string) (<-chan []byte, func(), error) {
	return s.broker.Subscribe(ctx, roomID)
}
