package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/lithammer/shortuuid/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parleychat/parley/server/broker"
	"github.com/parleychat/parley/store"
)

// Broadcast event types. The payload is the JSON-encoded Event.
const (
	EventMessage = "message"
	EventDelete  = "message-delete"
)

// Event is the broadcast envelope published to the room topic.
type Event struct {
	Type      string             `json:"type"`
	Message   *store.ChatMessage `json:"message,omitempty"`
	MessageID string             `json:"messageId,omitempty"`
}

// SendRequest is a message send attempt. ClientMsgID is the client-generated
// idempotency token; when present it becomes the message id, so the server
// echo lets the sender replace its optimistic entry instead of duplicating it.
type SendRequest struct {
	RoomID      string            `json:"roomId"`
	ClientMsgID string            `json:"clientMsgId"`
	Content     string            `json:"content"`
	User        store.MessageUser `json:"user"`
	RequesterID string            `json:"requesterId"`
	IsPrivate   bool              `json:"isPrivate"`
}

// Service implements the room message operations: send, unsend, receipt
// tracking and catch-up.
type Service struct {
	store   *store.Store
	tracker *Tracker
	catchup *Catchup
	broker  broker.Broker
}

// NewService creates a chat service.
func NewService(st *store.Store, tracker *Tracker, catchup *Catchup, b broker.Broker) *Service {
	return &Service{store: st, tracker: tracker, catchup: catchup, broker: b}
}

// Tracker exposes the delivery tracker for callers that record receipts directly.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Send validates and persists a message, advances the room's latest pointer,
// and broadcasts the authoritative copy. callerID must match the sender;
// users may only send as themselves.
func (s *Service) Send(ctx context.Context, callerID string, req *SendRequest) (*store.ChatMessage, error) {
	if req.RoomID == "" || req.User.ID == "" || req.User.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "roomId and user identity are required")
	}
	if req.Content == "" {
		return nil, status.Error(codes.InvalidArgument, "content is required")
	}
	if callerID != req.User.ID {
		return nil, status.Error(codes.PermissionDenied, "cannot send as another user")
	}

	room, err := s.store.GetRoom(ctx, &store.FindRoom{ID: &req.RoomID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to load room: %v", err)
	}
	if room == nil {
		return nil, status.Errorf(codes.NotFound, "room %s not found", req.RoomID)
	}

	id := req.ClientMsgID
	if id == "" {
		id = shortuuid.New()
	} else if existing, err := s.store.GetChatMessage(ctx, &store.FindChatMessage{ID: &id}); err == nil && existing != nil {
		// Duplicate of an already-accepted send; acknowledge without side effects.
		return existing, nil
	}

	message, err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
		ID:          id,
		RoomID:      req.RoomID,
		Content:     req.Content,
		User:        req.User,
		RequesterID: req.RequesterID,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to store message: %v", err)
	}

	// Pointer write is unconditional on accepted sends, independent of
	// whether the broadcast below succeeds.
	s.tracker.AdvanceRoomLatest(ctx, message.RoomID, message.ID)

	s.publish(ctx, message.RoomID, &Event{Type: EventMessage, Message: message})
	return message, nil
}

// Broadcast publishes a message's current stored state to its room. Send
// broadcasts on its own; this is for callers that update a message after
// acceptance, like the assistant finalizing a streamed answer.
func (s *Service) Broadcast(ctx context.Context, message *store.ChatMessage) {
	s.publish(ctx, message.RoomID, &Event{Type: EventMessage, Message: message})
}

// Unsend soft-deletes a message. Only the sender may unsend.
func (s *Service) Unsend(ctx context.Context, callerID, messageID string) error {
	message, err := s.store.GetChatMessage(ctx, &store.FindChatMessage{ID: &messageID})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to load message: %v", err)
	}
	if message == nil {
		return status.Errorf(codes.NotFound, "message %s not found", messageID)
	}
	if message.User.ID != callerID {
		return status.Error(codes.PermissionDenied, "cannot unsend another user's message")
	}

	if _, err := s.store.MarkChatMessageDeleted(ctx, &store.DeleteChatMessage{ID: messageID}); err != nil {
		return status.Errorf(codes.Internal, "failed to delete message: %v", err)
	}

	s.publish(ctx, message.RoomID, &Event{Type: EventDelete, MessageID: messageID})
	return nil
}

// MarkReceived records a delivery receipt. Users may only confirm their own receipts.
func (s *Service) MarkReceived(ctx context.Context, callerID, userID, roomID, messageID string) error {
	if callerID != userID {
		return status.Error(codes.PermissionDenied, "cannot mark received for another user")
	}
	if roomID == "" || messageID == "" {
		return status.Error(codes.InvalidArgument, "roomId and messageId are required")
	}
	s.tracker.MarkReceived(ctx, userID, roomID, messageID)
	return nil
}

// Catchup returns the messages the user missed in a room.
func (s *Service) Catchup(ctx context.Context, callerID, userID, roomID string) ([]*store.ChatMessage, error) {
	if callerID != userID {
		return nil, status.Error(codes.PermissionDenied, "cannot catch up as another user")
	}
	missed, err := s.catchup.Missed(ctx, userID, roomID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "catch-up failed: %v", err)
	}
	return missed, nil
}

// publish is best-effort: the reconciliation and catch-up paths recover from
// a lost broadcast, so a broker failure only degrades latency.
func (s *Service) publish(ctx context.Context, roomID string, event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode broadcast event", slog.String("room_id", roomID), slog.String("error", err.Error()))
		return
	}
	if err := s.broker.Publish(ctx, roomID, payload); err != nil {
		slog.Warn("failed to publish broadcast event", slog.String("room_id", roomID), slog.String("error", err.Error()))
	}
}
