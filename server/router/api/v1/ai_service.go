package v1

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/parleychat/parley/plugin/ai"
	"github.com/parleychat/parley/server/internal/observability"
	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/store"
)

type assistantTurnRequest struct {
	MessageID    string `json:"messageId"`
	SystemPrompt string `json:"systemPrompt"`
	Text         string `json:"text"`
}

// AssistantTurn runs one assistant response to a message in a room and
// streams the answer back as server-sent events. The answer's message id is
// allocated before the first chunk, so every event and the persisted row
// carry the same id and the in-flight stream reconciles against the stored
// copy as one message. Each event carries the delta and the cumulative text;
// the growing answer is also persisted so a reader joining mid-stream still
// sees it via the normal message path.
func (s *APIV1Service) AssistantTurn(c echo.Context) error {
	if s.Orchestrator == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "assistant is not enabled")
	}

	ctx := c.Request().Context()
	caller := callerID(c)
	roomID := c.Param("roomId")
	reqCtx := observability.NewRequestContext(slog.Default(), "assistant", caller)
	s.Metrics.RecordRequest("assistant")

	var req assistantTurnRequest
	if err := c.Bind(&req); err != nil {
		s.Metrics.RecordFailure("assistant")
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	turn := &ai.TurnRequest{
		MessageID:    shortuuid.New(),
		UserText:     req.Text,
		SystemPrompt: req.SystemPrompt,
	}
	if req.MessageID != "" {
		target, err := s.Store.GetChatMessage(ctx, &store.FindChatMessage{ID: &req.MessageID})
		if err == nil && target != nil {
			turn.ReplyTarget = target.Content
			if turn.UserText == "" {
				turn.UserText = target.Content
			}
		}
	}
	if turn.UserText == "" {
		s.Metrics.RecordFailure("assistant")
		return echo.NewHTTPError(http.StatusBadRequest, "text or messageId is required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	emit := func(chunk ai.Chunk) error {
		if err := writeSSE(resp, chunk); err != nil {
			return err
		}
		s.Metrics.RecordStreamChunk()
		return nil
	}

	observer := s.persistObserver(roomID, turn.MessageID)

	if err := s.Orchestrator.Respond(ctx, turn, emit, observer); err != nil {
		s.Metrics.RecordFailure("assistant")
		reqCtx.Error("assistant turn failed", err, slog.String(observability.LogFieldRoomID, roomID))
		return nil
	}

	// The per-chunk broadcast only carried the opening of the answer;
	// re-publish the stored row so subscribers get the final text.
	if final, err := s.Store.GetChatMessage(context.Background(), &store.FindChatMessage{ID: &turn.MessageID}); err == nil && final != nil {
		s.ChatService.Broadcast(context.Background(), final)
	}

	s.Metrics.RecordDuration("assistant", time.Duration(reqCtx.DurationMs())*time.Millisecond)
	reqCtx.Info("assistant turn finished",
		slog.String(observability.LogFieldRoomID, roomID),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	return nil
}

// persistObserver sends the assistant's answer into the room on the first
// chunk and then keeps the stored row in sync with the growing text. The
// caller-allocated messageID is passed as the idempotency token, so the row
// shares its id with the stream's chunks. Persistence failures are surfaced
// to the stream layer, which logs them and keeps streaming.
func (s *APIV1Service) persistObserver(roomID, messageID string) ai.Observer {
	assistant := store.MessageUser{ID: "assistant", Name: "Assistant"}
	var mu sync.Mutex
	created := false

	// Detached from the request context so a client disconnect mid-stream
	// does not lose the partial answer.
	ctx := context.Background()

	return func(fullContent string) error {
		mu.Lock()
		defer mu.Unlock()

		if !created {
			_, err := s.ChatService.Send(ctx, assistant.ID, &chat.SendRequest{
				RoomID:      roomID,
				ClientMsgID: messageID,
				Content:     fullContent,
				User:        assistant,
			})
			if err != nil {
				return err
			}
			created = true
			return nil
		}
		return s.Store.UpdateChatMessageContent(ctx, messageID, fullContent)
	}
}
