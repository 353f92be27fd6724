package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/parleychat/parley/server/internal/observability"
	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/store"
)

// SendMessage accepts a message for a room and returns the authoritative
// copy, echoing the client's idempotency token as the message id.
func (s *APIV1Service) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	caller := callerID(c)
	reqCtx := observability.NewRequestContext(slog.Default(), "send", caller)
	s.Metrics.RecordRequest("send")

	var req chat.SendRequest
	if err := c.Bind(&req); err != nil {
		s.Metrics.RecordFailure("send")
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.RoomID = c.Param("roomId")

	message, err := s.ChatService.Send(ctx, caller, &req)
	if err != nil {
		s.Metrics.RecordFailure("send")
		reqCtx.Warn("send rejected", slog.String(observability.LogFieldRoomID, req.RoomID), slog.String("reason", err.Error()))
		return toHTTPError(err)
	}

	s.Metrics.RecordDuration("send", time.Duration(reqCtx.DurationMs())*time.Millisecond)
	reqCtx.Info("message accepted",
		slog.String(observability.LogFieldRoomID, message.RoomID),
		slog.String(observability.LogFieldMessageID, message.ID))
	return c.JSON(http.StatusOK, message)
}

// ListMessages returns the caller's reconciled view of a room's history.
func (s *APIV1Service) ListMessages(c echo.Context) error {
	messages, err := s.ChatService.List(c.Request().Context(), callerID(c), c.Param("roomId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

// UnsendMessage soft-deletes the caller's own message.
func (s *APIV1Service) UnsendMessage(c echo.Context) error {
	if err := s.ChatService.Unsend(c.Request().Context(), callerID(c), c.Param("messageId")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type receiptRequest struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
}

// MarkReceived records a delivery receipt for the caller.
func (s *APIV1Service) MarkReceived(c echo.Context) error {
	var req receiptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := s.ChatService.MarkReceived(c.Request().Context(), callerID(c), req.UserID, c.Param("roomId"), req.MessageID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Catchup returns the messages the caller missed in a room while offline.
func (s *APIV1Service) Catchup(c echo.Context) error {
	s.Metrics.RecordRequest("catchup")
	userID := c.QueryParam("userId")
	missed, err := s.ChatService.Catchup(c.Request().Context(), callerID(c), userID, c.Param("roomId"))
	if err != nil {
		s.Metrics.RecordFailure("catchup")
		return toHTTPError(err)
	}
	if missed == nil {
		missed = []*store.ChatMessage{}
	}
	return c.JSON(http.StatusOK, missed)
}

// StreamEvents pushes a room's broadcast events to the caller as
// server-sent events until the client disconnects.
func (s *APIV1Service) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()
	roomID := c.Param("roomId")

	events, cancel, err := s.ChatService.Subscribe(ctx, roomID)
	if err != nil {
		return toHTTPError(err)
	}
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
			s.Metrics.RecordStreamChunk()
		case <-ctx.Done():
			return nil
		}
	}
}

// writeSSE encodes one JSON event in server-sent-event framing.
func writeSSE(resp *echo.Response, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
