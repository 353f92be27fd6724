// Package v1 exposes the message API over HTTP: rooms, messages, receipts,
// catch-up, room event streams and assistant turns.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/plugin/ai"
	"github.com/parleychat/parley/server/internal/observability"
	"github.com/parleychat/parley/server/middleware"
	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/server/stats"
	"github.com/parleychat/parley/store"
)

// APIV1Service wires the chat and assistant services into echo routes.
type APIV1Service struct {
	Profile     *profile.Profile
	Store       *store.Store
	ChatService *chat.Service
	// Orchestrator is nil when the assistant is disabled.
	Orchestrator *ai.Orchestrator
	Metrics      *observability.Metrics

	rateLimiter *middleware.RateLimiter
	stats       *stats.Collector
}

// NewAPIV1Service creates the API service.
func NewAPIV1Service(p *profile.Profile, st *store.Store, chatService *chat.Service, orchestrator *ai.Orchestrator) *APIV1Service {
	return &APIV1Service{
		Profile:      p,
		Store:        st,
		ChatService:  chatService,
		Orchestrator: orchestrator,
		Metrics:      observability.NewMetrics(),
		rateLimiter:  middleware.NewRateLimiter(10, 20),
		stats:        stats.NewCollector(st),
	}
}

// Register mounts all routes on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1", s.rateLimiter.Middleware())

	g.POST("/rooms", s.CreateRoom)
	g.GET("/rooms", s.ListRooms)
	g.DELETE("/rooms/:roomId", s.DeleteRoom)

	g.POST("/rooms/:roomId/messages", s.SendMessage)
	g.GET("/rooms/:roomId/messages", s.ListMessages)
	g.DELETE("/messages/:messageId", s.UnsendMessage)
	g.POST("/rooms/:roomId/receipts", s.MarkReceived)
	g.GET("/rooms/:roomId/catchup", s.Catchup)
	g.GET("/rooms/:roomId/events", s.StreamEvents)

	g.POST("/rooms/:roomId/assistant", s.AssistantTurn)

	g.GET("/metrics", s.GetMetrics)
	g.GET("/stats", s.GetStats)
}

// callerID identifies the requesting user. Authentication is out of scope
// here; the identity header is trusted as-is.
func callerID(c echo.Context) string {
	return c.Request().Header.Get("X-User-ID")
}

// toHTTPError maps service error codes onto HTTP statuses.
func toHTTPError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return echo.NewHTTPError(http.StatusBadRequest, st.Message())
	case codes.PermissionDenied:
		return echo.NewHTTPError(http.StatusForbidden, st.Message())
	case codes.NotFound:
		return echo.NewHTTPError(http.StatusNotFound, st.Message())
	case codes.AlreadyExists:
		return echo.NewHTTPError(http.StatusConflict, st.Message())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, st.Message())
	}
}

// GetMetrics returns the request counters.
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

// GetStats returns instance usage statistics.
func (s *APIV1Service) GetStats(c echo.Context) error {
	snapshot, err := s.stats.Collect(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to collect stats")
	}
	return c.JSON(http.StatusOK, snapshot)
}
