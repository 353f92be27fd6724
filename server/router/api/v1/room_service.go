package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type createRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom creates a room. Duplicate names return 409.
func (s *APIV1Service) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	room, err := s.ChatService.CreateRoom(c.Request().Context(), callerID(c), req.Name)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, room)
}

// ListRooms returns all rooms.
func (s *APIV1Service) ListRooms(c echo.Context) error {
	rooms, err := s.ChatService.ListRooms(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// DeleteRoom removes a room; only its creator may.
func (s *APIV1Service) DeleteRoom(c echo.Context) error {
	if err := s.ChatService.DeleteRoom(c.Request().Context(), callerID(c), c.Param("roomId")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
