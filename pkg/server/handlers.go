package server

import (
	"errors"
	"net/http"
	"strconv"

	"meetfleet/pkg/balancer"
	"meetfleet/pkg/log"
	"meetfleet/pkg/poller"
	"meetfleet/pkg/store"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports process liveness and database reachability.
func (s *Server) HealthHandler(ctx echo.Context) error {
	if err := s.store.Ping(ctx.Request().Context()); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListServersHandler returns the whole fleet with current health and usage.
func (s *Server) ListServersHandler(ctx echo.Context) error {
	servers, err := s.store.ListServers(ctx.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list servers")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list servers",
		})
	}
	return ctx.JSON(http.StatusOK, servers)
}

// GetServerHandler returns one server by id.
func (s *Server) GetServerHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid server id",
		})
	}

	server, err := s.store.GetServer(ctx.Request().Context(), id)
	if errors.Is(err, store.ErrServerNotFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Server not found",
		})
	}
	if err != nil {
		log.Error().Err(err).Int64("server_id", id).Msg("Failed to get server")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to get server",
		})
	}
	return ctx.JSON(http.StatusOK, server)
}

// PanicHandler disables a server and ends its meetings, best effort.
func (s *Server) PanicHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid server id",
		})
	}

	result, err := s.poller.Panic(ctx.Request().Context(), id)
	if errors.Is(err, store.ErrServerNotFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Server not found",
		})
	}
	if errors.Is(err, poller.ErrCycleInProgress) {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Error().Err(err).Int64("server_id", id).Msg("Server panic failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Server panic failed",
		})
	}
	return ctx.JSON(http.StatusOK, result)
}

// PollHandler runs one reconciliation cycle for a server immediately.
func (s *Server) PollHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid server id",
		})
	}

	if _, err := s.store.GetServer(ctx.Request().Context(), id); errors.Is(err, store.ErrServerNotFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Server not found",
		})
	}

	outcome := s.poller.PollOne(ctx.Request().Context(), id)
	return ctx.JSON(http.StatusOK, map[string]any{
		"server_id":      outcome.ServerID,
		"outcome":        outcome.Kind.String(),
		"health":         outcome.Health,
		"meetings_ended": outcome.MeetingsEnded,
	})
}

// ListMeetingsHandler returns all currently running meetings.
func (s *Server) ListMeetingsHandler(ctx echo.Context) error {
	meetings, err := s.store.ListRunningMeetings(ctx.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list meetings")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list meetings",
		})
	}
	return ctx.JSON(http.StatusOK, meetings)
}

type startMeetingRequest struct {
	PoolID int64 `json:"pool_id"`
}

// StartMeetingHandler places a new meeting for a room on the least-loaded
// eligible server of the requested pool.
func (s *Server) StartMeetingHandler(ctx echo.Context) error {
	roomID, err := pathID(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid room id",
		})
	}

	var req startMeetingRequest
	if err := ctx.Bind(&req); err != nil || req.PoolID == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "pool_id is required",
		})
	}

	meeting, err := s.service.StartMeeting(ctx.Request().Context(), roomID, req.PoolID)
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Room not found",
		})
	case errors.Is(err, store.ErrRoomBusy):
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": "Room already has a running meeting",
		})
	case errors.Is(err, balancer.ErrNoServerAvailable):
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "No server available",
		})
	case err != nil:
		log.Error().Err(err).Int64("room_id", roomID).Msg("Failed to start meeting")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to start meeting",
		})
	}
	return ctx.JSON(http.StatusCreated, meeting)
}

func pathID(ctx echo.Context) (int64, error) {
	return strconv.ParseInt(ctx.Param("id"), 10, 64)
}
