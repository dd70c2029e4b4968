package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"edumarket_echo/internal/services"
)

// SessionHandler exposes the user's own active sessions
type SessionHandler struct {
	governor *services.SessionGovernor
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(governor *services.SessionGovernor) *SessionHandler {
	return &SessionHandler{governor: governor}
}

// ListSessions returns the caller's live sessions, flagging the one
// behind this request.
func (h *SessionHandler) ListSessions(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	sessions, err := h.governor.ListLive(userID, currentSessionToken(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list sessions")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// EndSession terminates one of the caller's sessions by id. Sessions of
// other users are indistinguishable from nonexistent ones.
func (h *SessionHandler) EndSession(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	sessionID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.governor.EndByID(userID, sessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to end session")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "session ended",
	})
}
