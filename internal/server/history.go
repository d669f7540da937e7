package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleClear resets the session's conversation log. The next run in that
// session starts with an empty window.
func (s *Server) handleClear(c echo.Context) error {
	convLog, err := s.sessions.Session(c.Request().Context(), sessionID(c, "default"))
	if err != nil {
		return err
	}
	if err := convLog.Reset(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

// handleChatHistory returns the session's full turn log, oldest first.
func (s *Server) handleChatHistory(c echo.Context) error {
	convLog, err := s.sessions.Session(c.Request().Context(), sessionID(c, "default"))
	if err != nil {
		return err
	}
	turns, err := convLog.Full(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"turns": turns})
}
