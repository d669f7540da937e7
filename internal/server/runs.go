package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	core "github.com/dataworks-ops/automator/internal/agent/core"
)

type runRequest struct {
	Task      string `json:"task"`
	SessionID string `json:"session_id"`
}

// handleRun accepts a task, runs it to a terminal state, and replies with
// the final answer as plain text. Exhausted runs still reply 200 with the
// best-effort report; only Fatal maps to 500.
func (s *Server) handleRun(c echo.Context) error {
	var req runRequest
	if c.Request().Method == http.MethodGet {
		req.Task = c.QueryParam("task")
		req.SessionID = c.QueryParam("session")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Task) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task is required")
	}

	task := core.NewTask(req.Task, req.SessionID)
	convLog, err := s.sessions.Session(c.Request().Context(), task.SessionID)
	if err != nil {
		return err
	}

	report, err := s.orch.Run(c.Request().Context(), task, convLog)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, report.Error)
	}
	return c.String(http.StatusOK, report.Answer)
}

// handleListRuns serves run history from the archive, newest first.
func (s *Server) handleListRuns(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "run archive not configured")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	runs, err := s.archive.ListRuns(c.Request().Context(), c.QueryParam("session"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "run archive not configured")
	}
	rec, turns, err := s.archive.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"run": rec, "turns": turns})
}
