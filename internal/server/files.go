package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
)

const readMaxBytes = 1 << 20

// handleRead serves a workspace file by relative path. Paths resolving
// outside the workspace are 403, absent files 404.
func (s *Server) handleRead(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "path escapes the workspace")
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		return err
	}
	if info.IsDir() {
		return echo.NewHTTPError(http.StatusBadRequest, "path is a directory")
	}
	if info.Size() > readMaxBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", data)
}
