package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// putAPIKey saves the user's own Gemini key. It is never echoed back.
func (s *Server) putAPIKey(c echo.Context) error {
	var req apiKeyRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return badRequest(c, "apiKey is required")
	}
	ctx := c.Request().Context()
	ws := s.workspace(c)
	if old, ok := ws.APIKey(ctx); ok && old != strings.TrimSpace(req.APIKey) {
		s.Models.Forget(old)
	}
	ws.SetAPIKey(ctx, req.APIKey)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteAPIKey(c echo.Context) error {
	ctx := c.Request().Context()
	ws := s.workspace(c)
	if old, ok := ws.APIKey(ctx); ok {
		s.Models.Forget(old)
	}
	ws.ClearAPIKey(ctx)
	return c.NoContent(http.StatusNoContent)
}
