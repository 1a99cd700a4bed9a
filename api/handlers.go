package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/ai"
	"taskflow/domain"
	"taskflow/store"
)

// DefaultAITimeout bounds a single AI flow when Server.AITimeout is unset.
const DefaultAITimeout = 60 * time.Second

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Workspaces Workspaces
	Auth       Authenticator
	Models     Models
	// Deduper is optional; without it Idempotency-Key headers are ignored.
	Deduper   Deduper
	Tracker   *ai.Tracker
	Logger    *log.Logger
	AITimeout time.Duration
	Now       func() time.Time
	// Location decides which calendar day a bare date or "today" means.
	// Defaults to the location of Now.
	Location *time.Location
}

// today is the current time on the board's calendar.
func (s *Server) today() time.Time {
	return s.Now().In(s.Location)
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, s *Server) {
	if s.Tracker == nil {
		s.Tracker = ai.NewTracker()
	}
	if s.Logger == nil {
		s.Logger = log.StandardLogger()
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.AITimeout <= 0 {
		s.AITimeout = DefaultAITimeout
	}
	if s.Location == nil {
		s.Location = s.Now().Location()
	}

	e.GET("/healthz", healthz)

	g := e.Group("/api", metricsMiddleware(s.Logger), GzipRequestMiddleware(), requireUser(s.Auth))

	g.GET("/tasks", s.listTasks)
	g.POST("/tasks", s.createTask)
	g.GET("/tasks/search", s.searchTasks)
	g.POST("/tasks/batch", s.batchUpdate)
	g.GET("/tasks/:id", s.getTask)
	g.PATCH("/tasks/:id", s.patchTask)
	g.DELETE("/tasks/:id", s.deleteTask)
	g.POST("/tasks/:id/move", s.moveTask)
	g.POST("/tasks/:id/subtasks", s.addSubtask)
	g.POST("/tasks/:id/subtasks/:sid/toggle", s.toggleSubtask)
	g.DELETE("/tasks/:id/subtasks/:sid", s.deleteSubtask)
	g.GET("/calendar", s.calendar)
	g.GET("/dashboard", s.dashboard)

	g.GET("/notifications", s.listNotifications)
	g.POST("/notifications/read", s.markAllRead)

	g.GET("/stream", s.stream)

	g.POST("/tasks/:id/ai/:kind", s.assistTask)
	g.POST("/ai/full-task", s.fullTask)
	g.POST("/ai/quick-add", s.quickAdd)
	g.POST("/ai/prioritize", s.prioritize)
	g.POST("/ai/assistant", s.assistant)
	g.GET("/ai/summary", s.summary)
	g.POST("/ai/audio", s.audio)

	g.PUT("/settings/api-key", s.putAPIKey)
	g.DELETE("/settings/api-key", s.deleteAPIKey)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) workspace(c echo.Context) *store.Workspace {
	return s.Workspaces.Open(c.Request().Context(), userID(c))
}

// decodeBody reads a size-limited JSON body, rejecting unknown fields.
func decodeBody(c echo.Context, limit int64, dst any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		metricsFrom(c).SetErrorStage("decode")
		return err
	}
	return nil
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func notFound(c echo.Context, what string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: what + " not found"})
}

// writeError maps store and AI errors onto HTTP responses. AI failures get a
// generic message; the detail only goes to the log.
func (s *Server) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidTask):
		metricsFrom(c).SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ai.ErrCapability), errors.Is(err, context.DeadlineExceeded):
		metricsFrom(c).SetErrorStage("ai")
		s.Logger.WithError(err).WithField("user", userID(c)).Warn("ai request failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "AI service unavailable, please try again"})
	default:
		metricsFrom(c).SetErrorStage("internal")
		s.Logger.WithError(err).WithField("user", userID(c)).Error("request failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
