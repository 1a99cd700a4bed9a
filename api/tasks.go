package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"taskflow/domain"
)

type batchRequest struct {
	Updates []patchTaskRequest `json:"updates"`
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, tasksResponse{Tasks: s.workspace(c).Tasks.Tasks()})
}

func (s *Server) getTask(c echo.Context) error {
	t, ok := s.workspace(c).Tasks.Task(c.Param("id"))
	if !ok {
		return notFound(c, "task")
	}
	return c.JSON(http.StatusOK, t)
}

// createTask adds a task. A repeated Idempotency-Key is answered with 409
// instead of creating a second copy.
func (s *Server) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	nt, err := req.toNewTask(s.Location)
	if err != nil {
		return s.writeError(c, err)
	}

	ctx := c.Request().Context()
	uid := userID(c)
	key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
	if key != "" && s.Deduper != nil {
		added, err := s.Deduper.Add(ctx, uid, key)
		if err != nil {
			return s.writeError(c, err)
		}
		if !added {
			metricsFrom(c).SetErrorStage("duplicate")
			return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
		}
	}

	t, err := s.workspace(c).Tasks.AddTask(ctx, nt)
	if err != nil {
		if key != "" && s.Deduper != nil {
			if rerr := s.Deduper.Remove(ctx, uid, key); rerr != nil {
				s.Logger.WithError(rerr).Warn("failed to release idempotency key")
			}
		}
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) patchTask(c echo.Context) error {
	var req patchTaskRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	id := c.Param("id")
	if req.ID != "" && req.ID != id {
		return badRequest(c, "id mismatch")
	}
	patch, err := req.toPatch(s.Location)
	if err != nil {
		return s.writeError(c, err)
	}
	t, found, err := s.workspace(c).Tasks.UpdateTask(c.Request().Context(), id, patch)
	if err != nil {
		return s.writeError(c, err)
	}
	if !found {
		return notFound(c, "task")
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	if !s.workspace(c).Tasks.DeleteTask(c.Request().Context(), c.Param("id")) {
		return notFound(c, "task")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) moveTask(c echo.Context) error {
	var req moveTaskRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return s.writeError(c, err)
	}
	t, found, err := s.workspace(c).Tasks.MoveTask(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return s.writeError(c, err)
	}
	if !found {
		return notFound(c, "task")
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) batchUpdate(c echo.Context) error {
	var req batchRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	updates := make([]domain.TaskUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		if strings.TrimSpace(u.ID) == "" {
			return badRequest(c, "every update needs an id")
		}
		patch, err := u.toPatch(s.Location)
		if err != nil {
			return s.writeError(c, err)
		}
		updates = append(updates, domain.TaskUpdate{ID: u.ID, Patch: patch})
	}
	n, err := s.workspace(c).Tasks.UpdateMultipleTasks(c.Request().Context(), updates)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, batchResponse{Updated: n})
}

func (s *Server) addSubtask(c echo.Context) error {
	var req subtaskRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	sub, found, err := s.workspace(c).Tasks.AddSubtask(c.Request().Context(), c.Param("id"), req.Text)
	if err != nil {
		return s.writeError(c, err)
	}
	if !found {
		return notFound(c, "task")
	}
	return c.JSON(http.StatusCreated, sub)
}

func (s *Server) toggleSubtask(c echo.Context) error {
	ws := s.workspace(c)
	id := c.Param("id")
	if !ws.Tasks.ToggleSubtask(c.Request().Context(), id, c.Param("sid")) {
		return notFound(c, "subtask")
	}
	t, _ := ws.Tasks.Task(id)
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteSubtask(c echo.Context) error {
	if !s.workspace(c).Tasks.DeleteSubtask(c.Request().Context(), c.Param("id"), c.Param("sid")) {
		return notFound(c, "subtask")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) searchTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, tasksResponse{Tasks: s.workspace(c).Tasks.Search(c.QueryParam("q"))})
}

// calendar lists tasks due on ?date=YYYY-MM-DD, today when omitted.
func (s *Server) calendar(c echo.Context) error {
	day := s.today()
	if d := strings.TrimSpace(c.QueryParam("date")); d != "" {
		parsed, err := time.ParseInLocation(domain.DayLayout, d, s.Location)
		if err != nil {
			return badRequest(c, "invalid date")
		}
		day = parsed
	}
	return c.JSON(http.StatusOK, tasksResponse{Tasks: s.workspace(c).Tasks.DueOn(day)})
}

func (s *Server) dashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.workspace(c).Tasks.Stats(s.Now()))
}
