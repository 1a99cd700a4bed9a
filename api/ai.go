package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/ai"
	"taskflow/domain"
	"taskflow/store"
)

// client resolves the AI client for the calling user, preferring their own
// key over the server default.
func (s *Server) client(c echo.Context, ws *store.Workspace) (*ai.Client, error) {
	ctx := c.Request().Context()
	key, _ := ws.APIKey(ctx)
	m, err := s.Models.Model(ctx, key)
	if err != nil {
		return nil, err
	}
	return ai.NewClient(m), nil
}

func (s *Server) aiContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), s.AITimeout)
}

func (s *Server) unavailable(c echo.Context, err error) error {
	metricsFrom(c).SetErrorStage("ai_model")
	s.Logger.WithError(err).WithField("user", userID(c)).Warn("ai model unavailable")
	return c.JSON(http.StatusBadGateway, errorResponse{Error: "AI service unavailable, please try again"})
}

// assistTask fills one field of an existing task from the model. When two
// calls for the same field overlap, only the newest result is applied and
// the older request gets 409.
func (s *Server) assistTask(c echo.Context) error {
	kind := ai.Kind(c.Param("kind"))
	switch kind {
	case ai.KindDescription, ai.KindPriority, ai.KindSubtasks, ai.KindImage:
	default:
		return notFound(c, "ai action")
	}
	ws := s.workspace(c)
	id := c.Param("id")
	task, ok := ws.Tasks.Task(id)
	if !ok {
		return notFound(c, "task")
	}
	client, err := s.client(c, ws)
	if err != nil {
		return s.unavailable(c, err)
	}

	ticket := s.Tracker.Begin(ws.UserID, id, kind)
	ctx, cancel := s.aiContext(c)
	defer cancel()

	var patch domain.TaskPatch
	var newSubtasks []string
	switch kind {
	case ai.KindDescription:
		var desc string
		desc, err = client.GenerateDescription(ctx, task.Title)
		patch.Description = &desc
	case ai.KindPriority:
		var p domain.Priority
		p, err = client.DeterminePriority(ctx, task.Title, task.Description)
		patch.Priority = &p
	case ai.KindSubtasks:
		newSubtasks, err = client.GenerateSubtasks(ctx, task.Title, task.Description)
	case ai.KindImage:
		var uri string
		uri, err = client.GenerateImage(ctx, task.Title)
		patch.ImageURL = &uri
	}
	current := s.Tracker.Finish(ticket)
	if err != nil {
		return s.writeError(c, err)
	}
	if !current {
		s.Logger.WithFields(log.Fields{"user": ws.UserID, "task": id, "kind": kind}).
			Info("discarding superseded ai result")
		return c.JSON(http.StatusConflict, errorResponse{Error: "superseded by a newer request"})
	}

	reqCtx := c.Request().Context()
	if kind == ai.KindSubtasks {
		latest, ok := ws.Tasks.Task(id)
		if !ok {
			return notFound(c, "task")
		}
		subs := latest.Subtasks
		for _, text := range newSubtasks {
			subs = append(subs, domain.Subtask{Text: text})
		}
		patch.Subtasks = &subs
	}
	updated, found, err := ws.Tasks.UpdateTask(reqCtx, id, patch)
	if err != nil {
		return s.writeError(c, err)
	}
	if !found {
		return notFound(c, "task")
	}
	return c.JSON(http.StatusOK, updated)
}

// fullTask previews a complete task for a title without saving it.
func (s *Server) fullTask(c echo.Context) error {
	var req titleRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return badRequest(c, "title is required")
	}
	client, err := s.client(c, s.workspace(c))
	if err != nil {
		return s.unavailable(c, err)
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()
	full, err := client.GenerateFullTask(ctx, strings.TrimSpace(req.Title))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, full)
}

// quickAdd parses free text into a task and creates it.
func (s *Server) quickAdd(c echo.Context) error {
	var req textRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest(c, "text is required")
	}
	ws := s.workspace(c)
	client, err := s.client(c, ws)
	if err != nil {
		return s.unavailable(c, err)
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()
	parsed, err := client.ParseTask(ctx, req.Text, s.today())
	if err != nil {
		return s.writeError(c, err)
	}
	t, err := ws.Tasks.AddTask(c.Request().Context(), domain.NewTask{
		Title:       parsed.Title,
		Description: parsed.Description,
		Priority:    parsed.Priority,
		DueDate:     parsed.DueDate,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// prioritize asks the model to re-rank every open task and applies the
// answer as one batch.
func (s *Server) prioritize(c echo.Context) error {
	ws := s.workspace(c)
	var infos []ai.TaskInfo
	for _, t := range ws.Tasks.Tasks() {
		if t.Status == domain.StatusDone {
			continue
		}
		infos = append(infos, ai.TaskInfo{ID: t.ID, Title: t.Title, Description: t.Description})
	}
	if len(infos) == 0 {
		return c.JSON(http.StatusOK, batchResponse{})
	}
	client, err := s.client(c, ws)
	if err != nil {
		return s.unavailable(c, err)
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()
	assignments, err := client.PrioritizeTasks(ctx, infos)
	if err != nil {
		return s.writeError(c, err)
	}
	// Only tasks that were asked about are touched, once each; the first
	// answer for an id wins.
	pending := make(map[string]bool, len(infos))
	for _, info := range infos {
		pending[info.ID] = true
	}
	updates := make([]domain.TaskUpdate, 0, len(assignments))
	for _, a := range assignments {
		if !pending[a.ID] {
			continue
		}
		pending[a.ID] = false
		updates = append(updates, domain.TaskUpdate{ID: a.ID, Patch: domain.TaskPatch{Priority: domain.PriorityPtr(a.Priority)}})
	}
	n, err := ws.Tasks.UpdateMultipleTasks(c.Request().Context(), updates)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, batchResponse{Updated: n})
}

// assistant runs one conversational turn. The tools work on a copy of the
// board, which replaces the stored list only once the model has finished.
func (s *Server) assistant(c echo.Context) error {
	var req queryRequest
	if err := decodeBody(c, maxAssistantBody, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return badRequest(c, "query is required")
	}
	ws := s.workspace(c)
	client, err := s.client(c, ws)
	if err != nil {
		return s.unavailable(c, err)
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()
	res, err := client.Assistant(ctx, req.Query, ws.Tasks.Tasks())
	if err != nil {
		return s.writeError(c, err)
	}
	if err := ws.Tasks.ReplaceTasks(c.Request().Context(), res.Tasks); err != nil {
		return s.writeError(c, err)
	}
	res.Tasks = ws.Tasks.Tasks()
	return c.JSON(http.StatusOK, res)
}

func (s *Server) summary(c echo.Context) error {
	ws := s.workspace(c)
	stats := ws.Tasks.Stats(s.Now())
	if stats.Total == 0 {
		return c.JSON(http.StatusOK, summaryRequest{Summary: ai.EmptyBoardSummary})
	}
	client, err := s.client(c, ws)
	if err != nil {
		return s.unavailable(c, err)
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()
	text, err := client.DashboardSummary(ctx, stats)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, summaryRequest{Summary: text})
}

type audioResponse struct {
	Audio string `json:"audio"`
}

// audio reads a summary aloud. The body carries the text so clients can
// reuse the summary they already show.
func (s *Server) audio(c echo.Context) error {
	var req summaryRequest
	if err := decodeBody(c, maxBodySize, &req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Summary) == "" {
		return badRequest(c, "summary is required")
	}
	client, err := s.client(c, s.workspace(c))
	if err != nil {
		return s.unavailable(c, err)
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()
	uri, err := client.AudioSummary(ctx, req.Summary)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, audioResponse{Audio: uri})
}
