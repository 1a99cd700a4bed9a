package api

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"taskflow/domain"
)

const (
	maxBodySize      = 256 * 1024 // 256 KiB
	maxAssistantBody = 64 * 1024
)

// flexDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp. Set records that
// the field was present at all, so an explicit null can clear a date. The
// text is resolved against the board location by resolve.
type flexDate struct {
	Set bool
	Raw string
}

func (d *flexDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		d.Raw = ""
		return nil
	}
	var s string
	if err := sonic.ConfigStd.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: dueDate must be a string", domain.ErrInvalidTask)
	}
	d.Raw = strings.TrimSpace(s)
	return nil
}

func (d flexDate) resolve(loc *time.Location) (*time.Time, error) {
	if d.Raw == "" {
		return nil, nil
	}
	t, err := domain.ParseDay(d.Raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type subtaskBody struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Completed bool   `json:"completed,omitempty"`
}

func toSubtasks(in []subtaskBody) []domain.Subtask {
	out := make([]domain.Subtask, 0, len(in))
	for _, s := range in {
		out = append(out, domain.Subtask{ID: s.ID, Text: s.Text, Completed: s.Completed})
	}
	return out
}

// POST /api/tasks request body
type createTaskRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	DueDate     flexDate      `json:"dueDate"`
	Subtasks    []subtaskBody `json:"subtasks"`
	ImageURL    string        `json:"imageUrl"`
}

func (r createTaskRequest) toNewTask(loc *time.Location) (domain.NewTask, error) {
	due, err := r.DueDate.resolve(loc)
	if err != nil {
		return domain.NewTask{}, err
	}
	nt := domain.NewTask{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     due,
		Subtasks:    toSubtasks(r.Subtasks),
		ImageURL:    r.ImageURL,
	}
	if strings.TrimSpace(r.Priority) != "" {
		p, err := domain.ParsePriority(r.Priority)
		if err != nil {
			return domain.NewTask{}, err
		}
		nt.Priority = p
	}
	return nt, nil
}

// PATCH /api/tasks/:id request body; also one entry of a batch.
type patchTaskRequest struct {
	ID          string         `json:"id,omitempty"`
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority"`
	Status      *string        `json:"status"`
	DueDate     flexDate       `json:"dueDate"`
	Subtasks    *[]subtaskBody `json:"subtasks"`
	ImageURL    *string        `json:"imageUrl"`
}

func (r patchTaskRequest) toPatch(loc *time.Location) (domain.TaskPatch, error) {
	p := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		ImageURL:    r.ImageURL,
	}
	if r.Priority != nil {
		pr, err := domain.ParsePriority(*r.Priority)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if r.Status != nil {
		st, err := domain.ParseStatus(*r.Status)
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	if r.DueDate.Set {
		due, err := r.DueDate.resolve(loc)
		if err != nil {
			return p, err
		}
		if due == nil {
			p.ClearDueDate = true
		} else {
			p.DueDate = due
		}
	}
	if r.Subtasks != nil {
		subs := toSubtasks(*r.Subtasks)
		p.Subtasks = &subs
	}
	return p, nil
}

type moveTaskRequest struct {
	Status string `json:"status"`
}

type subtaskRequest struct {
	Text string `json:"text"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type textRequest struct {
	Text string `json:"text"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type summaryRequest struct {
	Summary string `json:"summary"`
}

type apiKeyRequest struct {
	APIKey string `json:"apiKey"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type batchResponse struct {
	Updated int `json:"updated"`
}

type notificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// snapshot is the payload of every stream event.
type snapshot struct {
	Tasks         []domain.Task         `json:"tasks"`
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

type errorResponse struct {
	Error string `json:"error"`
}
