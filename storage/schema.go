package storage

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// Wire records. Fields are loose so that data written by older clients, or
// edited by hand, still loads.

type subtaskRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type taskRecord struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    string           `json:"priority"`
	Status      string           `json:"status"`
	DueDate     any              `json:"dueDate,omitempty"`
	Subtasks    *[]subtaskRecord `json:"subtasks,omitempty"`
	ImageURL    string           `json:"imageUrl,omitempty"`
}

type notificationRecord struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts full ISO-8601 timestamps and bare calendar dates. Bare
// dates are taken as UTC midnight.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func newTaskRecord(t domain.Task) taskRecord {
	subs := make([]subtaskRecord, 0, len(t.Subtasks))
	for _, s := range t.Subtasks {
		subs = append(subs, subtaskRecord(s))
	}
	rec := taskRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		Subtasks:    &subs,
		ImageURL:    t.ImageURL,
	}
	if t.DueDate != nil {
		rec.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func newNotificationRecord(n domain.Notification) notificationRecord {
	return notificationRecord{
		ID:        n.ID,
		Message:   n.Message,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339Nano),
		Read:      n.Read,
	}
}

func normalizeTasks(recs []taskRecord, logger *log.Entry) []domain.Task {
	out := make([]domain.Task, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for i, r := range recs {
		if strings.TrimSpace(r.Title) == "" {
			logger.WithField("index", i).Warn("dropping stored task without title")
			continue
		}
		t := domain.Task{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			ImageURL:    r.ImageURL,
		}
		if _, dup := seen[t.ID]; t.ID == "" || dup {
			t.ID = domain.NewTaskID()
		}
		seen[t.ID] = struct{}{}

		if p, err := domain.ParsePriority(r.Priority); err == nil {
			t.Priority = p
		} else {
			t.Priority = domain.PriorityMedium
		}
		if s, err := domain.ParseStatus(r.Status); err == nil {
			t.Status = s
		} else {
			t.Status = domain.StatusToDo
		}

		if ds, ok := r.DueDate.(string); ok && ds != "" {
			if d, ok := parseDate(ds); ok {
				t.DueDate = &d
			} else {
				logger.WithField("task", t.ID).WithField("dueDate", ds).Warn("ignoring unparseable due date")
			}
		}

		var subs []domain.Subtask
		if r.Subtasks != nil {
			subs = make([]domain.Subtask, 0, len(*r.Subtasks))
			for _, s := range *r.Subtasks {
				subs = append(subs, domain.Subtask(s))
			}
		}
		t.Subtasks = domain.EnsureSubtaskIDs(subs)
		out = append(out, t)
	}
	return out
}

func normalizeNotifications(recs []notificationRecord, logger *log.Entry) []domain.Notification {
	out := make([]domain.Notification, 0, len(recs))
	for _, r := range recs {
		ts, ok := parseDate(r.Timestamp)
		if !ok {
			logger.WithField("notification", r.ID).Warn("dropping notification with invalid timestamp")
			continue
		}
		id := r.ID
		if id == "" {
			id = domain.NewNotificationID()
		}
		out = append(out, domain.Notification{ID: id, Message: r.Message, Timestamp: ts, Read: r.Read})
	}
	return out
}
