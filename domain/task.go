package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency label of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority matches s case-insensitively against the known priorities.
func ParsePriority(s string) (Priority, error) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, s)
}

// Status is the board column of a task.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Statuses lists board columns in display order.
var Statuses = []Status{StatusToDo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTask, s)
}

// Subtask is a checklist item owned by exactly one task.
type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is a single board item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Subtasks    []Subtask  `json:"subtasks"`
	ImageURL    string     `json:"imageUrl,omitempty"`
}

// Clone returns a deep copy of t so callers can't alias store state.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	out.Subtasks = make([]Subtask, len(t.Subtasks))
	copy(out.Subtasks, t.Subtasks)
	return out
}

// Validate checks the invariants every stored task must hold.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task %s has an empty title", ErrInvalidTask, t.ID)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: task %s has unknown priority %q", ErrInvalidTask, t.ID, t.Priority)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: task %s has unknown status %q", ErrInvalidTask, t.ID, t.Status)
	}
	return nil
}

// NewTask carries the fields accepted when a task is created. Status is not
// settable; new tasks always start in To Do.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Subtasks    []Subtask  `json:"subtasks,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
}

// Validate rejects input that can't become a task. An empty priority is
// accepted and later defaulted to Medium.
func (n NewTask) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, n.Priority)
	}
	for _, s := range n.Subtasks {
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: subtask text is required", ErrInvalidTask)
		}
	}
	return nil
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	Status       *Status
	DueDate      *time.Time
	ClearDueDate bool
	Subtasks     *[]Subtask
	ImageURL     *string
}

// TaskUpdate pairs a patch with the task it targets.
type TaskUpdate struct {
	ID    string
	Patch TaskPatch
}

// Empty reports whether the patch carries no fields at all.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.Subtasks == nil && p.ImageURL == nil
}

// Validate rejects patch values that would break task invariants.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidTask)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, *p.Priority)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, *p.Status)
	}
	if p.Subtasks != nil {
		for _, s := range *p.Subtasks {
			if strings.TrimSpace(s.Text) == "" {
				return fmt.Errorf("%w: subtask text is required", ErrInvalidTask)
			}
		}
	}
	return nil
}

// Apply merges p into t and reports whether any field actually changed.
// Subtasks without an id are assigned one.
func (p TaskPatch) Apply(t *Task) bool {
	changed := false
	if p.Title != nil && *p.Title != t.Title {
		t.Title = *p.Title
		changed = true
	}
	if p.Description != nil && *p.Description != t.Description {
		t.Description = *p.Description
		changed = true
	}
	if p.Priority != nil && *p.Priority != t.Priority {
		t.Priority = *p.Priority
		changed = true
	}
	if p.Status != nil && *p.Status != t.Status {
		t.Status = *p.Status
		changed = true
	}
	if p.ClearDueDate {
		if t.DueDate != nil {
			t.DueDate = nil
			changed = true
		}
	} else if p.DueDate != nil && (t.DueDate == nil || !t.DueDate.Equal(*p.DueDate)) {
		d := *p.DueDate
		t.DueDate = &d
		changed = true
	}
	if p.Subtasks != nil && !equalSubtasks(t.Subtasks, *p.Subtasks) {
		t.Subtasks = EnsureSubtaskIDs(*p.Subtasks)
		changed = true
	}
	if p.ImageURL != nil && *p.ImageURL != t.ImageURL {
		t.ImageURL = *p.ImageURL
		changed = true
	}
	return changed
}

// EnsureSubtaskIDs returns a copy of subs where every entry has an id unique
// within the slice. It never returns nil.
func EnsureSubtaskIDs(subs []Subtask) []Subtask {
	out := make([]Subtask, 0, len(subs))
	seen := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		if _, dup := seen[s.ID]; s.ID == "" || dup {
			s.ID = NewSubtaskID()
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func equalSubtasks(a, b []Subtask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String helpers for building patches.
func StringPtr(s string) *string { return &s }

func PriorityPtr(p Priority) *Priority { return &p }

func StatusPtr(s Status) *Status { return &s }
