package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
	"taskflow/storage"
)

// Notifier receives activity messages produced by task mutations.
type Notifier interface {
	AddNotification(ctx context.Context, message string) domain.Notification
}

// TaskOption configures a TaskStore.
type TaskOption func(*TaskStore)

// WithClock overrides time.Now, mostly for seeding in tests.
func WithClock(now func() time.Time) TaskOption {
	return func(s *TaskStore) { s.now = now }
}

// WithTasksKey overrides the storage key of the task list.
func WithTasksKey(key string) TaskOption {
	return func(s *TaskStore) { s.key = key }
}

// TaskStore owns the ordered task list. Mutations are serialized and each one
// is persisted before it returns.
type TaskStore struct {
	codec    *storage.Codec
	notifier Notifier
	now      func() time.Time
	key      string
	broker   *broker

	mu    sync.RWMutex
	tasks []domain.Task
}

func NewTaskStore(codec *storage.Codec, notifier Notifier, opts ...TaskOption) *TaskStore {
	if codec == nil {
		panic("store.NewTaskStore: codec is nil")
	}
	s := &TaskStore{
		codec:    codec,
		notifier: notifier,
		now:      time.Now,
		key:      storage.TasksKey,
		broker:   newBroker(),
		tasks:    []domain.Task{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load restores persisted tasks, seeding the sample board when nothing
// usable is stored. A stored empty list stays empty.
func (s *TaskStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tasks, ok := s.codec.LoadTasks(ctx, s.key); ok {
		s.tasks = tasks
	} else {
		log.WithField("key", s.key).Info("no stored tasks, seeding sample board")
		s.tasks = domain.SeedTasks(s.now())
		s.persist(ctx)
	}
	s.broker.notify()
}

// persist must be called with mu held.
func (s *TaskStore) persist(ctx context.Context) {
	s.codec.SaveTasks(ctx, s.key, s.tasks)
}

func (s *TaskStore) emit(ctx context.Context, msg string) {
	if s.notifier != nil {
		s.notifier.AddNotification(ctx, msg)
	}
}

func (s *TaskStore) indexOf(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// AddTask creates a task at the head of the list. New tasks always start in
// To Do; an empty priority becomes Medium.
func (s *TaskStore) AddTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          domain.NewTaskID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Priority:    in.Priority,
		Status:      domain.StatusToDo,
		Subtasks:    domain.EnsureSubtaskIDs(in.Subtasks),
		ImageURL:    in.ImageURL,
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if in.DueDate != nil {
		d := *in.DueDate
		t.DueDate = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]domain.Task{t}, s.tasks...)
	s.persist(ctx)
	s.emit(ctx, domain.TaskAddedMessage(t.Title))
	s.broker.notify()
	return t.Clone(), nil
}

// UpdateTask merges patch into the task with the given id. found is false for
// unknown ids. A patch that changes nothing is not persisted and emits no
// notification.
func (s *TaskStore) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (task domain.Task, found bool, err error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Task{}, false, nil
	}
	updated := s.tasks[i].Clone()
	wasDone := updated.Status == domain.StatusDone
	if !patch.Apply(&updated) {
		return updated, true, nil
	}
	s.tasks[i] = updated
	s.persist(ctx)
	if !wasDone && updated.Status == domain.StatusDone {
		s.emit(ctx, domain.TaskCompletedMessage(updated.Title))
	} else {
		s.emit(ctx, domain.TaskUpdatedMessage(updated.Title))
	}
	s.broker.notify()
	return updated.Clone(), true, nil
}

// MoveTask changes only the status of a task.
func (s *TaskStore) MoveTask(ctx context.Context, id string, status domain.Status) (domain.Task, bool, error) {
	return s.UpdateTask(ctx, id, domain.TaskPatch{Status: &status})
}

// DeleteTask removes the task with the given id and reports whether it
// existed.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	title := s.tasks[i].Title
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.persist(ctx)
	s.emit(ctx, domain.TaskDeletedMessage(title))
	s.broker.notify()
	return true
}

// mutateSubtasks runs fn against a copy of the task's subtasks and commits
// the result when fn reports a change.
func (s *TaskStore) mutateSubtasks(ctx context.Context, taskID string, fn func([]domain.Subtask) ([]domain.Subtask, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(taskID)
	if i < 0 {
		return false
	}
	t := s.tasks[i].Clone()
	subs, ok := fn(t.Subtasks)
	if !ok {
		return false
	}
	t.Subtasks = subs
	s.tasks[i] = t
	s.persist(ctx)
	s.emit(ctx, domain.TaskUpdatedMessage(t.Title))
	s.broker.notify()
	return true
}

// AddSubtask appends a checklist item to the task.
func (s *TaskStore) AddSubtask(ctx context.Context, taskID, text string) (domain.Subtask, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Subtask{}, false, fmt.Errorf("%w: subtask text is required", domain.ErrInvalidTask)
	}
	sub := domain.Subtask{ID: domain.NewSubtaskID(), Text: text}
	ok := s.mutateSubtasks(ctx, taskID, func(subs []domain.Subtask) ([]domain.Subtask, bool) {
		return append(subs, sub), true
	})
	return sub, ok, nil
}

// ToggleSubtask flips the completion flag of a subtask.
func (s *TaskStore) ToggleSubtask(ctx context.Context, taskID, subtaskID string) bool {
	return s.mutateSubtasks(ctx, taskID, func(subs []domain.Subtask) ([]domain.Subtask, bool) {
		for i := range subs {
			if subs[i].ID == subtaskID {
				subs[i].Completed = !subs[i].Completed
				return subs, true
			}
		}
		return nil, false
	})
}

// DeleteSubtask removes a subtask.
func (s *TaskStore) DeleteSubtask(ctx context.Context, taskID, subtaskID string) bool {
	return s.mutateSubtasks(ctx, taskID, func(subs []domain.Subtask) ([]domain.Subtask, bool) {
		for i := range subs {
			if subs[i].ID == subtaskID {
				return append(subs[:i:i], subs[i+1:]...), true
			}
		}
		return nil, false
	})
}

// UpdateMultipleTasks applies a batch of patches as one transition. Every
// patch is validated before anything changes; unknown ids are skipped. It
// returns how many tasks changed.
func (s *TaskStore) UpdateMultipleTasks(ctx context.Context, updates []domain.TaskUpdate) (int, error) {
	for _, u := range updates {
		if err := u.Patch.Validate(); err != nil {
			return 0, fmt.Errorf("task %s: %w", u.ID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Task, len(s.tasks))
	copy(next, s.tasks)
	changed := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		i := -1
		for j := range next {
			if next[j].ID == u.ID {
				i = j
				break
			}
		}
		if i < 0 {
			continue
		}
		t := next[i].Clone()
		if u.Patch.Apply(&t) {
			next[i] = t
			changed[t.ID] = struct{}{}
		}
	}
	applied := len(changed)
	if applied == 0 {
		return 0, nil
	}
	s.tasks = next
	s.persist(ctx)
	s.emit(ctx, domain.TasksReprioritizedMessage(applied))
	s.broker.notify()
	return applied, nil
}

// ReplaceTasks swaps in a whole new list without emitting notifications.
// Missing ids are filled in and duplicates renamed.
func (s *TaskStore) ReplaceTasks(ctx context.Context, tasks []domain.Task) error {
	next := make([]domain.Task, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		t = t.Clone()
		if _, dup := seen[t.ID]; t.ID == "" || dup {
			t.ID = domain.NewTaskID()
		}
		seen[t.ID] = struct{}{}
		t.Subtasks = domain.EnsureSubtaskIDs(t.Subtasks)
		if err := t.Validate(); err != nil {
			return err
		}
		next = append(next, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = next
	s.persist(ctx)
	s.broker.notify()
	return nil
}

// Tasks returns a deep copy of the current list in display order.
func (s *TaskStore) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Task looks up a single task by id.
func (s *TaskStore) Task(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return domain.Task{}, false
}

func (s *TaskStore) Stats(now time.Time) domain.Stats {
	return domain.ComputeStats(s.Tasks(), now)
}

func (s *TaskStore) DueOn(day time.Time) []domain.Task {
	return domain.DueOn(s.Tasks(), day)
}

func (s *TaskStore) Search(query string) []domain.Task {
	return domain.Search(s.Tasks(), query)
}

// Subscribe returns a channel signalled after every change and a function
// that cancels the subscription.
func (s *TaskStore) Subscribe() (<-chan struct{}, func()) {
	return s.broker.subscribe()
}
