package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"taskflow/domain"
)

type failingMedium struct{}

func (failingMedium) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}
func (failingMedium) Set(context.Context, string, string) error { return errors.New("boom") }
func (failingMedium) Delete(context.Context, string) error      { return errors.New("boom") }

func TestTasksRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCodec(NewMemoryMedium())
	due := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	in := []domain.Task{
		{ID: "task-1", Title: "Write", Description: "d", Priority: domain.PriorityHigh, Status: domain.StatusDone, DueDate: &due,
			Subtasks: []domain.Subtask{{ID: "s1", Text: "a", Completed: true}}},
		{ID: "task-2", Title: "Read", Priority: domain.PriorityLow, Status: domain.StatusToDo, Subtasks: []domain.Subtask{}, ImageURL: "data:image/png;base64,AA"},
	}
	c.SaveTasks(ctx, TasksKey, in)

	out, ok := c.LoadTasks(ctx, TasksKey)
	if !ok {
		t.Fatalf("expected tasks to load")
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(out))
	}
	if out[0].DueDate == nil || !out[0].DueDate.Equal(due) {
		t.Fatalf("due date not preserved: %v", out[0].DueDate)
	}
	if out[0].Subtasks[0] != in[0].Subtasks[0] {
		t.Fatalf("subtask not preserved: %#v", out[0].Subtasks[0])
	}
	if out[1].DueDate != nil || out[1].ImageURL != in[1].ImageURL || out[1].Status != domain.StatusToDo {
		t.Fatalf("unexpected second task: %#v", out[1])
	}
	if out[1].Subtasks == nil {
		t.Fatalf("subtasks should never be nil")
	}
}

func TestLoadTasksAbsentAndCorrupt(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()
	c := NewCodec(m)

	if _, ok := c.LoadTasks(ctx, TasksKey); ok {
		t.Fatalf("absent key should not load")
	}
	for _, raw := range []string{"not json", `{"id":"x"}`, "null", "42"} {
		_ = m.Set(ctx, TasksKey, raw)
		if _, ok := c.LoadTasks(ctx, TasksKey); ok {
			t.Fatalf("payload %q should be treated as absent", raw)
		}
	}
}

func TestLoadTasksEmptyListIsKept(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()
	_ = m.Set(ctx, TasksKey, "[]")
	tasks, ok := NewCodec(m).LoadTasks(ctx, TasksKey)
	if !ok || len(tasks) != 0 {
		t.Fatalf("expected empty list, got %v ok=%v", tasks, ok)
	}
}

func TestLoadTasksRepairsOlderRecords(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()
	_ = m.Set(ctx, TasksKey, `[
		{"id":"a","title":"Date only","priority":"high","status":"in progress","dueDate":"2024-05-01"},
		{"id":"a","title":"Duplicate id","priority":"Nope","status":"??","subtasks":[{"text":"x"},{"id":"s","text":"y"},{"id":"s","text":"z"}]},
		{"title":"No id","dueDate":"garbage"},
		{"id":"b","title":"  "}
	]`)

	tasks, ok := NewCodec(m).LoadTasks(ctx, TasksKey)
	if !ok {
		t.Fatalf("expected repaired tasks to load")
	}
	if len(tasks) != 3 {
		t.Fatalf("expected titleless task to be dropped, got %d tasks", len(tasks))
	}
	first := tasks[0]
	if first.Priority != domain.PriorityHigh || first.Status != domain.StatusInProgress {
		t.Fatalf("enum values not normalized: %#v", first)
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if first.DueDate == nil || !first.DueDate.Equal(want) {
		t.Fatalf("date-only due date not parsed: %v", first.DueDate)
	}
	if first.Subtasks == nil || len(first.Subtasks) != 0 {
		t.Fatalf("missing subtasks should become empty list: %#v", first.Subtasks)
	}

	second := tasks[1]
	if second.ID == "a" || second.ID == "" {
		t.Fatalf("duplicate id should be replaced, got %q", second.ID)
	}
	if second.Priority != domain.PriorityMedium || second.Status != domain.StatusToDo {
		t.Fatalf("unknown enums should fall back to defaults: %#v", second)
	}
	seen := map[string]bool{}
	for _, s := range second.Subtasks {
		if s.ID == "" || seen[s.ID] {
			t.Fatalf("subtask ids not repaired: %#v", second.Subtasks)
		}
		seen[s.ID] = true
	}

	third := tasks[2]
	if third.ID == "" || third.DueDate != nil {
		t.Fatalf("unexpected third task: %#v", third)
	}
}

func TestNotificationsCapOnWrite(t *testing.T) {
	ctx := context.Background()
	c := NewCodec(NewMemoryMedium())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var list []domain.Notification
	for i := 0; i < 5; i++ {
		list = append(list, domain.Notification{ID: domain.NewNotificationID(), Message: "m", Timestamp: base.Add(time.Duration(-i) * time.Minute)})
	}
	c.SaveNotifications(ctx, NotificationsKey, list, 3)

	out, ok := c.LoadNotifications(ctx, NotificationsKey)
	if !ok {
		t.Fatalf("expected notifications to load")
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(out))
	}
	for i := range out {
		if out[i].ID != list[i].ID || !out[i].Timestamp.Equal(list[i].Timestamp) {
			t.Fatalf("notification %d mismatch: %#v", i, out[i])
		}
	}
}

func TestLoadNotificationsDropsInvalidTimestamps(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()
	_ = m.Set(ctx, NotificationsKey, `[
		{"id":"n1","message":"ok","timestamp":"2025-01-01T10:00:00.123Z","read":true},
		{"id":"n2","message":"bad","timestamp":"yesterday"}
	]`)
	out, ok := NewCodec(m).LoadNotifications(ctx, NotificationsKey)
	if !ok || len(out) != 1 {
		t.Fatalf("expected one valid notification, got %v", out)
	}
	if out[0].ID != "n1" || !out[0].Read {
		t.Fatalf("unexpected notification: %#v", out[0])
	}
}

func TestCodecSwallowsMediumErrors(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	ctx := context.Background()
	c := NewCodec(failingMedium{})
	c.SaveTasks(ctx, TasksKey, []domain.Task{{ID: "t", Title: "x"}})
	if _, ok := c.LoadTasks(ctx, TasksKey); ok {
		t.Fatalf("failing medium should look absent")
	}
	if len(hook.AllEntries()) < 2 {
		t.Fatalf("expected failures to be logged, got %d entries", len(hook.AllEntries()))
	}
	if hook.LastEntry().Data["key"] != TasksKey {
		t.Fatalf("expected key field on log entry: %#v", hook.LastEntry().Data)
	}
}

func TestNamespacedPartitionsKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryMedium()
	alice := Namespaced(base, "alice")
	bob := Namespaced(base, "bob")

	_ = alice.Set(ctx, TasksKey, "a")
	if _, ok, _ := bob.Get(ctx, TasksKey); ok {
		t.Fatalf("namespaces should not share keys")
	}
	if v, ok, _ := base.Get(ctx, "alice:"+TasksKey); !ok || v != "a" {
		t.Fatalf("expected prefixed key in base, got %q ok=%v", v, ok)
	}
	if Namespaced(base, "") != Medium(base) {
		t.Fatalf("empty namespace should return base")
	}
}

func TestSplitKey(t *testing.T) {
	cases := []struct{ in, pk, rk string }{
		{"auth0|abc:taskflow-tasks", "auth0|abc", "taskflow-tasks"},
		{"taskflow-tasks", defaultPartition, "taskflow-tasks"},
	}
	for _, c := range cases {
		pk, rk := splitKey(c.in)
		if pk != c.pk || rk != c.rk {
			t.Fatalf("splitKey(%q) = %q, %q", c.in, pk, rk)
		}
	}
}
