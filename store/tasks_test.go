package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskflow/domain"
	"taskflow/storage"
)

var fixedNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	medium *storage.MemoryMedium
	codec  *storage.Codec
	notes  *NotificationStore
	tasks  *TaskStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := storage.NewMemoryMedium()
	codec := storage.NewCodec(m)
	notes := NewNotificationStore(codec, 10)
	tasks := NewTaskStore(codec, notes, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()
	notes.Load(ctx)
	tasks.Load(ctx)
	return &testEnv{medium: m, codec: codec, notes: notes, tasks: tasks}
}

// emptyEnv starts from a persisted empty board.
func emptyEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	if err := env.tasks.ReplaceTasks(context.Background(), []domain.Task{}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	return env
}

func messages(n *NotificationStore) []string {
	var out []string
	for _, it := range n.Notifications() {
		out = append(out, it.Message)
	}
	return out
}

func TestLoadSeedsEmptyStorage(t *testing.T) {
	env := newTestEnv(t)
	tasks := env.tasks.Tasks()
	if len(tasks) != 5 {
		t.Fatalf("expected 5 seed tasks, got %d", len(tasks))
	}
	want := []domain.Status{domain.StatusToDo, domain.StatusInProgress, domain.StatusInProgress, domain.StatusDone, domain.StatusToDo}
	for i, st := range want {
		if tasks[i].Status != st {
			t.Fatalf("task %d: expected %s, got %s", i, st, tasks[i].Status)
		}
	}
	if len(env.notes.Notifications()) != 0 {
		t.Fatalf("seeding should not emit notifications")
	}
	if _, ok, _ := env.medium.Get(context.Background(), storage.TasksKey); !ok {
		t.Fatalf("seeded board should be persisted")
	}
}

func TestLoadSeedsCorruptStorage(t *testing.T) {
	m := storage.NewMemoryMedium()
	_ = m.Set(context.Background(), storage.TasksKey, "{broken")
	s := NewTaskStore(storage.NewCodec(m), nil)
	s.Load(context.Background())
	if len(s.Tasks()) != 5 {
		t.Fatalf("corrupt storage should seed, got %d tasks", len(s.Tasks()))
	}
}

func TestLoadKeepsPersistedEmptyList(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryMedium()
	_ = m.Set(ctx, storage.TasksKey, "[]")
	s := NewTaskStore(storage.NewCodec(m), nil)
	s.Load(ctx)
	if got := s.Tasks(); len(got) != 0 {
		t.Fatalf("expected empty board, got %d tasks", len(got))
	}
}

func TestAddTaskScenario(t *testing.T) {
	ctx := context.Background()
	env := emptyEnv(t)

	task, err := env.tasks.AddTask(ctx, domain.NewTask{Title: "Write report", Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.HasPrefix(task.ID, "task-") || task.Status != domain.StatusToDo || task.Subtasks == nil {
		t.Fatalf("unexpected task: %#v", task)
	}
	tasks := env.tasks.Tasks()
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("unexpected board: %#v", tasks)
	}
	notes := env.notes.Notifications()
	if len(notes) != 1 || notes[0].Message != `New task added: "Write report"` || notes[0].Read {
		t.Fatalf("unexpected notifications: %#v", notes)
	}

	second, _ := env.tasks.AddTask(ctx, domain.NewTask{Title: "Second"})
	if got := env.tasks.Tasks(); got[0].ID != second.ID {
		t.Fatalf("new tasks should be prepended")
	}
	if second.Priority != domain.PriorityMedium {
		t.Fatalf("empty priority should default to Medium, got %s", second.Priority)
	}
}

func TestAddTaskRejectsInvalidInput(t *testing.T) {
	env := emptyEnv(t)
	_, err := env.tasks.AddTask(context.Background(), domain.NewTask{Title: "  "})
	if !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if len(env.tasks.Tasks()) != 0 || len(env.notes.Notifications()) != 0 {
		t.Fatalf("rejected input should change nothing")
	}
}

func TestTaskRoundTripThroughStorage(t *testing.T) {
	ctx := context.Background()
	env := emptyEnv(t)
	due := time.Date(2025, 7, 1, 15, 4, 5, 123000000, time.UTC)
	added, _ := env.tasks.AddTask(ctx, domain.NewTask{Title: "Ship", DueDate: &due, Subtasks: []domain.Subtask{{Text: "a"}}})

	reloaded := NewTaskStore(env.codec, nil)
	reloaded.Load(ctx)
	got, ok := reloaded.Task(added.ID)
	if !ok {
		t.Fatalf("task missing after reload")
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due date changed: %v", got.DueDate)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].ID != added.Subtasks[0].ID {
		t.Fatalf("subtasks changed: %#v", got.Subtasks)
	}
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	before := env.tasks.Tasks()

	if _, found, err := env.tasks.UpdateTask(ctx, "missing", domain.TaskPatch{Title: domain.StringPtr("x")}); found || err != nil {
		t.Fatalf("update of unknown id: found=%v err=%v", found, err)
	}
	if env.tasks.DeleteTask(ctx, "missing") {
		t.Fatalf("delete of unknown id should report false")
	}
	if _, ok, _ := env.tasks.AddSubtask(ctx, "missing", "x"); ok {
		t.Fatalf("add subtask to unknown task should report false")
	}
	if env.tasks.ToggleSubtask(ctx, "task-1", "missing") {
		t.Fatalf("toggle of unknown subtask should report false")
	}
	if env.tasks.DeleteSubtask(ctx, "missing", "subtask-1-1") {
		t.Fatalf("delete subtask of unknown task should report false")
	}
	after := env.tasks.Tasks()
	if len(after) != len(before) {
		t.Fatalf("board changed")
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Title != after[i].Title || len(before[i].Subtasks) != len(after[i].Subtasks) {
			t.Fatalf("task %d changed", i)
		}
	}
	if len(env.notes.Notifications()) != 0 {
		t.Fatalf("no-ops should not notify: %v", messages(env.notes))
	}
}

func TestUpdateTaskNotifications(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// task-2 is In Progress in the seed board.
	if _, _, err := env.tasks.MoveTask(ctx, "task-2", domain.StatusDone); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, _, err := env.tasks.MoveTask(ctx, "task-2", domain.StatusToDo); err != nil {
		t.Fatalf("move back: %v", err)
	}
	title := env.mustTask(t, "task-2").Title
	want := []string{domain.TaskUpdatedMessage(title), domain.TaskCompletedMessage(title)}
	got := messages(env.notes)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestUpdateTaskWithoutChangesIsSilent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	task := env.mustTask(t, "task-1")
	_ = env.medium.Delete(ctx, storage.TasksKey)

	got, found, err := env.tasks.UpdateTask(ctx, task.ID, domain.TaskPatch{Title: domain.StringPtr(task.Title)})
	if err != nil || !found || got.Title != task.Title {
		t.Fatalf("unexpected result: %#v found=%v err=%v", got, found, err)
	}
	if len(env.notes.Notifications()) != 0 {
		t.Fatalf("unchanged patch should not notify")
	}
	if _, ok, _ := env.medium.Get(ctx, storage.TasksKey); ok {
		t.Fatalf("unchanged patch should not persist")
	}
}

func TestDeleteTaskCapturesTitle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	title := env.mustTask(t, "task-3").Title
	if !env.tasks.DeleteTask(ctx, "task-3") {
		t.Fatalf("delete failed")
	}
	if _, ok := env.tasks.Task("task-3"); ok {
		t.Fatalf("task still present")
	}
	if got := messages(env.notes); len(got) != 1 || got[0] != domain.TaskDeletedMessage(title) {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestSubtaskScenario(t *testing.T) {
	ctx := context.Background()
	env := emptyEnv(t)
	task, _ := env.tasks.AddTask(ctx, domain.NewTask{Title: "Plan trip"})

	sub, ok, err := env.tasks.AddSubtask(ctx, task.ID, "Book flights")
	if err != nil || !ok {
		t.Fatalf("add subtask: ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(sub.ID, "subtask-") || sub.Completed {
		t.Fatalf("unexpected subtask: %#v", sub)
	}
	if !env.tasks.ToggleSubtask(ctx, task.ID, sub.ID) {
		t.Fatalf("toggle failed")
	}
	got := env.mustTask(t, task.ID)
	if len(got.Subtasks) != 1 || !got.Subtasks[0].Completed || got.Subtasks[0].Text != "Book flights" {
		t.Fatalf("unexpected subtasks: %#v", got.Subtasks)
	}

	if !env.tasks.DeleteSubtask(ctx, task.ID, sub.ID) {
		t.Fatalf("delete subtask failed")
	}
	if got := env.mustTask(t, task.ID); len(got.Subtasks) != 0 {
		t.Fatalf("subtask not removed")
	}
	want := domain.TaskUpdatedMessage("Plan trip")
	got2 := messages(env.notes)
	if len(got2) != 4 || got2[0] != want || got2[1] != want || got2[2] != want {
		t.Fatalf("unexpected notifications: %v", got2)
	}
}

func TestUpdateMultipleTasksSingleNotification(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	n, err := env.tasks.UpdateMultipleTasks(ctx, []domain.TaskUpdate{
		{ID: "task-1", Patch: domain.TaskPatch{Priority: domain.PriorityPtr(domain.PriorityLow)}},
		{ID: "task-5", Patch: domain.TaskPatch{Priority: domain.PriorityPtr(domain.PriorityHigh)}},
		{ID: "missing", Patch: domain.TaskPatch{Priority: domain.PriorityPtr(domain.PriorityHigh)}},
	})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 updates, got %d err=%v", n, err)
	}
	if env.mustTask(t, "task-1").Priority != domain.PriorityLow || env.mustTask(t, "task-5").Priority != domain.PriorityHigh {
		t.Fatalf("patches not applied")
	}
	if got := messages(env.notes); len(got) != 1 || got[0] != "AI has re-prioritized 2 tasks" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestUpdateMultipleTasksCountsEachTaskOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	n, err := env.tasks.UpdateMultipleTasks(ctx, []domain.TaskUpdate{
		{ID: "task-3", Patch: domain.TaskPatch{Priority: domain.PriorityPtr(domain.PriorityHigh)}},
		{ID: "task-3", Patch: domain.TaskPatch{Priority: domain.PriorityPtr(domain.PriorityLow)}},
	})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 changed task, got %d err=%v", n, err)
	}
	if got := messages(env.notes); len(got) != 1 || got[0] != "AI has re-prioritized 1 task" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestUpdateMultipleTasksIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	before := env.mustTask(t, "task-1").Priority

	_, err := env.tasks.UpdateMultipleTasks(ctx, []domain.TaskUpdate{
		{ID: "task-1", Patch: domain.TaskPatch{Priority: domain.PriorityPtr(domain.PriorityLow)}},
		{ID: "task-2", Patch: domain.TaskPatch{Priority: domain.PriorityPtr("Urgent")}},
	})
	if !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if env.mustTask(t, "task-1").Priority != before {
		t.Fatalf("valid patch applied despite invalid batch")
	}

	n, err := env.tasks.UpdateMultipleTasks(ctx, []domain.TaskUpdate{{ID: "nope"}})
	if err != nil || n != 0 || len(env.notes.Notifications()) != 0 {
		t.Fatalf("empty batch should be silent: n=%d err=%v", n, err)
	}
}

func TestReplaceTasksIsSilentAndNormalizes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	err := env.tasks.ReplaceTasks(ctx, []domain.Task{
		{Title: "A", Priority: domain.PriorityLow, Status: domain.StatusDone},
		{ID: "dup", Title: "B", Priority: domain.PriorityHigh, Status: domain.StatusToDo},
		{ID: "dup", Title: "C", Priority: domain.PriorityHigh, Status: domain.StatusToDo},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	tasks := env.tasks.Tasks()
	if len(tasks) != 3 || tasks[0].ID == "" || tasks[2].ID == "dup" {
		t.Fatalf("ids not normalized: %#v", tasks)
	}
	if len(env.notes.Notifications()) != 0 {
		t.Fatalf("replace should not notify")
	}
	if err := env.tasks.ReplaceTasks(ctx, []domain.Task{{ID: "x", Title: "bad", Priority: "?", Status: domain.StatusToDo}}); err == nil {
		t.Fatalf("expected validation error")
	}
	if len(env.tasks.Tasks()) != 3 {
		t.Fatalf("failed replace should keep the board")
	}
}

func TestTasksReturnsCopies(t *testing.T) {
	env := newTestEnv(t)
	tasks := env.tasks.Tasks()
	tasks[0].Title = "mutated"
	tasks[0].Subtasks[0].Text = "mutated"
	got := env.mustTask(t, tasks[0].ID)
	if got.Title == "mutated" || got.Subtasks[0].Text == "mutated" {
		t.Fatalf("store state aliased by caller")
	}
}

func TestSubscribeSignalsChanges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ch, cancel := env.tasks.Subscribe()
	defer cancel()

	_, _ = env.tasks.AddTask(ctx, domain.NewTask{Title: "one"})
	_, _ = env.tasks.AddTask(ctx, domain.NewTask{Title: "two"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change signal")
	}
	select {
	case <-ch:
		t.Fatalf("signals should coalesce")
	default:
	}

	cancel()
	_, _ = env.tasks.AddTask(ctx, domain.NewTask{Title: "three"})
	select {
	case <-ch:
		t.Fatalf("cancelled subscription should not be signalled")
	default:
	}
}

func TestReadViews(t *testing.T) {
	env := newTestEnv(t)
	if st := env.tasks.Stats(fixedNow); st.Total != 5 || st.Completed != 1 {
		t.Fatalf("unexpected stats: %#v", st)
	}
	seed := env.mustTask(t, "task-1")
	if due := env.tasks.DueOn(*seed.DueDate); len(due) != 1 || due[0].ID != "task-1" {
		t.Fatalf("unexpected calendar view: %#v", due)
	}
	if hits := env.tasks.Search(strings.ToUpper(seed.Title)); len(hits) == 0 || hits[0].ID != "task-1" {
		t.Fatalf("unexpected search hits: %#v", hits)
	}
}

func (env *testEnv) mustTask(t *testing.T, id string) domain.Task {
	t.Helper()
	task, ok := env.tasks.Task(id)
	if !ok {
		t.Fatalf("task %s not found", id)
	}
	return task
}
