package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskflow/domain"
	"taskflow/storage"
)

func TestRegistryPartitionsUsers(t *testing.T) {
	ctx := context.Background()
	base := storage.NewMemoryMedium()
	r := NewRegistry(base, 5)

	alice := r.Open(ctx, "alice")
	if r.Open(ctx, "alice") != alice {
		t.Fatalf("workspace should be reused")
	}
	bob := r.Open(ctx, "bob")
	if len(alice.Tasks.Tasks()) != 5 || len(bob.Tasks.Tasks()) != 5 {
		t.Fatalf("each user should start with the seed board")
	}
	alice.Tasks.DeleteTask(ctx, "task-1")
	if _, ok := bob.Tasks.Task("task-1"); !ok {
		t.Fatalf("users should not share tasks")
	}
	if alice.Notifications.UnreadCount() != 1 || bob.Notifications.UnreadCount() != 0 {
		t.Fatalf("notifications leaked between users")
	}
	if alice.Notifications.Limit() != 5 {
		t.Fatalf("limit not applied")
	}

	if _, ok := alice.APIKey(ctx); ok {
		t.Fatalf("no key saved yet")
	}
	alice.SetAPIKey(ctx, " secret ")
	if k, ok := alice.APIKey(ctx); !ok || k != "secret" {
		t.Fatalf("unexpected key %q", k)
	}
	if _, ok := bob.APIKey(ctx); ok {
		t.Fatalf("key leaked between users")
	}
	if v, ok, _ := base.Get(ctx, "alice:"+storage.APIKeyKey); !ok || v != "secret" {
		t.Fatalf("key not stored under user namespace")
	}
	alice.ClearAPIKey(ctx)
	if _, ok := alice.APIKey(ctx); ok {
		t.Fatalf("key should be cleared")
	}
}

func TestRegistryReloadsPersistedState(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	medium := storage.NewRedisMedium(client, "")

	first := NewRegistry(medium, 2).Open(ctx, "u1")
	first.Tasks.DeleteTask(ctx, first.Tasks.Tasks()[0].ID)
	first.Tasks.DeleteTask(ctx, first.Tasks.Tasks()[0].ID)
	first.Tasks.DeleteTask(ctx, first.Tasks.Tasks()[0].ID)

	second := NewRegistry(medium, 2).Open(ctx, "u1")
	if got := len(second.Tasks.Tasks()); got != 2 {
		t.Fatalf("expected 2 tasks after reload, got %d", got)
	}
	if got := len(second.Notifications.Notifications()); got != 2 {
		t.Fatalf("expected the notification cap of 2 to hold, got %d", got)
	}
}

func TestSubscribeCoalescesSignals(t *testing.T) {
	ctx := context.Background()
	ws := NewRegistry(storage.NewMemoryMedium(), DefaultNotificationLimit).Open(ctx, "u1")
	ch, cancel := ws.Tasks.Subscribe()

	for i := 0; i < 3; i++ {
		ws.Tasks.DeleteTask(ctx, ws.Tasks.Tasks()[0].ID)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatalf("expected signals to coalesce into one")
	default:
	}

	cancel()
	cancel()
	ws.Tasks.DeleteTask(ctx, ws.Tasks.Tasks()[0].ID)
	select {
	case <-ch:
		t.Fatalf("unsubscribed channel received a signal")
	default:
	}
}

func TestMutationsPersistAfterClientGoesAway(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	medium := storage.NewRedisMedium(client, "")

	ws := NewRegistry(medium, DefaultNotificationLimit).Open(context.Background(), "u1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ws.Tasks.AddTask(ctx, domain.NewTask{Title: "Written after disconnect"}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	ws.Tasks.ToggleSubtask(ctx, "task-1", "subtask-1-2")

	reloaded := NewRegistry(medium, DefaultNotificationLimit).Open(context.Background(), "u1")
	if got, want := len(reloaded.Tasks.Tasks()), len(ws.Tasks.Tasks()); got != want {
		t.Fatalf("memory and storage diverged: %d in memory, %d after reload", want, got)
	}
	task, ok := reloaded.Tasks.Task("task-1")
	if !ok || !task.Subtasks[1].Completed {
		t.Fatalf("subtask toggle was not persisted: %#v", task.Subtasks)
	}
	if got := len(reloaded.Notifications.Notifications()); got != 2 {
		t.Fatalf("expected 2 persisted notifications, got %d", got)
	}
}
