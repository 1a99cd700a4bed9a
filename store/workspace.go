package store

import (
	"context"
	"strings"
	"sync"

	"taskflow/storage"
)

// Workspace is one user's partition: its task board, activity log and saved
// settings. The stores of a workspace share one namespaced medium.
type Workspace struct {
	UserID        string
	Tasks         *TaskStore
	Notifications *NotificationStore
	codec         *storage.Codec
}

// APIKey returns the user's saved AI key, if any.
func (w *Workspace) APIKey(ctx context.Context) (string, bool) {
	key, ok := w.codec.LoadString(ctx, storage.APIKeyKey)
	if !ok || strings.TrimSpace(key) == "" {
		return "", false
	}
	return key, true
}

func (w *Workspace) SetAPIKey(ctx context.Context, key string) {
	w.codec.SaveString(ctx, storage.APIKeyKey, strings.TrimSpace(key))
}

func (w *Workspace) ClearAPIKey(ctx context.Context) {
	w.codec.Remove(ctx, storage.APIKeyKey)
}

// Registry lazily opens workspaces on first use and keeps them for the life
// of the process, which makes this process the single writer of each
// partition.
type Registry struct {
	base              Medium
	notificationLimit int
	taskOpts          []TaskOption

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// Medium is the storage backend a Registry partitions per user.
type Medium = storage.Medium

func NewRegistry(base Medium, notificationLimit int, opts ...TaskOption) *Registry {
	if base == nil {
		panic("store.NewRegistry: medium is nil")
	}
	return &Registry{
		base:              base,
		notificationLimit: notificationLimit,
		taskOpts:          opts,
		workspaces:        make(map[string]*Workspace),
	}
}

// Open returns the workspace of userID, loading it from storage the first
// time it is requested.
func (r *Registry) Open(ctx context.Context, userID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[userID]; ok {
		return ws
	}
	codec := storage.NewCodec(storage.Namespaced(r.base, userID))
	notes := NewNotificationStore(codec, r.notificationLimit)
	tasks := NewTaskStore(codec, notes, r.taskOpts...)
	notes.Load(ctx)
	tasks.Load(ctx)
	ws := &Workspace{UserID: userID, Tasks: tasks, Notifications: notes, codec: codec}
	r.workspaces[userID] = ws
	return ws
}
