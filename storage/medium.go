package storage

import (
	"context"
	"sync"
)

// Medium is a text key/value store. Get reports absence with ok=false rather
// than an error.
type Medium interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Keys under which the stores persist their state.
const (
	TasksKey         = "taskflow-tasks"
	NotificationsKey = "taskflow-notifications"
	APIKeyKey        = "taskflow-gemini-apikey"
)

// MemoryMedium keeps values in process memory.
type MemoryMedium struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{data: make(map[string]string)}
}

func (m *MemoryMedium) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryMedium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

type namespaced struct {
	base Medium
	ns   string
}

// Namespaced partitions base so every key is stored as "<ns>:<key>". An empty
// namespace returns base unchanged.
func Namespaced(base Medium, ns string) Medium {
	if ns == "" {
		return base
	}
	return &namespaced{base: base, ns: ns}
}

func (n *namespaced) key(k string) string { return n.ns + ":" + k }

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.base.Get(ctx, n.key(key))
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.base.Set(ctx, n.key(key), value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.base.Delete(ctx, n.key(key))
}
