package store

import (
	"context"
	"sync"
	"time"

	"taskflow/domain"
	"taskflow/storage"
)

// DefaultNotificationLimit caps the notification log when no limit is
// configured.
const DefaultNotificationLimit = 100

// NotificationStore keeps the newest-first activity log.
type NotificationStore struct {
	codec  *storage.Codec
	max    int
	key    string
	now    func() time.Time
	broker *broker

	mu    sync.RWMutex
	items []domain.Notification
}

func NewNotificationStore(codec *storage.Codec, max int) *NotificationStore {
	if codec == nil {
		panic("store.NewNotificationStore: codec is nil")
	}
	if max <= 0 {
		max = DefaultNotificationLimit
	}
	return &NotificationStore{
		codec:  codec,
		max:    max,
		key:    storage.NotificationsKey,
		now:    time.Now,
		broker: newBroker(),
		items:  []domain.Notification{},
	}
}

// Load restores the persisted log. Nothing is seeded when it is absent.
func (s *NotificationStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.codec.LoadNotifications(ctx, s.key)
	if !ok {
		items = []domain.Notification{}
	}
	if len(items) > s.max {
		items = items[:s.max]
	}
	s.items = items
	s.broker.notify()
}

// AddNotification records an unread entry at the head of the log and drops
// the oldest entries beyond the limit.
func (s *NotificationStore) AddNotification(ctx context.Context, message string) domain.Notification {
	n := domain.Notification{
		ID:        domain.NewNotificationID(),
		Message:   message,
		Timestamp: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Notification, 0, len(s.items)+1)
	next = append(next, n)
	next = append(next, s.items...)
	if len(next) > s.max {
		next = next[:s.max]
	}
	s.items = next
	s.codec.SaveNotifications(ctx, s.key, s.items, s.max)
	s.broker.notify()
	return n
}

// MarkAllAsRead flags every entry read. It does nothing when there is
// nothing unread.
func (s *NotificationStore) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed = true
		}
	}
	if !changed {
		return
	}
	s.codec.SaveNotifications(ctx, s.key, s.items, s.max)
	s.broker.notify()
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Notifications returns a copy of the log, newest first.
func (s *NotificationStore) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *NotificationStore) Limit() int { return s.max }

func (s *NotificationStore) Subscribe() (<-chan struct{}, func()) {
	return s.broker.subscribe()
}
