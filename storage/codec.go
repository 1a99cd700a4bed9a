package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// writeTimeout bounds a single save once it is detached from the caller.
const writeTimeout = 10 * time.Second

// Codec serializes store state onto a Medium. It never returns errors to the
// stores: failed saves are logged and dropped, failed loads look like an
// absent key.
type Codec struct {
	medium Medium
	log    *log.Entry
}

// NewCodec builds a Codec over m.
func NewCodec(m Medium) *Codec {
	if m == nil {
		panic("storage.NewCodec: medium is nil")
	}
	return &Codec{medium: m, log: log.WithField("component", "storage")}
}

// writeContext outlives the caller's cancellation: by the time a save runs
// the in-memory state has already changed and must reach the medium.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// Medium returns the underlying key/value store.
func (c *Codec) Medium() Medium { return c.medium }

// Save writes value as JSON under key.
func (c *Codec) Save(ctx context.Context, key string, value any) {
	data, err := sonic.ConfigStd.Marshal(value)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Error("encode failed")
		return
	}
	c.SaveString(ctx, key, string(data))
}

// Load decodes the value under key into dst and reports whether it succeeded.
func (c *Codec) Load(ctx context.Context, key string, dst any) bool {
	raw, ok := c.read(ctx, key)
	if !ok {
		return false
	}
	if err := sonic.ConfigStd.UnmarshalFromString(raw, dst); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("stored value is corrupt")
		return false
	}
	return true
}

func (c *Codec) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := c.medium.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Error("read failed")
		return "", false
	}
	if !ok {
		c.log.WithField("key", key).Debug("key absent")
	}
	return raw, ok
}

// SaveTasks persists the full task list.
func (c *Codec) SaveTasks(ctx context.Context, key string, tasks []domain.Task) {
	recs := make([]taskRecord, 0, len(tasks))
	for _, t := range tasks {
		recs = append(recs, newTaskRecord(t))
	}
	c.Save(ctx, key, recs)
}

// LoadTasks reads the task list, repairing older or partial records. ok is
// false when nothing usable is stored.
func (c *Codec) LoadTasks(ctx context.Context, key string) ([]domain.Task, bool) {
	var recs []taskRecord
	if !c.Load(ctx, key, &recs) {
		return nil, false
	}
	if recs == nil {
		// JSON null
		return nil, false
	}
	return normalizeTasks(recs, c.log.WithField("key", key)), true
}

// SaveNotifications persists at most max newest-first notifications.
func (c *Codec) SaveNotifications(ctx context.Context, key string, list []domain.Notification, max int) {
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	recs := make([]notificationRecord, 0, len(list))
	for _, n := range list {
		recs = append(recs, newNotificationRecord(n))
	}
	c.Save(ctx, key, recs)
}

// LoadNotifications reads the notification log. Entries whose timestamp
// can't be parsed are dropped.
func (c *Codec) LoadNotifications(ctx context.Context, key string) ([]domain.Notification, bool) {
	var recs []notificationRecord
	if !c.Load(ctx, key, &recs) || recs == nil {
		return nil, false
	}
	return normalizeNotifications(recs, c.log.WithField("key", key)), true
}

// LoadString returns the raw text under key.
func (c *Codec) LoadString(ctx context.Context, key string) (string, bool) {
	return c.read(ctx, key)
}

// SaveString stores text under key verbatim.
func (c *Codec) SaveString(ctx context.Context, key, value string) {
	ctx, cancel := writeContext(ctx)
	defer cancel()
	if err := c.medium.Set(ctx, key, value); err != nil {
		c.log.WithError(err).WithField("key", key).Error("write failed")
	}
}

// Remove deletes key.
func (c *Codec) Remove(ctx context.Context, key string) {
	ctx, cancel := writeContext(ctx)
	defer cancel()
	if err := c.medium.Delete(ctx, key); err != nil {
		c.log.WithError(err).WithField("key", key).Error("delete failed")
	}
}
