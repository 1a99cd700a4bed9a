package domain

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var lastTimestamp int64

// nextTimestamp returns a nanosecond clock reading that is strictly greater
// than every value it returned before.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// NewID joins a monotonic base-36 timestamp with a short random suffix.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strconv.FormatInt(nextTimestamp(), 36) + "-" + suffix
}

func NewTaskID() string { return "task-" + NewID() }

func NewSubtaskID() string { return "subtask-" + NewID() }

func NewNotificationID() string { return "notification-" + NewID() }
