package domain

import (
	"strconv"
	"time"
)

// Notification is an entry in the activity log. Only Read ever changes after
// creation, and only from false to true.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Notification messages emitted by the task store.
func TaskAddedMessage(title string) string { return `New task added: "` + title + `"` }

func TaskCompletedMessage(title string) string { return `Task completed: "` + title + `"` }

func TaskUpdatedMessage(title string) string { return `Task updated: "` + title + `"` }

func TaskDeletedMessage(title string) string { return `Task deleted: "` + title + `"` }

func TasksReprioritizedMessage(n int) string {
	if n == 1 {
		return "AI has re-prioritized 1 task"
	}
	return "AI has re-prioritized " + strconv.Itoa(n) + " tasks"
}
