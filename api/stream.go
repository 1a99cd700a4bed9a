package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskflow/store"
)

var keepAliveInterval = 30 * time.Second

func snapshotOf(ws *store.Workspace) snapshot {
	return snapshot{
		Tasks:         ws.Tasks.Tasks(),
		Notifications: ws.Notifications.Notifications(),
		UnreadCount:   ws.Notifications.UnreadCount(),
	}
}

// stream pushes a full workspace snapshot on connect and after every change.
// Bursts of changes collapse into one event.
func (s *Server) stream(c echo.Context) error {
	ws := s.workspace(c)
	tasksCh, cancelTasks := ws.Tasks.Subscribe()
	defer cancelTasks()
	notesCh, cancelNotes := ws.Notifications.Subscribe()
	defer cancelNotes()

	w := c.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	// Write an initial comment to ensure headers are flushed to the client.
	if _, err := w.Write([]byte(":ok\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	send := func() bool {
		data, err := sonic.ConfigStd.Marshal(snapshotOf(ws))
		if err != nil {
			s.Logger.WithError(err).Error("encode snapshot")
			return false
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send() {
		return nil
	}

	ctx := c.Request().Context()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-tasksCh:
			if !send() {
				return nil
			}
		case <-notesCh:
			if !send() {
				return nil
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}
