package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskflow/store"
)

func notificationsOf(ws *store.Workspace) notificationsResponse {
	return notificationsResponse{
		Notifications: ws.Notifications.Notifications(),
		UnreadCount:   ws.Notifications.UnreadCount(),
	}
}

func (s *Server) listNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, notificationsOf(s.workspace(c)))
}

func (s *Server) markAllRead(c echo.Context) error {
	ws := s.workspace(c)
	ws.Notifications.MarkAllAsRead(c.Request().Context())
	return c.JSON(http.StatusOK, notificationsOf(ws))
}
