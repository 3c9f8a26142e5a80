package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"choraid-server/middleware"
	ws "choraid-server/websocket"
)

func registerNotificationRoutes(r *gin.RouterGroup, h *handler) {
	n := r.Group("/notifications")
	{
		n.GET("", h.listNotifications)
		n.GET("/unread-count", h.unreadCount)
		n.POST("/:id/read", h.markNotificationRead)
		n.POST("/read-all", h.markAllNotificationsRead)
	}
}

func (h *handler) listNotifications(c *gin.Context) {
	profile := middleware.CurrentProfile(c)
	items, err := h.Notifications.List(c.Request.Context(), profile.ID, c.Query("unread") == "true", queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

func (h *handler) unreadCount(c *gin.Context) {
	count, err := h.Notifications.UnreadCount(c.Request.Context(), middleware.CurrentProfile(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

func (h *handler) markNotificationRead(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), middleware.CurrentProfile(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handler) markAllNotificationsRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), middleware.CurrentProfile(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

// serveWS attaches an authenticated connection to the hub
func (h *handler) serveWS(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime updates are not available"})
		return
	}
	profile := middleware.CurrentProfile(c)
	ws.ServeWebSocket(h.Hub, h.upgrader, c.Writer, c.Request, profile.ID, profile.Role)
}

// wsMarkRead handles {"type":"mark_read","data":{"id":N}} from a connected client
func (h *handler) wsMarkRead(client *ws.Client, msg *ws.Message) error {
	var body struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(msg.Raw, &body); err != nil || body.ID == 0 {
		return fmt.Errorf("data.id is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Notifications.MarkRead(ctx, client.ProfileID, body.ID); err != nil {
		return err
	}
	return client.SendMessage(&ws.Message{Type: "notification_read", Data: gin.H{"id": body.ID}, Timestamp: time.Now()})
}
