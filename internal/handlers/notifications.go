package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/util"
)

// GetNotifications returns a page of the caller's notifications, newest first
// GET /api/v1/notifications?limit=20&offset=0
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifs, err := h.notifications.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifs})
}

// GetNotificationCounts returns the unread and unseen badge counts
// GET /api/v1/notifications/counts
func (h *Handlers) GetNotificationCounts(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	unread, unseen, err := h.notifications.Counts(c.Request.Context(), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unread": unread,
		"unseen": unseen,
	})
}

// MarkNotificationsRead marks all of the caller's notifications read
// POST /api/v1/notifications/read
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if err := h.notifications.MarkAllRead(c.Request.Context(), userID); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}

// MarkNotificationsSeen marks all of the caller's notifications seen
// POST /api/v1/notifications/seen
func (h *Handlers) MarkNotificationsSeen(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if err := h.notifications.MarkAllSeen(c.Request.Context(), userID); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"seen": true})
}
