package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/middleware"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/util"
	"github.com/inkify/engine/internal/websocket"
)

// ToggleLike flips the caller's like on a post
// POST /api/v1/posts/:id/like
func (h *Handlers) ToggleLike(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	liked, likeCount, err := h.ledger.ToggleLike(c.Request.Context(), postID, userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	direction := "unliked"
	if liked {
		direction = "liked"
	}
	middleware.RecordLikeToggle(direction)

	if h.wsHandler != nil {
		username, rerr := h.resolver.ResolveOne(c.Request.Context(), userID)
		if rerr != nil {
			username = models.AnonymousName
		}
		h.wsHandler.BroadcastLikeUpdate(&websocket.LikePayload{
			PostID:    postID,
			UserID:    userID,
			Username:  username,
			LikeCount: likeCount,
			Liked:     liked,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"liked":      liked,
		"like_count": likeCount,
	})
}

// ToggleSave flips the caller's bookmark on a post
// POST /api/v1/posts/:id/save
func (h *Handlers) ToggleSave(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	saved, err := h.ledger.ToggleSave(c.Request.Context(), postID, userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": saved})
}

// SharePost notifies the author of a share
// POST /api/v1/posts/:id/share
func (h *Handlers) SharePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	if err := h.ledger.SharePost(c.Request.Context(), postID, userID); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"shared": true})
}

// RecordView schedules a debounced view mark for the caller. The request
// returns immediately; the mark lands only if no duplicate arrives during
// the debounce window, and each viewer counts at most once per post.
// POST /api/v1/posts/:id/view
func (h *Handlers) RecordView(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")
	if postID == "" {
		util.RespondBadRequest(c, "post id is required")
		return
	}

	h.ledger.RecordView(postID, userID)

	c.JSON(http.StatusAccepted, gin.H{"pending": true})
}
