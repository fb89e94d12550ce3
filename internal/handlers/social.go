package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
	"github.com/inkify/engine/internal/util"
	"github.com/inkify/engine/internal/websocket"
	"go.uber.org/zap"
)

// FollowUser adds the target to the caller's following set and the caller
// to the target's followers set in one transaction. Re-following is a
// no-op and never double-notifies.
// POST /api/v1/users/:id/follow
func (h *Handlers) FollowUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")
	if targetID == userID {
		util.RespondBadRequest(c, "cannot follow yourself")
		return
	}

	ctx := c.Request.Context()
	var target models.User
	if err := h.store.Get(ctx, store.Users, targetID, &target); err != nil {
		util.RespondError(c, err)
		return
	}

	followed := false
	err := h.store.Tx(ctx, func(ts store.DocumentStore) error {
		added, err := ts.AtomicArrayAdd(ctx, store.Users, userID, "following", targetID)
		if err != nil {
			return err
		}
		if _, err := ts.AtomicArrayAdd(ctx, store.Users, targetID, "followers", userID); err != nil {
			return err
		}
		followed = added
		return nil
	})
	if err != nil {
		util.RespondError(c, err)
		return
	}

	if followed {
		followerName, rerr := h.resolver.ResolveOne(ctx, userID)
		if rerr != nil {
			followerName = models.AnonymousName
		}
		if nerr := h.notifications.Emit(ctx, &models.Notification{
			RecipientID: targetID,
			Type:        models.NotificationFollow,
			ActorID:     userID,
			ActorName:   followerName,
		}); nerr != nil {
			logger.Log.Warn("follow notification failed",
				zap.String("target_id", targetID), zap.Error(nerr))
		}
		if h.wsHandler != nil {
			h.wsHandler.NotifyFollow(targetID, &websocket.FollowPayload{
				FollowerID:   userID,
				FollowerName: followerName,
				FolloweeID:   targetID,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"following": true})
}

// UnfollowUser removes the follow edge in both directions
// DELETE /api/v1/users/:id/follow
func (h *Handlers) UnfollowUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	ctx := c.Request.Context()
	err := h.store.Tx(ctx, func(ts store.DocumentStore) error {
		if _, err := ts.AtomicArrayRemove(ctx, store.Users, userID, "following", targetID); err != nil {
			return err
		}
		_, err := ts.AtomicArrayRemove(ctx, store.Users, targetID, "followers", userID)
		return err
	})
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"following": false})
}
