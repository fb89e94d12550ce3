package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
	"github.com/inkify/engine/internal/util"
)

// GetProfile returns the caller's own profile
// GET /api/v1/profile
func (h *Handlers) GetProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var user models.User
	if err := h.store.Get(c.Request.Context(), store.Users, userID, &user); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetUser returns another user's public profile
// GET /api/v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	var user models.User
	if err := h.store.Get(c.Request.Context(), store.Users, c.Param("id"), &user); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfileRequest is the body for profile edits
type UpdateProfileRequest struct {
	Username *string `json:"username"`
	Bio      *string `json:"bio"`
}

// UpdateProfile edits the caller's profile. A username change invalidates
// the identity cache and rewrites the author snapshot on the caller's
// posts so old names stop appearing in feeds.
// PATCH /api/v1/profile
func (h *Handlers) UpdateProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	fields := map[string]interface{}{}
	renamed := ""
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			util.RespondValidationError(c, "username", "username cannot be blank")
			return
		}
		fields["username"] = name
		renamed = name
	}
	if req.Bio != nil {
		fields["bio"] = *req.Bio
	}
	if len(fields) == 0 {
		util.RespondBadRequest(c, "no editable fields provided")
		return
	}

	ctx := c.Request.Context()
	if err := h.store.Update(ctx, store.Users, userID, fields); err != nil {
		util.RespondError(c, err)
		return
	}

	if renamed != "" {
		h.resolver.Invalidate(ctx, userID)
		if err := h.backfillAuthorName(c, userID, renamed); err != nil {
			util.RespondError(c, err)
			return
		}
	}

	var user models.User
	if err := h.store.Get(ctx, store.Users, userID, &user); err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// backfillAuthorName rewrites the denormalized author snapshot on every
// post the user authored
func (h *Handlers) backfillAuthorName(c *gin.Context, authorID, name string) error {
	return h.store.UpdateWhere(c.Request.Context(), store.Posts,
		[]store.Filter{{Field: "author_id", Op: store.OpEq, Value: authorID}},
		map[string]interface{}{"author_name": name},
	)
}
