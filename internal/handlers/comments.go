package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/middleware"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
	"github.com/inkify/engine/internal/util"
	"github.com/inkify/engine/internal/websocket"
)

// GetComments returns a post's comments assembled into reply threads
// GET /api/v1/posts/:id/comments
func (h *Handlers) GetComments(c *gin.Context) {
	postID := c.Param("id")

	threads, err := h.threads.GetThreads(c.Request.Context(), postID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// AddCommentRequest is the body for a new root comment
type AddCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// AddComment appends a root comment to a post
// POST /api/v1/posts/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	comment, err := h.threads.AddComment(c.Request.Context(), postID, userID, req.Text)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	middleware.RecordCommentAdded("root")
	h.pushCommentUpdate(c.Request.Context(), postID, &comment)

	c.JSON(http.StatusCreated, comment)
}

// AddReplyRequest is the body for a reply; parent_ref is the root
// comment's creation timestamp in milliseconds
type AddReplyRequest struct {
	Text      string `json:"text" binding:"required"`
	ParentRef int64  `json:"parent_ref" binding:"required"`
}

// AddReply appends a reply under an existing root comment
// POST /api/v1/posts/:id/comments/reply
func (h *Handlers) AddReply(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	var req AddReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	reply, err := h.threads.AddReply(c.Request.Context(), postID, userID, req.Text, req.ParentRef)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	middleware.RecordCommentAdded("reply")
	h.pushCommentUpdate(c.Request.Context(), postID, &reply)

	c.JSON(http.StatusCreated, reply)
}

// DeleteCommentRequest identifies a comment by its structural triple
type DeleteCommentRequest struct {
	AuthorID  string `json:"author_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
	CreatedAt int64  `json:"created_at" binding:"required"`
}

// DeleteComment removes the comment matching the structural triple.
// Exactly one comment must match; zero is 404, more than one is 409.
// DELETE /api/v1/posts/:id/comments
func (h *Handlers) DeleteComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	var req DeleteCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	err := h.threads.DeleteComment(c.Request.Context(), postID, userID,
		req.AuthorID, req.Text, req.CreatedAt)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// pushCommentUpdate broadcasts a fresh comment over the socket
func (h *Handlers) pushCommentUpdate(ctx context.Context, postID string, comment *models.Comment) {
	if h.wsHandler == nil {
		return
	}
	var post models.Post
	count := 0
	if err := h.store.Get(ctx, store.Posts, postID, &post); err == nil {
		count = post.CommentCount
	}
	h.wsHandler.BroadcastCommentUpdate(&websocket.CommentPayload{
		PostID:       postID,
		AuthorID:     comment.AuthorID,
		AuthorName:   comment.AuthorName,
		Text:         comment.Text,
		CreatedAt:    comment.CreatedAt,
		IsReply:      comment.IsReply,
		ParentRef:    comment.ParentRef,
		CommentCount: count,
	})
}
