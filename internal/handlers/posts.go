package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
	"github.com/inkify/engine/internal/util"
	"github.com/inkify/engine/internal/websocket"
)

// CreatePostRequest is the body for publishing a post
type CreatePostRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Category string `json:"category"`
	ImageRef string `json:"image_ref"`
}

// CreatePost publishes a new post under the caller's identity
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		util.RespondValidationError(c, "title", "title and content are required")
		return
	}

	ctx := c.Request.Context()
	authorName, err := h.resolver.ResolveOne(ctx, userID)
	if err != nil {
		authorName = models.AnonymousName
	}

	post := models.Post{
		AuthorID:   userID,
		AuthorName: authorName,
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Category:   req.Category,
		ImageRef:   req.ImageRef,
		Likes:      models.StringArray{},
		ViewedBy:   models.StringArray{},
		Comments:   models.CommentList{},
	}
	if err := h.store.Create(ctx, store.Posts, &post); err != nil {
		util.RespondError(c, err)
		return
	}

	if h.wsHandler != nil {
		var author models.User
		if err := h.store.Get(ctx, store.Users, userID, &author); err == nil {
			h.wsHandler.NotifyNewPost(author.Followers, &websocket.NewPostPayload{
				PostID:     post.ID,
				AuthorID:   post.AuthorID,
				AuthorName: post.AuthorName,
				Title:      post.Title,
				Category:   post.Category,
			})
		}
	}

	c.JSON(http.StatusCreated, post)
}

// GetPost returns a single post with a freshly resolved author name
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	postID := c.Param("id")

	var post models.Post
	if err := h.store.Get(c.Request.Context(), store.Posts, postID, &post); err != nil {
		util.RespondError(c, err)
		return
	}

	if name, err := h.resolver.ResolveOne(c.Request.Context(), post.AuthorID); err == nil {
		post.AuthorName = name
	}

	c.JSON(http.StatusOK, post)
}

// UpdatePostRequest is the body for editing a post
type UpdatePostRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
	ImageRef *string `json:"image_ref"`
}

// UpdatePost edits a post. Only the author may edit, and engagement
// state (likes, views, comments) is never writable through this path.
// PATCH /api/v1/posts/:id
func (h *Handlers) UpdatePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var post models.Post
	if err := h.store.Get(ctx, store.Posts, postID, &post); err != nil {
		util.RespondError(c, err)
		return
	}
	if post.AuthorID != userID {
		util.RespondForbidden(c, "only the author may edit a post")
		return
	}

	fields := map[string]interface{}{}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		fields["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		fields["content"] = *req.Content
	}
	if req.Category != nil {
		fields["category"] = *req.Category
	}
	if req.ImageRef != nil {
		fields["image_ref"] = *req.ImageRef
	}
	if len(fields) == 0 {
		util.RespondBadRequest(c, "no editable fields provided")
		return
	}

	if err := h.store.Update(ctx, store.Posts, postID, fields); err != nil {
		util.RespondError(c, err)
		return
	}

	if err := h.store.Get(ctx, store.Posts, postID, &post); err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// DeletePost removes a post. Only the author may delete.
// DELETE /api/v1/posts/:id
func (h *Handlers) DeletePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	ctx := c.Request.Context()
	var post models.Post
	if err := h.store.Get(ctx, store.Posts, postID, &post); err != nil {
		util.RespondError(c, err)
		return
	}
	if post.AuthorID != userID {
		util.RespondForbidden(c, "only the author may delete a post")
		return
	}

	if err := h.store.Delete(ctx, store.Posts, postID); err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
