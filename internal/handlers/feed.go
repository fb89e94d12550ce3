package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/feed"
	"github.com/inkify/engine/internal/middleware"
	"github.com/inkify/engine/internal/util"
)

// GetFeed returns one page of the caller's feed
// GET /api/v1/feed?scope=all|following&sort=recency|likeCount|commentCount&category=...&cursor=...
func (h *Handlers) GetFeed(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	req := feed.PageRequest{
		UserID:   userID,
		Scope:    feed.Scope(c.Query("scope")),
		Sort:     feed.SortKey(c.Query("sort")),
		Category: c.Query("category"),
		Cursor:   c.Query("cursor"),
	}

	start := time.Now()
	page, err := h.feed.Page(c.Request.Context(), req)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	middleware.RecordFeedPage(string(req.Scope), string(req.Sort), time.Since(start))

	c.JSON(http.StatusOK, page)
}

// GetPublicFeed returns the unauthenticated landing feed
// GET /api/v1/public/feed?limit=20
func (h *Handlers) GetPublicFeed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	posts, err := h.feed.Public(c.Request.Context(), limit)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// GetRecentPosts returns the latest posts for the sidebar rail
// GET /api/v1/posts/recent
func (h *Handlers) GetRecentPosts(c *gin.Context) {
	posts, err := h.feed.Recent(c.Request.Context())
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// GetSavedPosts returns the caller's bookmarked posts, newest first
// GET /api/v1/posts/saved
func (h *Handlers) GetSavedPosts(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	posts, err := h.feed.Saved(c.Request.Context(), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// GetCategories lists the categories currently in use
// GET /api/v1/categories
func (h *Handlers) GetCategories(c *gin.Context) {
	categories, err := h.feed.Categories(c.Request.Context())
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetUserStats aggregates engagement totals across a user's posts
// GET /api/v1/users/:id/stats
func (h *Handlers) GetUserStats(c *gin.Context) {
	authorID := c.Param("id")
	if authorID == "" {
		util.RespondBadRequest(c, "user id is required")
		return
	}

	stats, err := h.feed.Stats(c.Request.Context(), authorID)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
