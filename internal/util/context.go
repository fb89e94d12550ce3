package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUserIDFromContext extracts the authenticated user ID from the Gin
// context. Responds 401 and returns false when no user is present.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user ID in context"})
		return "", false
	}
	return userIDStr, true
}
