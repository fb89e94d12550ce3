package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/inkify/engine/internal/util"
)

// AuthMiddleware validates the bearer token and stores the caller's user
// ID in the gin context. In test mode an X-User-ID header stands in for a
// real token.
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if gin.Mode() == gin.TestMode {
			if userID := c.GetHeader("X-User-ID"); userID != "" {
				c.Set("user_id", userID)
				c.Next()
				return
			}
		}

		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			util.RespondUnauthorized(c, "no token provided")
			c.Abort()
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		userID, err := h.parseToken(tokenString)
		if err != nil {
			util.RespondUnauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// parseToken validates an HS256 JWT and extracts the user ID claim
func (h *Handlers) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return "", fmt.Errorf("token missing expiration")
	}
	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return "", fmt.Errorf("token expired")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("invalid user_id in token")
	}
	return userID, nil
}
