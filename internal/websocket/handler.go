package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/inkify/engine/internal/database"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/notify"
	"go.uber.org/zap"
)

// Handler handles WebSocket HTTP upgrade requests and pushes engine
// events out to connected clients.
type Handler struct {
	hub           *Hub
	jwtSecret     []byte
	notifications *notify.Service
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, jwtSecret []byte) *Handler {
	return &Handler{
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

// SetNotificationService wires the durable notification store so read
// receipts over the socket can be persisted
func (h *Handler) SetNotificationService(n *notify.Service) {
	h.notifications = n
}

// HandleWebSocket handles WebSocket upgrade requests
// Authentication is done via JWT token in query param: ?token=...
// Or via Authorization header: Bearer <token>
func (h *Handler) HandleWebSocket(c *gin.Context) {
	user, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Warn("websocket auth failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// In production, set specific origins
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, user.ID, user.Username)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.hub.Register(client)

	client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Welcome to Inkify!",
		Data: map[string]interface{}{
			"user_id":     user.ID,
			"username":    user.Username,
			"server_time": time.Now().UTC().UnixMilli(),
			"session_id":  fmt.Sprintf("%p", client),
		},
	}))

	go client.WritePump()
	client.ReadPump() // blocks until client disconnects
}

// authenticateRequest extracts and validates the JWT token from the request
func (h *Handler) authenticateRequest(c *gin.Context) (*models.User, error) {
	tokenString := ""

	if token := c.Query("token"); token != "" {
		tokenString = token
	}

	if auth := c.GetHeader("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		} else {
			tokenString = auth
		}
	}

	if tokenString == "" {
		return nil, errors.New("no authentication token provided")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, errors.New("token missing expiration")
	}
	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid user_id in token")
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	return &user, nil
}

// HandleMetrics returns WebSocket metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	metrics := h.hub.GetMetrics()
	c.JSON(http.StatusOK, gin.H{
		"websocket":    metrics,
		"online_users": h.hub.GetOnlineUsers(),
		"timestamp":    time.Now().UTC(),
	})
}

// HandleOnlineStatus checks if specific users are online
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statuses := make(map[string]bool)
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// RegisterDefaultHandlers registers handlers for client-originated
// messages: read receipts persist through the notification store and the
// updated counts flow back over the same socket.
func (h *Handler) RegisterDefaultHandlers() {
	h.hub.RegisterHandler(MessageTypeNotificationsRead, func(client *Client, msg *Message) error {
		if h.notifications == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.notifications.MarkAllRead(ctx, client.UserID); err != nil {
			return err
		}
		h.pushCounts(ctx, client.UserID)
		return nil
	})

	h.hub.RegisterHandler(MessageTypeNotificationsSeen, func(client *Client, msg *Message) error {
		if h.notifications == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.notifications.MarkAllSeen(ctx, client.UserID); err != nil {
			return err
		}
		h.pushCounts(ctx, client.UserID)
		return nil
	})
}

func (h *Handler) pushCounts(ctx context.Context, userID string) {
	unread, unseen, err := h.notifications.Counts(ctx, userID)
	if err != nil {
		logger.Log.Warn("notification count fetch failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.UpdateNotificationCount(userID, unread, unseen)
}

// PublishNotification delivers a durable notification to the recipient's
// live connections. Delivery is best-effort; the stored record is the
// source of truth.
func (h *Handler) PublishNotification(recipientID string, n *models.Notification) {
	h.hub.SendToUser(recipientID, NewMessage(MessageTypeNotification, NotificationFromModel(n)))
}

// NotifyNewPost sends a new post announcement to followers
func (h *Handler) NotifyNewPost(followerIDs []string, payload *NewPostPayload) {
	msg := NewMessage(MessageTypeNewPost, payload)
	for _, followerID := range followerIDs {
		h.hub.SendToUser(followerID, msg)
	}
}

// NotifyFollow sends a follow event to the followee
func (h *Handler) NotifyFollow(followeeID string, payload *FollowPayload) {
	h.hub.SendToUser(followeeID, NewMessage(MessageTypeNewFollower, payload))
}

// UpdateNotificationCount sends updated notification counts
func (h *Handler) UpdateNotificationCount(userID string, unread, unseen int) {
	h.hub.SendToUser(userID, NewMessage(MessageTypeNotificationCount, NotificationCountPayload{
		UnreadCount: unread,
		UnseenCount: unseen,
		Timestamp:   time.Now().UnixMilli(),
	}))
}

// BroadcastLikeUpdate broadcasts a post's new like count to all viewers
func (h *Handler) BroadcastLikeUpdate(payload *LikePayload) {
	h.hub.Broadcast(NewMessage(MessageTypeLikeCountUpdate, payload))
}

// BroadcastCommentUpdate broadcasts a new comment to all viewers
func (h *Handler) BroadcastCommentUpdate(payload *CommentPayload) {
	h.hub.Broadcast(NewMessage(MessageTypeNewComment, payload))
}

// Shutdown gracefully shuts down the WebSocket handler
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}
