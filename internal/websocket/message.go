package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkify/engine/internal/models"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON accepts Unix milliseconds or an RFC3339 string
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always outputs RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
	MessageTypeAuth   = "auth"

	// Engagement messages
	MessageTypePostLiked   = "post_liked"
	MessageTypePostUnliked = "post_unliked"
	MessageTypeNewComment  = "new_comment"
	MessageTypeNewPost     = "new_post"

	// Social messages
	MessageTypeNewFollower = "new_follower"
	MessageTypeUnfollowed  = "unfollowed"

	// Notification messages
	MessageTypeNotification      = "notification"
	MessageTypeNotificationCount = "notification_count"

	// Real-time counter updates
	MessageTypeLikeCountUpdate    = "like_count_update"
	MessageTypeCommentCountUpdate = "comment_count_update"
	MessageTypeFeedInvalidate     = "feed_invalidate"

	// Read receipts from clients
	MessageTypeNotificationsRead = "notifications_read"
	MessageTypeNotificationsSeen = "notifications_seen"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// AuthPayload represents authentication message payload
type AuthPayload struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NotificationPayload carries one durable notification over the socket
type NotificationPayload struct {
	ID        string `json:"id"`
	Type      string `json:"notification_type"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	PostID    string `json:"post_id,omitempty"`
	PostTitle string `json:"post_title,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"created_at"`
}

// NotificationFromModel converts a stored notification for wire delivery
func NotificationFromModel(n *models.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		Type:      n.Type,
		ActorID:   n.ActorID,
		ActorName: n.ActorName,
		PostID:    n.PostID,
		PostTitle: n.PostTitle,
		Excerpt:   n.Excerpt,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UnixMilli(),
	}
}

// NotificationCountPayload indicates unread counts changed
type NotificationCountPayload struct {
	UnreadCount int   `json:"unread_count"`
	UnseenCount int   `json:"unseen_count"`
	Timestamp   int64 `json:"timestamp"`
}

// LikePayload represents a like/unlike event on a post
type LikePayload struct {
	PostID    string `json:"post_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	LikeCount int    `json:"like_count"`
	Liked     bool   `json:"liked"`
}

// CommentPayload announces a new comment or reply
type CommentPayload struct {
	PostID       string `json:"post_id"`
	AuthorID     string `json:"author_id"`
	AuthorName   string `json:"author_name"`
	Text         string `json:"text"`
	CreatedAt    int64  `json:"created_at"`
	IsReply      bool   `json:"is_reply"`
	ParentRef    *int64 `json:"parent_ref,omitempty"`
	CommentCount int    `json:"comment_count"`
}

// FollowPayload represents a follow/unfollow event
type FollowPayload struct {
	FollowerID   string `json:"follower_id"`
	FollowerName string `json:"follower_name"`
	FolloweeID   string `json:"followee_id"`
}

// NewPostPayload announces a freshly published post to followers
type NewPostPayload struct {
	PostID     string `json:"post_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
}

// FeedInvalidatePayload signals clients to refetch a feed. Delivery is
// at-least-once; a duplicate invalidation is a harmless extra refetch.
type FeedInvalidatePayload struct {
	Collection string `json:"collection"`
	Reason     string `json:"reason,omitempty"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
