package websocket

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.allClients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.unicast)
	assert.NotNil(t, hub.metrics)
	assert.NotNil(t, hub.handlers)
}

func TestRateLimiter(t *testing.T) {
	// 5 per second with a burst of 10
	rl := NewRateLimiter(5, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}

	assert.False(t, rl.Allow(), "Request 11 should be denied")

	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}

func TestNewMessage(t *testing.T) {
	payload := map[string]string{"test": "data"}
	msg := NewMessage(MessageTypeNewPost, payload)

	assert.Equal(t, MessageTypeNewPost, msg.Type)
	assert.NotNil(t, msg.Payload)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNewReply(t *testing.T) {
	original := NewMessage(MessageTypePing, nil)
	original.ID = "original-id"
	reply := NewReply(original, MessageTypePong, nil)

	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("test_error", "Something went wrong")

	assert.Equal(t, MessageTypeError, msg.Type)

	payload, ok := msg.Payload.(ErrorPayload)
	assert.True(t, ok)
	assert.Equal(t, "test_error", payload.Code)
	assert.Equal(t, "Something went wrong", payload.Message)
}

func TestMessageParsePayload(t *testing.T) {
	msg := NewMessage(MessageTypePing, map[string]interface{}{
		"client_time": float64(1234567890),
	})

	var ping PingPayload
	err := msg.ParsePayload(&ping)
	assert.NoError(t, err)
	assert.Equal(t, int64(1234567890), ping.ClientTime)
}

func TestMessageJSONSerialization(t *testing.T) {
	msg := NewMessage(MessageTypeNewPost, NewPostPayload{
		PostID:     "post-123",
		AuthorID:   "user-456",
		AuthorName: "testuser",
		Title:      "On writing",
		Category:   "Technology",
	})
	msg.ID = "msg-id"

	data, err := json.Marshal(msg)
	assert.NoError(t, err)

	var parsed Message
	err = json.Unmarshal(data, &parsed)
	assert.NoError(t, err)

	assert.Equal(t, MessageTypeNewPost, parsed.Type)
	assert.Equal(t, "msg-id", parsed.ID)
	assert.NotNil(t, parsed.Payload)
}

func TestFlexibleTimeUnmarshal(t *testing.T) {
	var ft FlexibleTime
	err := json.Unmarshal([]byte("1700000000000"), &ft)
	assert.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ft.UnixMilli())

	err = json.Unmarshal([]byte(`"2023-11-14T22:13:20Z"`), &ft)
	assert.NoError(t, err)
	assert.Equal(t, 2023, ft.Year())

	err = json.Unmarshal([]byte(`{"bad":true}`), &ft)
	assert.Error(t, err)
}

func TestHubMetrics(t *testing.T) {
	hub := NewHub()

	metrics := hub.GetMetrics()
	assert.Equal(t, int64(0), metrics.TotalConnections)
	assert.Equal(t, int64(0), metrics.ActiveConnections)
	assert.Equal(t, int64(0), metrics.MessagesReceived)
	assert.Equal(t, int64(0), metrics.MessagesSent)

	str := metrics.String()
	assert.Contains(t, str, "connections=0/0")
}

func TestDefaultRateLimitConfig(t *testing.T) {
	config := DefaultRateLimitConfig()

	assert.Equal(t, 10, config.MaxMessagesPerSecond)
	assert.Equal(t, 20, config.BurstSize)
	assert.Equal(t, time.Second, config.Window)
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub()

	hub.RegisterHandler("test_type", func(client *Client, msg *Message) error {
		return nil
	})

	handler, ok := hub.GetHandler("test_type")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	_, ok = hub.GetHandler("nonexistent")
	assert.False(t, ok)
}

func TestHubIsUserOnline(t *testing.T) {
	hub := NewHub()

	assert.False(t, hub.IsUserOnline("user-123"))
	assert.Equal(t, 0, hub.GetUserConnectionCount("user-123"))
}

func TestHubGetOnlineUsers(t *testing.T) {
	hub := NewHub()

	users := hub.GetOnlineUsers()
	assert.Empty(t, users)
}

func TestNotificationFromModel(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &models.Notification{
		ID:          "notif-123",
		RecipientID: "user-1",
		Type:        models.NotificationLike,
		ActorID:     "user-2",
		ActorName:   "maya",
		PostID:      "post-9",
		PostTitle:   "On writing",
		CreatedAt:   created,
	}

	payload := NotificationFromModel(n)
	assert.Equal(t, "notif-123", payload.ID)
	assert.Equal(t, models.NotificationLike, payload.Type)
	assert.Equal(t, "maya", payload.ActorName)
	assert.Equal(t, created.UnixMilli(), payload.CreatedAt)
	assert.False(t, payload.Read)

	data, err := json.Marshal(payload)
	assert.NoError(t, err)

	var parsed NotificationPayload
	assert.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "notif-123", parsed.ID)
}

func TestMessageTypes(t *testing.T) {
	types := []string{
		MessageTypeSystem,
		MessageTypePing,
		MessageTypePong,
		MessageTypeError,
		MessageTypeAuth,
		MessageTypeNewPost,
		MessageTypePostLiked,
		MessageTypePostUnliked,
		MessageTypeNewComment,
		MessageTypeNewFollower,
		MessageTypeUnfollowed,
		MessageTypeNotification,
		MessageTypeNotificationCount,
		MessageTypeLikeCountUpdate,
		MessageTypeCommentCountUpdate,
		MessageTypeFeedInvalidate,
		MessageTypeNotificationsRead,
		MessageTypeNotificationsSeen,
	}

	for _, typ := range types {
		assert.NotEmpty(t, typ)
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.False(t, seen[typ], "Duplicate message type: %s", typ)
		seen[typ] = true
	}
}
