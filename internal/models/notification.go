package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationReply   = "reply"
	NotificationFollow  = "follow"
	NotificationShare   = "share"
	NotificationSave    = "save"
)

// Notification is a durable per-recipient record, written after the
// triggering mutation commits. The per-recipient log is capped; oldest
// entries are trimmed on insert.
type Notification struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	RecipientID string `gorm:"not null;index:idx_notifications_recipient_created" json:"recipient_id"`
	Type        string `gorm:"not null" json:"type"`

	ActorID   string `gorm:"not null" json:"actor_id"`
	ActorName string `json:"actor_name"`

	PostID    string `json:"post_id,omitempty"`
	PostTitle string `json:"post_title,omitempty"`

	// Excerpt carries the comment or reply text for comment-ish types
	Excerpt string `gorm:"type:text" json:"excerpt,omitempty"`

	Read bool `gorm:"default:false" json:"read"`
	Seen bool `gorm:"default:false" json:"seen"`

	CreatedAt time.Time `gorm:"index:idx_notifications_recipient_created" json:"created_at"`
}

// BeforeCreate assigns a UUID if the caller did not provide one
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
