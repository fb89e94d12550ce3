package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultCategory is assigned when a post is created without one
const DefaultCategory = "General"

// Post is a published blog post with denormalized engagement state.
// Likes, ViewedBy and Comments are mutated only via per-element atomic
// operations on the store; whole-array writes are reserved for comment
// deletion, which runs under a row lock.
type Post struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	AuthorID   string `gorm:"not null;index" json:"author_id"`
	AuthorName string `json:"author_name"` // snapshot at publish time

	Title    string `gorm:"not null" json:"title"`
	Content  string `gorm:"type:text;not null" json:"content"`
	Category string `gorm:"index" json:"category"`
	ImageRef string `gorm:"type:text" json:"image_ref,omitempty"`

	Likes    StringArray `gorm:"type:text" json:"likes"`
	ViewedBy StringArray `gorm:"type:text" json:"viewed_by"`
	Comments CommentList `gorm:"type:text" json:"comments"`

	// Denormalized counters kept in lockstep with the arrays so feeds can
	// sort in SQL. Views may exceed len(ViewedBy) on legacy rows.
	Views        int `gorm:"default:0" json:"views"`
	LikeCount    int `gorm:"default:0;index" json:"like_count"`
	CommentCount int `gorm:"default:0;index" json:"comment_count"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID and the default category
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	return nil
}

// Comment is an embedded value inside a post's comment array, not a table.
// Its identity is the structural triple (AuthorID, Text, CreatedAt); the ID
// exists for logging only and never participates in addressing.
type Comment struct {
	ID         string `json:"id,omitempty"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`

	// CreatedAt is a millisecond epoch timestamp. Replies reference their
	// root comment through ParentRef, which holds the root's CreatedAt.
	CreatedAt int64  `json:"created_at"`
	IsReply   bool   `json:"is_reply,omitempty"`
	ParentRef *int64 `json:"parent_ref,omitempty"`

	RepliedTo *RepliedTo `json:"replied_to,omitempty"`
}

// RepliedTo snapshots the author of the comment being replied to
type RepliedTo struct {
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
}

// Matches reports whether the comment equals the structural triple
func (c Comment) Matches(authorID, text string, createdAt int64) bool {
	return c.AuthorID == authorID && c.Text == text && c.CreatedAt == createdAt
}

// CommentList is a comment array stored as a JSON text column
type CommentList []Comment

// Scan implements the sql.Scanner interface for reading from database
func (l *CommentList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for CommentList: %T", value)
	}

	if len(data) == 0 {
		*l = CommentList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// Value implements the driver.Valuer interface for writing to database
func (l CommentList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]Comment(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
