package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an Inkify writer account. Credentials live with the
// upstream identity provider; the engine only stores profile data and the
// follow graph.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Bio      string `gorm:"type:text" json:"bio"`

	// Follow graph and bookmarks, mutated only through per-element
	// atomic array ops
	Following  StringArray `gorm:"type:text" json:"following"`
	Followers  StringArray `gorm:"type:text" json:"followers"`
	SavedPosts StringArray `gorm:"type:text" json:"saved_posts"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID if the caller did not provide one
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// DisplayName returns the username, or the anonymous fallback when blank
func (u *User) DisplayName() string {
	if u.Username == "" {
		return AnonymousName
	}
	return u.Username
}

// AnonymousName is shown for authors whose profile is missing or blank
const AnonymousName = "Anonymous"
