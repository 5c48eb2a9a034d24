package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a signed-in identity
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"` // Optional for OIDC-only users
	Name         string         `gorm:"not null" json:"name"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	Active       bool           `gorm:"default:true" json:"active"`

	// Relationships
	Bookmarks      []Bookmark     `gorm:"foreignKey:UserID" json:"bookmarks,omitempty"`
	APIKeys        []APIKey       `gorm:"foreignKey:UserID" json:"api_keys,omitempty"`
	OIDCIdentities []OIDCIdentity `gorm:"foreignKey:UserID" json:"oidc_identities,omitempty"`
}
