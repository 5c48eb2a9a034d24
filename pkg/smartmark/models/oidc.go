package models

import (
	"time"

	"gorm.io/gorm"
)

// OIDCProvider represents a sign-in provider (e.g. Google)
type OIDCProvider struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Name          string         `gorm:"uniqueIndex;not null" json:"name"`
	Slug          string         `gorm:"uniqueIndex;not null" json:"slug"`
	Issuer        string         `gorm:"not null" json:"issuer"`
	ClientID      string         `gorm:"not null" json:"client_id"`
	ClientSecret  string         `gorm:"not null" json:"-"`
	Scopes        string         `gorm:"default:'openid profile email'" json:"scopes"` // Space-separated
	Enabled       bool           `gorm:"default:true" json:"enabled"`
	AutoProvision bool           `gorm:"default:true" json:"auto_provision"` // Create users on first sign-in
}

// OIDCIdentity links a user to a provider subject
type OIDCIdentity struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	UserID     uint           `gorm:"not null;index" json:"user_id"`
	ProviderID uint           `gorm:"not null;index" json:"provider_id"`
	Subject    string         `gorm:"not null" json:"subject"` // sub claim
	Email      string         `json:"email"`

	// Relationships
	User     User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Provider OIDCProvider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}
