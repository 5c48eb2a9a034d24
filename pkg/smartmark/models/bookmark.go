package models

import "time"

// Bookmark is one saved link owned by a single user.
// Rows are hard-deleted so a removed URL can be saved again.
type Bookmark struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	URL       string    `gorm:"not null" json:"url"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
}
