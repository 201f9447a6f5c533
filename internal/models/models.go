// Package models defines the data structures (models) that map to database tables.
// GORM uses these structs to generate SQL queries and map database rows back to Go values.
// The struct field tags (the backtick strings like `gorm:"..."`) tell GORM how to handle
// each field: its column type, constraints, default values, and relationships.
//
// The data model is a direct-message chat:
//   - Users are synced lazily from the account system's tokens
//   - A Chat is one conversation between exactly two users (FromUser started it)
//   - ChatMessages belong to a Chat and are authored by one of its two participants
//
// The schema itself lives in internal/database/migrations; these structs must match it.
package models

import "time"

// AttachmentCode says what kind of file, if any, a message carries.
// Go has no enum keyword, so a named string type plus constants gives us type safety
// while keeping the values readable in the database.
type AttachmentCode string

const (
	AttachmentNone  AttachmentCode = ""      // Plain text message
	AttachmentFile  AttachmentCode = "file"  // Generic uploaded file
	AttachmentImage AttachmentCode = "image" // Image shown inline
	AttachmentAudio AttachmentCode = "audio" // Voice note
)

// User is a person who can chat. The ID is the account system's numeric user id
// (the JWT "sub" claim), so it is assigned by us on first sight, not auto-incremented.
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	AvatarURL *string   `json:"avatar"` // Pointer because most users never upload one (NULL in the database)
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a conversation between two users.
// ViewedAt is the last time the recipient opened the chat; DeletedAt is a soft delete.
type Chat struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	FromUserID uint       `gorm:"not null;index" json:"from_user_id"`
	ToUserID   uint       `gorm:"not null;index" json:"to_user_id"`
	ViewedAt   *time.Time `json:"viewed_at"`
	DeletedAt  *time.Time `gorm:"index" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasParticipant reports whether user is one of the two sides of the chat.
func (c *Chat) HasParticipant(user uint) bool {
	return c.FromUserID == user || c.ToUserID == user
}

// Counterpart returns the other participant from user's point of view.
func (c *Chat) Counterpart(user uint) uint {
	if c.FromUserID == user {
		return c.ToUserID
	}
	return c.FromUserID
}

// ChatMessage is one message inside a chat.
// ViewedAt is set when the recipient reads it; DeletedAt is a soft delete.
type ChatMessage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ChatID         uint           `gorm:"not null;index" json:"chat_id"`
	FromUserID     uint           `gorm:"not null" json:"from_user_id"`
	Body           string         `gorm:"type:text;not null;default:''" json:"body"`
	AttachmentCode AttachmentCode `gorm:"not null;default:''" json:"attachment_code,omitempty"`
	AttachmentID   *uint          `json:"attachment_id,omitempty"`
	ViewedAt       *time.Time     `json:"viewed_at"`
	DeletedAt      *time.Time     `gorm:"index" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
