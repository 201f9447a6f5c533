package chats

import (
	"time"

	"github.com/trentd187/chat-relay/internal/models"
)

// MessageView is the client-facing shape of a message in API responses and events.
type MessageView struct {
	ID             uint       `json:"id"`
	ChatID         uint       `json:"chat_id"`
	FromUserID     uint       `json:"from_user_id"`
	Body           string     `json:"body"`
	AttachmentCode string     `json:"attachment_code,omitempty"`
	AttachmentID   *uint      `json:"attachment_id,omitempty"`
	ViewedAt       *time.Time `json:"viewed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ChatView is the client-facing shape of a chat.
type ChatView struct {
	ID         uint       `json:"id"`
	FromUserID uint       `json:"from_user_id"`
	ToUserID   uint       `json:"to_user_id"`
	ViewedAt   *time.Time `json:"viewed_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func messageView(m *models.ChatMessage) *MessageView {
	return &MessageView{
		ID:             m.ID,
		ChatID:         m.ChatID,
		FromUserID:     m.FromUserID,
		Body:           m.Body,
		AttachmentCode: string(m.AttachmentCode),
		AttachmentID:   m.AttachmentID,
		ViewedAt:       m.ViewedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func chatView(c *models.Chat) *ChatView {
	return &ChatView{
		ID:         c.ID,
		FromUserID: c.FromUserID,
		ToUserID:   c.ToUserID,
		ViewedAt:   c.ViewedAt,
		CreatedAt:  c.CreatedAt,
	}
}

// Event payload "type" values.
const (
	TypeCreate      = "create"
	TypeUpdate      = "update"
	TypeRead        = "read"
	TypeDelete      = "delete"
	TypeMessageSent = "message_sent"
)

// MessageEvent is the payload of new_message, message_updated, message_read and
// message_deleted. Which optional fields are set depends on Type.
type MessageEvent struct {
	Type      string       `json:"type"`
	ChatID    uint         `json:"chat_id"`
	Message   *MessageView `json:"message,omitempty"`
	MessageID uint         `json:"message_id,omitempty"`
	ReadBy    uint         `json:"read_by,omitempty"`
}

// ChatEvent is the payload of update_chat.
type ChatEvent struct {
	Type       string       `json:"type"`
	ChatID     uint         `json:"chat_id"`
	Chat       *ChatView    `json:"chat,omitempty"`
	Message    *MessageView `json:"message,omitempty"`
	FromUserID uint         `json:"from_user_id,omitempty"`
	ToUserID   uint         `json:"to_user_id,omitempty"`
}
