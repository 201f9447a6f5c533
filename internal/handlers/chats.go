package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/chat-relay/internal/chats"
	"github.com/trentd187/chat-relay/internal/middleware"
	"github.com/trentd187/chat-relay/internal/models"
)

// ChatWriter is the write path behind the chat and message routes.
// *chats.Service implements it.
type ChatWriter interface {
	CreateChat(ctx context.Context, from, to uint) (*chats.ChatView, bool, error)
	DeleteChat(ctx context.Context, user, chatID uint) error
	SendMessage(ctx context.Context, user, chatID uint, body string, att *chats.Attachment) (*chats.MessageView, error)
	UpdateMessage(ctx context.Context, user, chatID, messageID uint, body string) (*chats.MessageView, error)
	MarkRead(ctx context.Context, user, chatID, messageID uint) (*chats.MessageView, error)
	DeleteMessage(ctx context.Context, user, chatID, messageID uint) error
}

// CreateChatRequest is the JSON body we expect on POST /api/v1/chats.
type CreateChatRequest struct {
	ToUserID uint `json:"to_user_id" validate:"required"`
}

// CreateChat handles POST /api/v1/chats.
// Returns 201 with the new chat, or 200 with the existing one if the two users
// already have a conversation.
func CreateChat(svc ChatWriter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}

		var req CreateChatRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}

		chat, created, err := svc.CreateChat(c.UserContext(), userID, req.ToUserID)
		if err != nil {
			return chatFailure(c, err)
		}

		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(chat)
	}
}

// DeleteChat handles DELETE /api/v1/chats/:chatID.
func DeleteChat(svc ChatWriter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}
		chatID, ok := pathID(c, "chatID")
		if !ok {
			return fail(c, fiber.StatusBadRequest, "invalid chat id")
		}

		if err := svc.DeleteChat(c.UserContext(), userID, chatID); err != nil {
			return chatFailure(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SendMessageRequest is the JSON body we expect on POST /api/v1/chats/:chatID/messages.
// Either body or an attachment is required; the service enforces that.
type SendMessageRequest struct {
	Body           string `json:"body" validate:"max=4000"`
	AttachmentCode string `json:"attachment_code" validate:"omitempty,oneof=file image audio"`
	AttachmentID   uint   `json:"attachment_id" validate:"required_with=AttachmentCode"`
}

// SendMessage handles POST /api/v1/chats/:chatID/messages.
func SendMessage(svc ChatWriter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "not authenticated")
		}
		chatID, ok := pathID(c, "chatID")
		if !ok {
			return fail(c, fiber.StatusBadRequest, "invalid chat id")
		}

		var req SendMessageRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}

		var att *chats.Attachment
		if req.AttachmentCode != "" {
			att = &chats.Attachment{Code: models.AttachmentCode(req.AttachmentCode), ID: req.AttachmentID}
		}

		msg, err := svc.SendMessage(c.UserContext(), userID, chatID, req.Body, att)
		if err != nil {
			return chatFailure(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	}
}

// UpdateMessageRequest is the JSON body we expect on PUT .../messages/:messageID.
type UpdateMessageRequest struct {
	Body string `json:"body" validate:"max=4000"`
}

// UpdateMessage handles PUT /api/v1/chats/:chatID/messages/:messageID.
func UpdateMessage(svc ChatWriter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, chatID, messageID, ok := messageRoute(c)
		if !ok {
			return nil
		}

		var req UpdateMessageRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}

		msg, err := svc.UpdateMessage(c.UserContext(), userID, chatID, messageID, req.Body)
		if err != nil {
			return chatFailure(c, err)
		}
		return c.JSON(msg)
	}
}

// MarkRead handles PATCH /api/v1/chats/:chatID/messages/:messageID (read receipt).
func MarkRead(svc ChatWriter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, chatID, messageID, ok := messageRoute(c)
		if !ok {
			return nil
		}

		msg, err := svc.MarkRead(c.UserContext(), userID, chatID, messageID)
		if err != nil {
			return chatFailure(c, err)
		}
		return c.JSON(msg)
	}
}

// DeleteMessage handles DELETE /api/v1/chats/:chatID/messages/:messageID.
func DeleteMessage(svc ChatWriter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, chatID, messageID, ok := messageRoute(c)
		if !ok {
			return nil
		}

		if err := svc.DeleteMessage(c.UserContext(), userID, chatID, messageID); err != nil {
			return chatFailure(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// messageRoute reads the caller and both ids of a message route. When ok is false the
// error response has already been written.
func messageRoute(c *fiber.Ctx) (userID, chatID, messageID uint, ok bool) {
	if userID, ok = middleware.UserID(c); !ok {
		_ = fail(c, fiber.StatusUnauthorized, "not authenticated")
		return 0, 0, 0, false
	}
	if chatID, ok = pathID(c, "chatID"); !ok {
		_ = fail(c, fiber.StatusBadRequest, "invalid chat id")
		return 0, 0, 0, false
	}
	if messageID, ok = pathID(c, "messageID"); !ok {
		_ = fail(c, fiber.StatusBadRequest, "invalid message id")
		return 0, 0, 0, false
	}
	return userID, chatID, messageID, true
}
