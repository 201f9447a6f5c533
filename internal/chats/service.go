// Package chats is the application write path for conversations and messages.
//
// Every operation validates, commits with GORM, then notifies the affected participants
// through a realtime.Router. Per chat, the commit and the notification happen under one
// lock, so recipients observe events in commit order.
package chats

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/trentd187/chat-relay/internal/models"
	"github.com/trentd187/chat-relay/internal/realtime"
)

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrForbidden         = errors.New("not allowed")
	ErrSelfChat          = errors.New("cannot start a chat with yourself")
	ErrEmptyMessage      = errors.New("message needs a body or an attachment")
)

const lockStripes = 64

// Attachment references an already uploaded file.
type Attachment struct {
	Code models.AttachmentCode
	ID   uint
}

// Service runs chat and message writes.
type Service struct {
	db     *gorm.DB
	router realtime.Router
	log    zerolog.Logger
	now    func() time.Time

	locks     [lockStripes]sync.Mutex
	pairLocks [lockStripes]sync.Mutex
}

// NewService builds a Service that notifies through router.
func NewService(db *gorm.DB, router realtime.Router, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		router: router,
		log:    log.With().Str("component", "chats").Logger(),
		now:    time.Now,
	}
}

// lockChat serializes writes and their events for one chat.
func (s *Service) lockChat(chatID uint) func() {
	mu := &s.locks[chatID%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// lockPair serializes chat creation for one unordered pair of users.
func (s *Service) lockPair(a, b uint) func() {
	lo, hi := min(a, b), max(a, b)
	mu := &s.pairLocks[(lo*31+hi)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// CreateChat opens a conversation from one user to another. If the two already share a
// live chat it is returned with created=false and nobody is notified.
func (s *Service) CreateChat(ctx context.Context, from, to uint) (view *ChatView, created bool, err error) {
	if from == to {
		return nil, false, ErrSelfChat
	}
	db := s.db.WithContext(ctx)

	var recipients int64
	if err := db.Model(&models.User{}).Where("id = ?", to).Count(&recipients).Error; err != nil {
		return nil, false, errors.Wrap(err, "look up recipient")
	}
	if recipients == 0 {
		return nil, false, ErrRecipientNotFound
	}

	unlockPair := s.lockPair(from, to)
	defer unlockPair()

	existing, err := liveChat(db, from, to)
	switch {
	case err == nil:
		return chatView(existing), false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, errors.Wrap(err, "look up existing chat")
	}

	chat, created, err := insertChat(db, from, to)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return chatView(chat), false, nil
	}

	unlock := s.lockChat(chat.ID)
	defer unlock()

	view = chatView(chat)
	s.router.EmitToChat(realtime.ChatID(chat.ID), realtime.EventUpdateChat,
		ChatEvent{Type: TypeCreate, ChatID: chat.ID, Chat: view},
		realtime.ToParticipants(realtime.UserID(from), realtime.UserID(to)))

	s.log.Info().Uint("chat_id", chat.ID).Uint("from_user_id", from).Uint("to_user_id", to).Msg("chat created")
	return view, true, nil
}

// liveChat finds the undeleted chat between two users in either direction.
func liveChat(db *gorm.DB, a, b uint) (*models.Chat, error) {
	var chat models.Chat
	err := db.Where("deleted_at IS NULL").
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", a, b, b, a).
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// insertChat creates a chat from one user to another. When another process created the
// pair's live chat first, the unique index rejects the insert and that chat is returned
// with created=false.
func insertChat(db *gorm.DB, from, to uint) (*models.Chat, bool, error) {
	chat := models.Chat{FromUserID: from, ToUserID: to}
	err := db.Create(&chat).Error
	if err == nil {
		return &chat, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, errors.Wrap(err, "create chat")
	}

	existing, err := liveChat(db, from, to)
	if err != nil {
		return nil, false, errors.Wrap(err, "load chat after duplicate insert")
	}
	return existing, false, nil
}

// DeleteChat soft-deletes a chat. Either participant may delete it.
func (s *Service) DeleteChat(ctx context.Context, user, chatID uint) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	db := s.db.WithContext(ctx)
	chat, err := participantChat(db, user, chatID)
	if err != nil {
		return err
	}

	if err := db.Model(chat).Update("deleted_at", s.now()).Error; err != nil {
		return errors.Wrap(err, "delete chat")
	}

	s.router.EmitToChat(realtime.ChatID(chat.ID), realtime.EventUpdateChat,
		ChatEvent{Type: TypeDelete, ChatID: chat.ID, FromUserID: chat.FromUserID, ToUserID: chat.ToUserID},
		realtime.ToParticipants(realtime.UserID(chat.FromUserID), realtime.UserID(chat.ToUserID)))
	return nil
}

// SendMessage stores a new message from user. The counterpart gets new_message; the
// sender's own connection gets update_chat so other views of the chat list refresh.
func (s *Service) SendMessage(ctx context.Context, user, chatID uint, body string, att *Attachment) (*MessageView, error) {
	body = strings.TrimSpace(body)
	if body == "" && att == nil {
		return nil, ErrEmptyMessage
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	db := s.db.WithContext(ctx)
	chat, err := participantChat(db, user, chatID)
	if err != nil {
		return nil, err
	}

	msg := models.ChatMessage{ChatID: chat.ID, FromUserID: user, Body: body}
	if att != nil {
		msg.AttachmentCode = att.Code
		msg.AttachmentID = &att.ID
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, errors.Wrap(err, "create message")
	}

	view := messageView(&msg)
	s.router.EmitToChat(realtime.ChatID(chat.ID), realtime.EventNewMessage,
		MessageEvent{Type: TypeCreate, ChatID: chat.ID, Message: view},
		realtime.ToParticipants(realtime.UserID(chat.FromUserID), realtime.UserID(chat.ToUserID)),
		realtime.ExcludeUser(realtime.UserID(user)))
	s.router.EmitToUser(realtime.UserID(user), realtime.EventUpdateChat,
		ChatEvent{Type: TypeMessageSent, ChatID: chat.ID, Message: view})
	return view, nil
}

// UpdateMessage edits the body of a message. Only its author may edit it.
func (s *Service) UpdateMessage(ctx context.Context, user, chatID, messageID uint, body string) (*MessageView, error) {
	body = strings.TrimSpace(body)

	unlock := s.lockChat(chatID)
	defer unlock()

	db := s.db.WithContext(ctx)
	chat, msg, err := loadMessage(db, user, chatID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.FromUserID != user {
		return nil, ErrForbidden
	}
	if body == "" && msg.AttachmentID == nil {
		return nil, ErrEmptyMessage
	}

	if err := db.Model(msg).Update("body", body).Error; err != nil {
		return nil, errors.Wrap(err, "update message")
	}
	msg.Body = body

	view := messageView(msg)
	s.router.EmitToChat(realtime.ChatID(chat.ID), realtime.EventMessageUpdated,
		MessageEvent{Type: TypeUpdate, ChatID: chat.ID, Message: view},
		realtime.ToParticipants(realtime.UserID(chat.FromUserID), realtime.UserID(chat.ToUserID)),
		realtime.ExcludeUser(realtime.UserID(user)))
	return view, nil
}

// MarkRead records that user has seen a message written by the other participant and
// tells the author. Reading an already read message changes nothing and sends nothing.
func (s *Service) MarkRead(ctx context.Context, user, chatID, messageID uint) (*MessageView, error) {
	unlock := s.lockChat(chatID)
	defer unlock()

	db := s.db.WithContext(ctx)
	chat, msg, err := loadMessage(db, user, chatID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.FromUserID == user {
		return nil, ErrForbidden
	}
	if msg.ViewedAt != nil {
		return messageView(msg), nil
	}

	now := s.now()
	if err := db.Model(msg).Update("viewed_at", now).Error; err != nil {
		return nil, errors.Wrap(err, "mark message read")
	}
	if err := db.Model(chat).Update("viewed_at", now).Error; err != nil {
		return nil, errors.Wrap(err, "mark chat viewed")
	}
	msg.ViewedAt = &now

	view := messageView(msg)
	s.router.EmitToUser(realtime.UserID(msg.FromUserID), realtime.EventMessageRead,
		MessageEvent{Type: TypeRead, ChatID: chat.ID, Message: view, ReadBy: user})
	return view, nil
}

// DeleteMessage soft-deletes a message. Only its author may delete it.
func (s *Service) DeleteMessage(ctx context.Context, user, chatID, messageID uint) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	db := s.db.WithContext(ctx)
	chat, msg, err := loadMessage(db, user, chatID, messageID)
	if err != nil {
		return err
	}
	if msg.FromUserID != user {
		return ErrForbidden
	}

	if err := db.Model(msg).Update("deleted_at", s.now()).Error; err != nil {
		return errors.Wrap(err, "delete message")
	}

	s.router.EmitToChat(realtime.ChatID(chat.ID), realtime.EventMessageDeleted,
		MessageEvent{Type: TypeDelete, ChatID: chat.ID, MessageID: msg.ID},
		realtime.ToParticipants(realtime.UserID(chat.FromUserID), realtime.UserID(chat.ToUserID)),
		realtime.ExcludeUser(realtime.UserID(user)))
	return nil
}

// AccessChecker implements realtime.ChatAccess: only the two participants of a live
// chat may join its room. It only reads, so it needs no router and no lock.
type AccessChecker struct {
	db *gorm.DB
}

// NewAccessChecker wraps db.
func NewAccessChecker(db *gorm.DB) *AccessChecker {
	return &AccessChecker{db: db}
}

// CanAccessChat reports whether user takes part in chat.
func (a *AccessChecker) CanAccessChat(ctx context.Context, user realtime.UserID, chat realtime.ChatID) (bool, error) {
	_, err := participantChat(a.db.WithContext(ctx), uint(user), uint(chat))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrChatNotFound), errors.Is(err, ErrForbidden):
		return false, nil
	default:
		return false, err
	}
}

// participantChat loads a live chat that user takes part in.
func participantChat(db *gorm.DB, user, chatID uint) (*models.Chat, error) {
	var chat models.Chat
	if err := db.Where("deleted_at IS NULL").First(&chat, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, errors.Wrap(err, "load chat")
	}
	if !chat.HasParticipant(user) {
		return nil, ErrForbidden
	}
	return &chat, nil
}

func loadMessage(db *gorm.DB, user, chatID, messageID uint) (*models.Chat, *models.ChatMessage, error) {
	chat, err := participantChat(db, user, chatID)
	if err != nil {
		return nil, nil, err
	}

	var msg models.ChatMessage
	if err := db.Where("chat_id = ? AND deleted_at IS NULL", chat.ID).First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, errors.Wrap(err, "load message")
	}
	return chat, &msg, nil
}
