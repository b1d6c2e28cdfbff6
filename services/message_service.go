package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kendall-kelly/atelier-api/models"
	"gorm.io/gorm"
)

// MaxMessageLength bounds the content of a single message, in characters
const MaxMessageLength = 5000

// MessageService stores direct messages between marketplace users
type MessageService struct {
	db *gorm.DB
}

// NewMessageService creates a message service over db
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// SendMessageInput is one outgoing message, optionally about a design or a quote
type SendMessageInput struct {
	ReceiverID uint
	Content    string
	DesignID   *uint
	QuoteID    *uint
}

// SendMessage stores a message from actor to the receiver
func (s *MessageService) SendMessage(ctx context.Context, actor Actor, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	switch {
	case content == "":
		return nil, newValidationError("content", "message content is required")
	case utf8.RuneCountInString(content) > MaxMessageLength:
		return nil, newValidationError("content", fmt.Sprintf("message content must be at most %d characters", MaxMessageLength))
	case in.ReceiverID == actor.UserID:
		return nil, newValidationError("receiver_id", "you cannot message yourself")
	}

	db := s.db.WithContext(ctx)
	var receiver models.User
	if err := db.Select("id").First(&receiver, in.ReceiverID).Error; err != nil {
		return nil, notFoundOr(err, "user", in.ReceiverID)
	}
	if in.DesignID != nil {
		var design models.Design
		if err := db.Select("id").First(&design, *in.DesignID).Error; err != nil {
			return nil, notFoundOr(err, "design", *in.DesignID)
		}
	}
	if in.QuoteID != nil {
		var quote models.Quote
		if err := db.Select("id", "design_id").First(&quote, *in.QuoteID).Error; err != nil {
			return nil, notFoundOr(err, "quote", *in.QuoteID)
		}
		if in.DesignID != nil && quote.DesignID != *in.DesignID {
			return nil, newValidationError("quote_id", "quote does not belong to the design")
		}
	}

	message := models.Message{
		SenderID:   actor.UserID,
		ReceiverID: in.ReceiverID,
		DesignID:   in.DesignID,
		QuoteID:    in.QuoteID,
		Content:    content,
	}
	if err := db.Create(&message).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	log.Printf("[messages] sent message_id=%d sender_id=%d receiver_id=%d", message.ID, message.SenderID, message.ReceiverID)

	if err := db.Preload("Sender").First(&message, message.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &message, nil
}

// GetConversation returns the messages between actor and otherUserID, oldest first.
// A non-nil designID restricts the conversation to that design.
func (s *MessageService) GetConversation(ctx context.Context, actor Actor, otherUserID uint, designID *uint) ([]models.Message, error) {
	query := s.db.WithContext(ctx).
		Preload("Sender").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			actor.UserID, otherUserID, otherUserID, actor.UserID)
	if designID != nil {
		query = query.Where("design_id = ?", *designID)
	}

	messages := []models.Message{}
	if err := query.Order("created_at ASC").Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return messages, nil
}

// GetUserMessages returns every message actor sent or received, newest first
func (s *MessageService) GetUserMessages(ctx context.Context, actor Actor) ([]models.Message, error) {
	messages := []models.Message{}
	if err := s.db.WithContext(ctx).
		Preload("Sender").
		Where("sender_id = ? OR receiver_id = ?", actor.UserID, actor.UserID).
		Order("created_at DESC").Order("id DESC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// MarkAsRead marks a received message as read; marking it again changes nothing
func (s *MessageService) MarkAsRead(ctx context.Context, actor Actor, messageID uint) (*models.Message, error) {
	db := s.db.WithContext(ctx)
	var message models.Message
	if err := db.First(&message, messageID).Error; err != nil {
		return nil, notFoundOr(err, "message", messageID)
	}
	if message.ReceiverID != actor.UserID {
		return nil, &ForbiddenError{Message: "Only the receiver can mark a message as read"}
	}

	if !message.IsRead {
		now := time.Now()
		if err := db.Model(&models.Message{}).
			Where("id = ? AND is_read = ?", messageID, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
			return nil, fmt.Errorf("failed to mark message as read: %w", err)
		}
	}

	if err := db.Preload("Sender").First(&message, messageID).Error; err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &message, nil
}

// UnreadCount returns how many received messages actor has not read
func (s *MessageService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", actor.UserID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
