// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the chat-scoped ordering query that conversation
// resumption depends on.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
)

// UpsertMessage inserts a message row keyed by (chat_id, message_id), or
// refreshes the mutable columns of the existing row. Redeliveries and edits
// of the same platform message land on the same row.
func UpsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	var existing domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ? AND message_id = ?", m.ChatID, m.MessageID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.WithContext(ctx).Create(m).Error; err != nil {
			return nil, err
		}
		return m, nil
	case err != nil:
		return nil, err
	}
	existing.Direction = m.Direction
	existing.Date = m.Date
	existing.Text = m.Text
	existing.FromUserID = m.FromUserID
	existing.ReplyToMessageID = m.ReplyToMessageID
	existing.Entities = m.Entities
	existing.ReplyMarkup = m.ReplyMarkup
	if err := db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetMessage fetches a message by primary key.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByPlatformID fetches a message by its (chat, message_id)
// platform identity.
func GetMessageByPlatformID(ctx context.Context, db *gorm.DB, chatID uint, messageID int64) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestOutboundMessage returns the most recent outbound message of the chat
// by platform date (Date DESC, ID DESC as tiebreaker), or ErrNotFound when
// the chat has no outbound messages. Used to locate the prompt an in-place
// edit should target.
func LatestOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ? AND direction = ?", chatID, domain.DirectionOut).
		Order("date DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// PreviousOutboundMessage returns the most recent outbound message of the
// chat dated strictly before the given instant (Date DESC, ID DESC as
// tiebreaker), or ErrNotFound when none exists. This is the entry point of
// conversation resumption for free-text replies: the reply binds to whichever
// prompt preceded it, so a prompt delivered after the user typed cannot
// capture their input. A zero bound means no date restriction.
func PreviousOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint, before time.Time) (*domain.Message, error) {
	q := db.WithContext(ctx).
		Where("chat_id = ? AND direction = ?", chatID, domain.DirectionOut)
	if !before.IsZero() {
		q = q.Where("date < ?", before)
	}
	var m domain.Message
	if err := q.Order("date DESC, id DESC").First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SetMessageFormState stamps the form pointer on a message, marking it as the
// root prompt that owns the form.
func SetMessageFormState(ctx context.Context, db *gorm.DB, messageID, formStateID uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", messageID).
		Update("form_state_id", formStateID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetMessageExtra replaces the message's extra map. Used to stamp the
// form_root_pk pointer on follow-up prompts.
func SetMessageExtra(ctx context.Context, db *gorm.DB, messageID uint, extra domain.JSONMap) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", messageID).
		Update("extra", extra)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(ctx context.Context, db *gorm.DB, chatID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (Date ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, chatID uint, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("date ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
