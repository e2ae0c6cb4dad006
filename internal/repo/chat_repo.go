// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertChat(ctx, db, botID, c) -> *domain.Chat, error
//     Inserts or refreshes a chat row keyed by (bot_id, chat_id).
//
//   - GetChat(ctx, db, botID, chatID) -> *domain.Chat, error
//     Fetches a chat by its platform identity, or ErrNotFound if missing.
//
//   - CountChats(ctx, db, botID) -> (int64, error)
//     Returns the total number of chats recorded for the bot.
//
//   - ListChatsPage(ctx, db, botID, offset, limit) -> []domain.Chat, error
//     Returns a paginated slice of chats for a bot.
//
// Usage:
//
//	// Within a service layer
//	chat, err := repo.UpsertChat(ctx, db, bot.ID, &domain.Chat{ChatID: 42, Type: "private"})
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
//
// This repository is designed to be wrapped by a higher-level service
// (see services.UpdateService) which performs webhook ingestion.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
)

// UpsertChat inserts a chat row keyed by (bot_id, chat_id), or refreshes the
// descriptive columns of the existing row.
func UpsertChat(ctx context.Context, db *gorm.DB, botID uint, c *domain.Chat) (*domain.Chat, error) {
	var existing domain.Chat
	err := db.WithContext(ctx).
		Where("bot_id = ? AND chat_id = ?", botID, c.ChatID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.BotID = botID
		if err := db.WithContext(ctx).Create(c).Error; err != nil {
			return nil, err
		}
		return c, nil
	case err != nil:
		return nil, err
	}
	existing.Type = c.Type
	existing.Title = c.Title
	existing.Username = c.Username
	if err := db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetChat fetches a single chat by its platform identity. If the record does
// not exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetChat(ctx context.Context, db *gorm.DB, botID uint, chatID int64) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Where("bot_id = ? AND chat_id = ?", botID, chatID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountChats returns the total number of chats recorded for botID.
// On DB error, it returns the error.
func CountChats(ctx context.Context, db *gorm.DB, botID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("bot_id = ?", botID).
		Count(&total).Error
	return total, err
}

// ListChatsPage returns a paginated slice of chats for botID, ordered by
// creation time descending. Use CountChats to obtain the total for pagination
// metadata. On DB error, it returns the error.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListChatsPage(ctx context.Context, db *gorm.DB, botID uint, offset, limit int) ([]domain.Chat, error) {
	var out []domain.Chat
	err := db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
