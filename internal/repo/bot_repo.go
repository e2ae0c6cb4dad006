// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Bot model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a bot is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertBot(ctx, db, name, token, slug) -> *domain.Bot, error
//     Inserts or refreshes a bot row keyed by its token.
//
//   - GetBotBySlug(ctx, db, slug) -> *domain.Bot, error
//     Resolves the bot addressed by a webhook route slug.
//
//   - ListBots(ctx, db) -> []domain.Bot, error
//     Returns all configured bots, ordered by name.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.SyncBots) which reconciles configuration at startup.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertBot inserts a bot row keyed by token, or refreshes the name and slug
// of the existing row. Returns the persisted bot either way.
func UpsertBot(ctx context.Context, db *gorm.DB, name, token, slug string) (*domain.Bot, error) {
	var b domain.Bot
	err := db.WithContext(ctx).Where("token = ?", token).First(&b).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		b = domain.Bot{Name: name, Token: token, TokenSlug: slug}
		if err := db.WithContext(ctx).Create(&b).Error; err != nil {
			return nil, err
		}
		return &b, nil
	case err != nil:
		return nil, err
	}
	if b.Name != name || b.TokenSlug != slug {
		b.Name = name
		b.TokenSlug = slug
		if err := db.WithContext(ctx).Save(&b).Error; err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// GetBotBySlug resolves the bot addressed by a webhook route slug, or
// ErrNotFound when no bot carries it.
func GetBotBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Bot, error) {
	var b domain.Bot
	if err := db.WithContext(ctx).Where("token_slug = ?", slug).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBots returns every configured bot ordered by name.
func ListBots(ctx context.Context, db *gorm.DB) ([]domain.Bot, error) {
	var out []domain.Bot
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}
