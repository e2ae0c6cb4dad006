// Package services – GormStore
//
// This file provides the production implementation of every repository
// contract the service layer declares (BotRepo, IngestRepo, FormLookupRepo,
// FormStoreRepo, AuditRepo) by forwarding to the free functions in
// internal/repo. Tests substitute in-memory fakes; main wires this one.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/repo"
)

// GormStore adapts the repo package to the service-layer repository
// interfaces. It is stateless; the *gorm.DB travels with each call.
type GormStore struct{}

var (
	_ BotRepo        = GormStore{}
	_ IngestRepo     = GormStore{}
	_ FormLookupRepo = GormStore{}
	_ FormStoreRepo  = GormStore{}
	_ AuditRepo      = GormStore{}
)

// ----- BotRepo -----

func (GormStore) UpsertBot(ctx context.Context, db *gorm.DB, name, token, slug string) (*domain.Bot, error) {
	return repo.UpsertBot(ctx, db, name, token, slug)
}

func (GormStore) GetBotBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Bot, error) {
	return repo.GetBotBySlug(ctx, db, slug)
}

// ----- IngestRepo -----

func (GormStore) UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.UpsertUser(ctx, db, u)
}

func (GormStore) UpsertChat(ctx context.Context, db *gorm.DB, botID uint, c *domain.Chat) (*domain.Chat, error) {
	return repo.UpsertChat(ctx, db, botID, c)
}

func (GormStore) UpsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	return repo.UpsertMessage(ctx, db, m)
}

func (GormStore) GetMessageByPlatformID(ctx context.Context, db *gorm.DB, chatID uint, messageID int64) (*domain.Message, error) {
	return repo.GetMessageByPlatformID(ctx, db, chatID, messageID)
}

func (GormStore) CreateUpdate(ctx context.Context, db *gorm.DB, u *domain.Update) (*domain.Update, error) {
	return repo.CreateUpdate(ctx, db, u)
}

// ----- FormLookupRepo -----

func (GormStore) PreviousOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint, before time.Time) (*domain.Message, error) {
	return repo.PreviousOutboundMessage(ctx, db, chatID, before)
}

func (GormStore) GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	return repo.GetMessage(ctx, db, id)
}

func (GormStore) GetFormState(ctx context.Context, db *gorm.DB, id uint) (*domain.FormState, error) {
	return repo.GetFormState(ctx, db, id)
}

// ----- FormStoreRepo -----

func (GormStore) CreateFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error {
	return repo.CreateFormState(ctx, db, fs)
}

func (GormStore) SaveFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error {
	return repo.SaveFormState(ctx, db, fs)
}

func (GormStore) UpsertFieldState(ctx context.Context, db *gorm.DB, formStateID uint, name, value string, valid bool) error {
	return repo.UpsertFieldState(ctx, db, formStateID, name, value, valid)
}

func (GormStore) SetMessageFormState(ctx context.Context, db *gorm.DB, messageID, formStateID uint) error {
	return repo.SetMessageFormState(ctx, db, messageID, formStateID)
}

func (GormStore) SetMessageExtra(ctx context.Context, db *gorm.DB, messageID uint, extra domain.JSONMap) error {
	return repo.SetMessageExtra(ctx, db, messageID, extra)
}

func (GormStore) LatestOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint) (*domain.Message, error) {
	return repo.LatestOutboundMessage(ctx, db, chatID)
}

// ----- AuditRepo -----

func (GormStore) SetUpdateHandler(ctx context.Context, db *gorm.DB, id uint, handler string) error {
	return repo.SetUpdateHandler(ctx, db, id, handler)
}
