// Package services – UpdateService
//
// This file implements webhook ingestion: turning one raw platform update
// into persistent User, Chat, Message, and Update rows. Ingestion is
// update-or-create throughout, keyed by platform identifiers, so webhook
// redeliveries and message edits land on existing rows instead of
// duplicating them.
//
// Service-level errors (e.g., ErrDuplicateUpdate) are returned for
// predictable cases so the dispatcher can skip redeliveries consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/repo"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// IngestRepo defines the repository contract required by UpdateService.
type IngestRepo interface {
	// UpsertUser inserts or refreshes a user keyed by platform user id.
	UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)

	// UpsertChat inserts or refreshes a chat keyed by (bot, chat_id).
	UpsertChat(ctx context.Context, db *gorm.DB, botID uint, c *domain.Chat) (*domain.Chat, error)

	// UpsertMessage inserts or refreshes a message keyed by (chat, message_id).
	UpsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error)

	// GetMessageByPlatformID fetches a message by its platform identity.
	GetMessageByPlatformID(ctx context.Context, db *gorm.DB, chatID uint, messageID int64) (*domain.Message, error)

	// CreateUpdate inserts an update row, returning repo.ErrDuplicate on a
	// redelivered update_id.
	CreateUpdate(ctx context.Context, db *gorm.DB, u *domain.Update) (*domain.Update, error)
}

// Ingestion is the persistent outcome of one webhook delivery.
type Ingestion struct {
	// Record is the persisted update row.
	Record *domain.Update
	// Chat is the conversation the update belongs to, nil for update types
	// that carry no chat.
	Chat *domain.Chat
	// User is the sender, nil for anonymous posts.
	User *domain.User
	// Message is the persisted row the update is about: the inbound message
	// for message updates, the bound outbound prompt for callback queries
	// (nil when that prompt was never recorded).
	Message *domain.Message
}

// UpdateService ingests webhook deliveries into the database.
type UpdateService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the ingestion repository used by this service.
	Repo IngestRepo
}

// NewUpdateService constructs an UpdateService.
func NewUpdateService(db *gorm.DB, r IngestRepo) *UpdateService {
	return &UpdateService{DB: db, Repo: r}
}

// SaveUpdate persists one webhook delivery for bot. Users, chats, and
// messages are upserted by platform identity; the update row itself is
// insert-only and a redelivered update_id returns ErrDuplicateUpdate.
func (s *UpdateService) SaveUpdate(ctx context.Context, bot *domain.Bot, u *telegram.Update) (*Ingestion, error) {
	tr := otel.Tracer("services/UpdateService")
	ctx, span := tr.Start(ctx, "SaveUpdate",
		trace.WithAttributes(
			attribute.Int64("update.id", u.UpdateID),
			attribute.String("update.type", u.Type()),
		),
	)
	defer span.End()

	ing := &Ingestion{}

	if from := u.EffectiveUser(); from != nil {
		user, err := s.Repo.UpsertUser(ctx, s.DB, &domain.User{
			UserID:       from.ID,
			IsBot:        from.IsBot,
			FirstName:    from.FirstName,
			LastName:     from.LastName,
			Username:     from.Username,
			LanguageCode: from.LanguageCode,
		})
		if err != nil {
			return nil, err
		}
		ing.User = user
	}

	wireMsg := u.EffectiveMessage()
	if wireMsg != nil {
		chat, err := s.Repo.UpsertChat(ctx, s.DB, bot.ID, &domain.Chat{
			ChatID:   wireMsg.Chat.ID,
			Type:     wireMsg.Chat.Type,
			Title:    wireMsg.Chat.Title,
			Username: wireMsg.Chat.Username,
		})
		if err != nil {
			return nil, err
		}
		ing.Chat = chat

		if u.CallbackQuery != nil {
			// The bound message is the bot's own prompt; reference the
			// existing outbound row rather than re-ingesting it inbound.
			m, err := s.Repo.GetMessageByPlatformID(ctx, s.DB, chat.ID, wireMsg.MessageID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			ing.Message = m
		} else {
			m, err := s.ingestInbound(ctx, chat, ing.User, wireMsg)
			if err != nil {
				return nil, err
			}
			ing.Message = m
		}
	}

	rec := &domain.Update{
		BotID:    bot.ID,
		UpdateID: u.UpdateID,
		Type:     u.Type(),
		Payload:  updatePayload(u),
	}
	if ing.Message != nil {
		rec.MessageID = &ing.Message.ID
	}
	if cb := u.CallbackQuery; cb != nil {
		rec.CallbackQueryID = cb.ID
		rec.CallbackData = cb.Data
	}
	rec, err := s.Repo.CreateUpdate(ctx, s.DB, rec)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateUpdate
		}
		return nil, err
	}
	ing.Record = rec
	return ing, nil
}

// ingestInbound upserts the inbound message row for a message-ish update.
func (s *UpdateService) ingestInbound(ctx context.Context, chat *domain.Chat, user *domain.User, wire *telegram.Message) (*domain.Message, error) {
	m := &domain.Message{
		ChatID:    chat.ID,
		MessageID: wire.MessageID,
		Direction: domain.DirectionIn,
		Date:      time.Unix(wire.Date, 0).UTC(),
		Text:      wire.Text,
	}
	if user != nil {
		m.FromUserID = &user.ID
	}
	if len(wire.Entities) > 0 {
		m.Entities = toJSONMap(map[string]any{"entities": wire.Entities})
	}
	if reply := wire.ReplyToMessage; reply != nil {
		if prev, err := s.Repo.GetMessageByPlatformID(ctx, s.DB, chat.ID, reply.MessageID); err == nil {
			m.ReplyToMessageID = &prev.ID
		}
	}
	return s.Repo.UpsertMessage(ctx, s.DB, m)
}

// updatePayload preserves the full wire update on the row for audit.
func updatePayload(u *telegram.Update) domain.JSONMap {
	return toJSONMap(u)
}

// toJSONMap converts any JSON-marshalable value to a JSONMap through one
// encode/decode round trip.
func toJSONMap(v any) domain.JSONMap {
	b, err := json.Marshal(v)
	if err != nil {
		return domain.JSONMap{}
	}
	var m domain.JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.JSONMap{}
	}
	return m
}
