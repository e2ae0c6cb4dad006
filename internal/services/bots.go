// Package services – bot reconciliation
//
// This file syncs configured bot accounts into the database at startup and
// registers their webhooks. Webhook routes are keyed by a token slug (a hash
// of the token) so the raw token never appears in URLs or access logs.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// BotConfig is one configured bot account.
type BotConfig struct {
	Name  string
	Token string
}

// ManagedBot pairs a persisted bot row with its API client.
type ManagedBot struct {
	Bot    *domain.Bot
	Client *telegram.Client
}

// BotRepo defines the repository contract required by bot reconciliation.
type BotRepo interface {
	UpsertBot(ctx context.Context, db *gorm.DB, name, token, slug string) (*domain.Bot, error)
	GetBotBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Bot, error)
}

// TokenSlug derives the webhook route key from a bot token.
func TokenSlug(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// SyncBots reconciles the configured bots into the database and returns them
// keyed by token slug. apiBaseURL overrides the Bot API endpoint when
// non-empty (local test servers).
func SyncBots(ctx context.Context, db *gorm.DB, r BotRepo, configs []BotConfig, apiBaseURL string) (map[string]*ManagedBot, error) {
	out := make(map[string]*ManagedBot, len(configs))
	for _, cfg := range configs {
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, fmt.Errorf("bot %q has an empty token", cfg.Name)
		}
		slug := TokenSlug(cfg.Token)
		bot, err := r.UpsertBot(ctx, db, cfg.Name, cfg.Token, slug)
		if err != nil {
			return nil, fmt.Errorf("sync bot %q: %w", cfg.Name, err)
		}
		client := telegram.NewClient(cfg.Token)
		if apiBaseURL != "" {
			client.BaseURL = apiBaseURL
		}
		out[slug] = &ManagedBot{Bot: bot, Client: client}
	}
	return out, nil
}

// RegisterWebhooks points every managed bot's webhook at
// <domain>/webhook/<slug>. secretToken, when non-empty, is echoed back by
// the platform on every delivery and verified by the webhook middleware.
func RegisterWebhooks(ctx context.Context, bots map[string]*ManagedBot, domainURL, secretToken string) error {
	base := strings.TrimRight(domainURL, "/")
	for slug, mb := range bots {
		url := base + "/webhook/" + slug
		if err := mb.Client.SetWebhook(ctx, url, secretToken, []string{"message", "edited_message", "callback_query"}); err != nil {
			return fmt.Errorf("register webhook for %q: %w", mb.Bot.Name, err)
		}
	}
	return nil
}
