// Package services – Dispatcher
//
// This file implements update routing: one webhook delivery in, exactly one
// claimant out. The order is fixed:
//
//  1. handlers marked SuppressForm whose match succeeds (commands that must
//     interrupt a running conversation, e.g. /cancel),
//  2. the chat's active form, resumed from persistence,
//  3. the remaining handlers in registration order,
//  4. the default handler, when one is set.
//
// Redelivered updates (duplicate update_id) are skipped before any routing.
package services

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/forms"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// HandlerFunc is the body of a handler.
type HandlerFunc func(ctx context.Context, t *Turn) error

// Handler routes a class of updates to a function. A handler matches when
// its Command equals the update's leading bot command, or its Pattern
// matches the update text; a handler with neither matches everything.
type Handler struct {
	// Name identifies the handler on the persisted update row.
	Name string

	// Command matches the leading bot command, e.g. "/start".
	Command string

	// Pattern matches against the update's free text.
	Pattern *regexp.Regexp

	// SuppressForm routes the handler ahead of an active form. Set it on
	// commands that must work mid-conversation.
	SuppressForm bool

	// Fn handles the update.
	Fn HandlerFunc
}

// Matches reports whether the handler claims the turn.
func (h *Handler) Matches(t *Turn) bool {
	if h.Command != "" {
		return t.Command() == h.Command
	}
	if h.Pattern != nil {
		return h.Pattern.MatchString(t.Text())
	}
	return true
}

// HandlerRegistry holds the routing table. Handlers are consulted in
// registration order; the first match wins.
type HandlerRegistry struct {
	handlers []*Handler
	fallback *Handler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{}
}

// Register appends a handler to the routing table.
func (r *HandlerRegistry) Register(h *Handler) {
	r.handlers = append(r.handlers, h)
}

// SetDefault sets the handler that claims turns nothing else wants.
func (r *HandlerRegistry) SetDefault(h *Handler) {
	r.fallback = h
}

func (r *HandlerRegistry) match(t *Turn, suppressing bool) *Handler {
	for _, h := range r.handlers {
		if h.SuppressForm != suppressing {
			continue
		}
		if h.Matches(t) {
			return h
		}
	}
	return nil
}

// Turn carries everything a handler needs to act on one update.
type Turn struct {
	// Bot is the account the update was delivered to.
	Bot *domain.Bot
	// Chat is the persisted conversation row, nil for chatless updates.
	Chat *domain.Chat
	// User is the persisted sender row, nil for anonymous posts.
	User *domain.User
	// Message is the persisted message row the update is about.
	Message *domain.Message
	// Record is the persisted update row.
	Record *domain.Update
	// Update is the raw wire update.
	Update *telegram.Update

	dispatcher *Dispatcher
	client     TelegramAPI
	handler    string
}

// Command returns the update's leading bot command, or "".
func (t *Turn) Command() string {
	if m := t.Update.EffectiveMessage(); m != nil {
		return m.Command()
	}
	return ""
}

// Text returns the update's free-text input (callback data for button
// presses).
func (t *Turn) Text() string { return t.Update.Text() }

// Reply sends a plain text message into the turn's chat and records it.
func (t *Turn) Reply(ctx context.Context, text string) error {
	if t.Chat == nil {
		return ErrChatNotFound
	}
	sent, err := t.client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: t.Chat.ChatID,
		Text:   text,
	})
	if err != nil {
		return err
	}
	bridge := t.formBridge()
	_, err = bridge.recordOutbound(ctx, sent)
	return err
}

// StartForm builds a fresh form of the given kind, binds it to this chat,
// and starts it. The first prompt goes out as part of the call.
func (t *Turn) StartForm(ctx context.Context, kind string) (*forms.Form, error) {
	if t.Chat == nil {
		return nil, ErrChatNotFound
	}
	f, err := t.dispatcher.Forms.New(kind)
	if err != nil {
		return nil, err
	}
	bridge := t.formBridge()
	f.Bind(bridge, bridge)
	if err := f.Start(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// ActiveForm loads the conversation's unfinished form, or ErrNoActiveForm.
// The returned form is bound and ready for Input or Cancel.
func (t *Turn) ActiveForm(ctx context.Context) (*forms.Form, error) {
	if t.Chat == nil {
		return nil, ErrNoActiveForm
	}
	fs, root, err := t.dispatcher.Resolver.ActiveForm(ctx, t.Chat, t.Update)
	if err != nil {
		return nil, err
	}
	bridge := t.formBridge()
	bridge.State = fs
	bridge.Root = root
	return bridge.Load(ctx)
}

func (t *Turn) formBridge() *FormRepository {
	return &FormRepository{
		DB:       t.dispatcher.DB,
		Repo:     t.dispatcher.Store,
		Client:   t.client,
		Registry: t.dispatcher.Forms,
		Chat:     t.Chat,
		Handler:  t.handler,
	}
}

// AuditRepo records routing outcomes on persisted update rows.
type AuditRepo interface {
	SetUpdateHandler(ctx context.Context, db *gorm.DB, id uint, handler string) error
}

// Dispatcher routes ingested updates to forms and handlers.
type Dispatcher struct {
	// DB is the GORM handle shared with the repositories.
	DB *gorm.DB
	// Updates ingests deliveries before routing.
	Updates *UpdateService
	// Resolver locates active forms.
	Resolver *FormResolver
	// Store is the form persistence repository handed to bridges.
	Store FormStoreRepo
	// Audit stamps the claiming handler on update rows.
	Audit AuditRepo
	// Handlers is the routing table.
	Handlers *HandlerRegistry
	// Forms resolves form kinds.
	Forms *forms.Registry
	// Log is the dispatcher's structured logger.
	Log zerolog.Logger
}

// Dispatch processes one raw webhook body for bot, delivered through client.
// Duplicate deliveries return nil after a log line; handler errors propagate
// to the caller (the queue worker, which logs and drops).
func (d *Dispatcher) Dispatch(ctx context.Context, bot *domain.Bot, client TelegramAPI, raw []byte) error {
	started := time.Now()

	var wire telegram.Update
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("bot.name", bot.Name),
			attribute.Int64("update.id", wire.UpdateID),
			attribute.String("update.type", wire.Type()),
		),
	)
	defer span.End()

	ing, err := d.Updates.SaveUpdate(ctx, bot, &wire)
	if err != nil {
		if err == ErrDuplicateUpdate {
			d.Log.Info().
				Str("bot", bot.Name).
				Int64("update_id", wire.UpdateID).
				Msg("duplicate update skipped")
			return nil
		}
		return err
	}

	t := &Turn{
		Bot:        bot,
		Chat:       ing.Chat,
		User:       ing.User,
		Message:    ing.Message,
		Record:     ing.Record,
		Update:     &wire,
		dispatcher: d,
		client:     client,
	}

	handler, err := d.route(ctx, t)
	if err != nil {
		return err
	}

	if handler != "" && ing.Record != nil {
		if err := d.Audit.SetUpdateHandler(ctx, d.DB, ing.Record.ID, handler); err != nil {
			d.Log.Warn().Err(err).Msg("record handler on update row")
		}
	}
	d.Log.Info().
		Str("bot", bot.Name).
		Int64("update_id", wire.UpdateID).
		Str("type", wire.Type()).
		Str("handler", handler).
		Dur("took", time.Since(started)).
		Msg("update dispatched")
	return nil
}

// route picks the claimant and runs it, returning the claimant's name.
func (d *Dispatcher) route(ctx context.Context, t *Turn) (string, error) {
	if h := d.Handlers.match(t, true); h != nil {
		t.handler = h.Name
		return h.Name, h.Fn(ctx, t)
	}

	if t.Chat != nil {
		fs, root, err := d.Resolver.ActiveForm(ctx, t.Chat, t.Update)
		switch {
		case err == nil:
			t.handler = fs.Handler
			bridge := t.formBridge()
			bridge.State = fs
			bridge.Root = root
			f, err := bridge.Load(ctx)
			if err != nil {
				return fs.Handler, err
			}
			return fs.Handler, f.Input(ctx, t.Text())
		case err == ErrNoActiveForm:
			// fall through to handlers
		default:
			return "", err
		}
	}

	if h := d.Handlers.match(t, false); h != nil {
		t.handler = h.Name
		return h.Name, h.Fn(ctx, t)
	}
	if d.Handlers.fallback != nil {
		h := d.Handlers.fallback
		t.handler = h.Name
		return h.Name, h.Fn(ctx, t)
	}
	return "", nil
}
