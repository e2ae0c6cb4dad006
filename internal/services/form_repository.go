// Package services – FormRepository
//
// This file implements the persistence bridge between the transport-agnostic
// forms engine and the database plus the Bot API: a FormRepository is bound
// to one conversation turn and serves as both the form's Saver (snapshot and
// per-field rows) and its Messenger (prompt delivery plus outbound message
// bookkeeping and form-pointer stamping).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/forms"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// TelegramAPI is the subset of the Bot API client the service layer sends
// through. Narrowed to an interface so tests can fake deliveries.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, params telegram.EditMessageTextParams) (*telegram.Message, error)
}

// FormStoreRepo defines the repository contract required by FormRepository.
type FormStoreRepo interface {
	CreateFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error
	SaveFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error
	UpsertFieldState(ctx context.Context, db *gorm.DB, formStateID uint, name, value string, valid bool) error
	UpsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error)
	SetMessageFormState(ctx context.Context, db *gorm.DB, messageID, formStateID uint) error
	SetMessageExtra(ctx context.Context, db *gorm.DB, messageID uint, extra domain.JSONMap) error
	LatestOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint) (*domain.Message, error)
}

// FormRepository binds a forms.Form to one chat: it persists snapshots as
// FormState/FieldState rows and delivers prompts through the Bot API,
// recording every outbound prompt as a message row stamped with the form
// pointers the resumption walk follows.
type FormRepository struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the storage repository used by this bridge.
	Repo FormStoreRepo
	// Client delivers prompts for the owning bot.
	Client TelegramAPI
	// Registry resolves persisted kinds back to form graphs.
	Registry *forms.Registry

	// Chat is the conversation the form runs in.
	Chat *domain.Chat
	// Handler is stamped on every save so the row records which handler
	// started the conversation.
	Handler string

	// State is the persistent form row; nil until the first save creates it.
	State *domain.FormState
	// Root is the prompt message that owns the form; nil until the first
	// prompt goes out.
	Root *domain.Message

	// lastPrompt is the most recent outbound prompt, the target of in-place
	// edits.
	lastPrompt *domain.Message
}

var _ forms.Saver = (*FormRepository)(nil)
var _ forms.Messenger = (*FormRepository)(nil)

// Load rebuilds the form from the bound State row and binds it back to this
// bridge so the next Input persists and delivers through the same chat.
func (r *FormRepository) Load(ctx context.Context) (*forms.Form, error) {
	if r.State == nil {
		return nil, ErrNoActiveForm
	}
	snap, err := snapshotFromMap(r.State.Context)
	if err != nil {
		return nil, err
	}
	f, err := r.Registry.Restore(snap)
	if err != nil {
		return nil, err
	}
	f.Bind(r, r)
	return f, nil
}

// SaveForm persists the form's snapshot: the whole-form row plus one
// update-or-create row per visited field. Implements forms.Saver.
func (r *FormRepository) SaveForm(ctx context.Context, f *forms.Form) error {
	snap := f.Snapshot()
	ctxMap, err := snapshotToMap(snap)
	if err != nil {
		return err
	}

	if r.State == nil {
		r.State = &domain.FormState{Kind: snap.Kind, Handler: r.Handler}
	}
	r.State.Kind = snap.Kind
	r.State.CurrentField = snap.CurrentField
	r.State.PreviousField = snap.PreviousField
	r.State.Context = ctxMap
	r.State.IsFinished = snap.Finished
	if r.State.Handler == "" {
		r.State.Handler = r.Handler
	}

	if r.State.ID == 0 {
		if err := r.Repo.CreateFormState(ctx, r.DB, r.State); err != nil {
			return err
		}
	} else {
		if err := r.Repo.SaveFormState(ctx, r.DB, r.State); err != nil {
			return err
		}
	}

	for _, fs := range snap.Fields {
		if !fs.Bound {
			continue
		}
		if err := r.Repo.UpsertFieldState(ctx, r.DB, r.State.ID, fs.Name, fs.Value, fs.Valid); err != nil {
			return err
		}
	}
	return nil
}

// SendPrompt delivers text as a new outbound message, records it, and stamps
// the form pointer: the first prompt becomes the root (direct pointer),
// every later prompt points back at the root through its extra map.
// Implements forms.Messenger.
func (r *FormRepository) SendPrompt(ctx context.Context, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	sent, err := r.Client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      r.Chat.ChatID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		return err
	}

	row, err := r.recordOutbound(ctx, sent)
	if err != nil {
		return err
	}

	if r.State == nil {
		// Save-before-send should have created the row; without it there is
		// nothing to stamp.
		r.lastPrompt = row
		return nil
	}
	if r.Root == nil {
		if err := r.Repo.SetMessageFormState(ctx, r.DB, row.ID, r.State.ID); err != nil {
			return err
		}
		fsID := r.State.ID
		row.FormStateID = &fsID
		r.Root = row
	} else {
		extra := row.Extra
		if extra == nil {
			extra = domain.JSONMap{}
		}
		extra["form_root_pk"] = float64(r.Root.ID)
		if err := r.Repo.SetMessageExtra(ctx, r.DB, row.ID, extra); err != nil {
			return err
		}
		row.Extra = extra
	}
	r.lastPrompt = row
	return nil
}

// EditPrompt rewrites the most recent outbound prompt in place. Implements
// forms.Messenger.
func (r *FormRepository) EditPrompt(ctx context.Context, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	target := r.lastPrompt
	if target == nil {
		m, err := r.Repo.LatestOutboundMessage(ctx, r.DB, r.Chat.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Nothing to edit yet; degrade to a fresh message.
				return r.SendPrompt(ctx, text, keyboard)
			}
			return err
		}
		target = m
	}

	edited, err := r.Client.EditMessageText(ctx, telegram.EditMessageTextParams{
		ChatID:      r.Chat.ChatID,
		MessageID:   target.MessageID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		return err
	}
	if edited != nil {
		row, err := r.recordOutbound(ctx, edited)
		if err != nil {
			return err
		}
		r.lastPrompt = row
	}
	return nil
}

// recordOutbound upserts the platform's normalized outbound message as a row.
func (r *FormRepository) recordOutbound(ctx context.Context, sent *telegram.Message) (*domain.Message, error) {
	m := &domain.Message{
		ChatID:    r.Chat.ID,
		MessageID: sent.MessageID,
		Direction: domain.DirectionOut,
		Date:      time.Unix(sent.Date, 0).UTC(),
		Text:      sent.Text,
	}
	if sent.ReplyMarkup != nil {
		m.ReplyMarkup = toJSONMap(sent.ReplyMarkup)
	}
	return r.Repo.UpsertMessage(ctx, r.DB, m)
}

// snapshotToMap serializes a snapshot into the JSON column shape.
func snapshotToMap(s forms.Snapshot) (domain.JSONMap, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m domain.JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// snapshotFromMap rebuilds a snapshot from the JSON column shape.
func snapshotFromMap(m domain.JSONMap) (forms.Snapshot, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return forms.Snapshot{}, err
	}
	var s forms.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return forms.Snapshot{}, err
	}
	return s, nil
}
