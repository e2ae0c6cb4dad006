// Package services – form resumption
//
// This file implements the resumption walk: given a webhook delivery and the
// chat it belongs to, find the unfinished form the input should be fed into.
//
// Binding is message-anchored, not chat-anchored. A form is found by walking
// outbound messages: the prompt that owns the form carries a direct form
// pointer ("root" message); follow-up prompts carry a form_root_pk entry in
// their extra map pointing back at the root. Free-text replies resolve from
// the most recent outbound message that precedes them by date; callback
// queries resolve
// from the exact message their button was attached to, which keeps presses
// on stale keyboards bound to the right form.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// FormLookupRepo defines the repository contract required by FormResolver.
type FormLookupRepo interface {
	// PreviousOutboundMessage returns the chat's most recent outbound message
	// dated strictly before the given instant.
	PreviousOutboundMessage(ctx context.Context, db *gorm.DB, chatID uint, before time.Time) (*domain.Message, error)

	// GetMessage fetches a message by primary key.
	GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error)

	// GetMessageByPlatformID fetches a message by its platform identity.
	GetMessageByPlatformID(ctx context.Context, db *gorm.DB, chatID uint, messageID int64) (*domain.Message, error)

	// GetFormState fetches a form state by primary key.
	GetFormState(ctx context.Context, db *gorm.DB, id uint) (*domain.FormState, error)
}

// FormResolver locates the active form of a conversation.
type FormResolver struct {
	// DB is the GORM handle used for lookups.
	DB *gorm.DB
	// Repo is the lookup repository used by this resolver.
	Repo FormLookupRepo
}

// NewFormResolver constructs a FormResolver.
func NewFormResolver(db *gorm.DB, r FormLookupRepo) *FormResolver {
	return &FormResolver{DB: db, Repo: r}
}

// ActiveForm returns the unfinished form state the update should resume,
// together with its root prompt message. ErrNoActiveForm means the input
// belongs to ordinary handlers: no anchor message, no form pointer on it, a
// dangling pointer, or a form that already finished.
func (r *FormResolver) ActiveForm(ctx context.Context, chat *domain.Chat, u *telegram.Update) (*domain.FormState, *domain.Message, error) {
	anchor, err := r.anchorMessage(ctx, chat, u)
	if err != nil {
		return nil, nil, err
	}

	root, err := r.rootMessage(ctx, anchor)
	if err != nil {
		return nil, nil, err
	}

	fs, err := r.Repo.GetFormState(ctx, r.DB, *root.FormStateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNoActiveForm
		}
		return nil, nil, err
	}
	if fs.IsFinished {
		return nil, nil, ErrNoActiveForm
	}
	return fs, root, nil
}

// anchorMessage picks the outbound message the walk starts from.
func (r *FormResolver) anchorMessage(ctx context.Context, chat *domain.Chat, u *telegram.Update) (*domain.Message, error) {
	if cb := u.CallbackQuery; cb != nil && cb.Message != nil {
		m, err := r.Repo.GetMessageByPlatformID(ctx, r.DB, chat.ID, cb.Message.MessageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoActiveForm
			}
			return nil, err
		}
		return m, nil
	}

	// Free text binds to the prompt that preceded it, not to whatever prompt
	// is newest: a prompt delivered after the user typed must not capture
	// their reply.
	var before time.Time
	if u.Message != nil && u.Message.Date > 0 {
		before = time.Unix(u.Message.Date, 0).UTC()
	}
	m, err := r.Repo.PreviousOutboundMessage(ctx, r.DB, chat.ID, before)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveForm
		}
		return nil, err
	}
	return m, nil
}

// rootMessage follows the anchor's pointers to the root prompt: either the
// anchor itself carries the form pointer, or its extra map names the root's
// primary key.
func (r *FormResolver) rootMessage(ctx context.Context, anchor *domain.Message) (*domain.Message, error) {
	if anchor.FormStateID != nil {
		return anchor, nil
	}
	pk, ok := formRootPK(anchor.Extra)
	if !ok {
		return nil, ErrNoActiveForm
	}
	root, err := r.Repo.GetMessage(ctx, r.DB, pk)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveForm
		}
		return nil, err
	}
	if root.FormStateID == nil {
		return nil, ErrNoActiveForm
	}
	return root, nil
}

// formRootPK extracts the root message primary key from a message extra map.
// JSON numbers arrive as float64.
func formRootPK(extra domain.JSONMap) (uint, bool) {
	v, ok := extra["form_root_pk"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n <= 0 {
			return 0, false
		}
		return uint(n), true
	case int:
		if n <= 0 {
			return 0, false
		}
		return uint(n), true
	default:
		return 0, false
	}
}
