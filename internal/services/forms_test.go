package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

func textUpdate(text string) *telegram.Update {
	return textUpdateAt(text, 1000)
}

func textUpdateAt(text string, date int64) *telegram.Update {
	return &telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			Chat:      telegram.Chat{ID: 42},
			Date:      date,
			Text:      text,
		},
	}
}

func seedResolver(t *testing.T) (*fakeStore, *FormResolver, *domain.Chat) {
	t.Helper()
	store := newFakeStore()
	chat, _ := store.UpsertChat(context.Background(), nil, 1, &domain.Chat{ChatID: 42})
	return store, NewFormResolver(nil, store), chat
}

func TestActiveFormDirectPointer(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()

	fs := &domain.FormState{Kind: "survey"}
	_ = store.CreateFormState(ctx, nil, fs)
	root, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, root.ID, fs.ID)

	got, gotRoot, err := resolver.ActiveForm(ctx, chat, textUpdate("Ada"))
	if err != nil {
		t.Fatalf("ActiveForm: %v", err)
	}
	if got.ID != fs.ID || gotRoot.ID != root.ID {
		t.Fatalf("resolved wrong form/root: %v %v", got.ID, gotRoot.ID)
	}
}

func TestActiveFormFollowsRootIndirection(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()

	fs := &domain.FormState{Kind: "survey"}
	_ = store.CreateFormState(ctx, nil, fs)
	root, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, root.ID, fs.ID)
	// A later follow-up prompt points back at the root.
	followup, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 6, Direction: domain.DirectionOut,
		Date: time.Unix(200, 0),
	})
	_ = store.SetMessageExtra(ctx, nil, followup.ID, domain.JSONMap{"form_root_pk": float64(root.ID)})

	got, gotRoot, err := resolver.ActiveForm(ctx, chat, textUpdate("36"))
	if err != nil {
		t.Fatalf("ActiveForm: %v", err)
	}
	if got.ID != fs.ID || gotRoot.ID != root.ID {
		t.Fatalf("indirection not followed: form=%d root=%d", got.ID, gotRoot.ID)
	}
}

func TestActiveFormBindsReplyToPrecedingPrompt(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()

	// Two prompts in one chat. A reply typed between them must resolve to
	// the earlier prompt's form even though a newer prompt exists by the
	// time the delivery is processed.
	oldForm := &domain.FormState{Kind: "old"}
	_ = store.CreateFormState(ctx, nil, oldForm)
	oldRoot, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, oldRoot.ID, oldForm.ID)

	newForm := &domain.FormState{Kind: "new"}
	_ = store.CreateFormState(ctx, nil, newForm)
	newRoot, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 9, Direction: domain.DirectionOut,
		Date: time.Unix(900, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, newRoot.ID, newForm.ID)

	got, _, err := resolver.ActiveForm(ctx, chat, textUpdateAt("Ada", 500))
	if err != nil {
		t.Fatalf("ActiveForm: %v", err)
	}
	if got.ID != oldForm.ID {
		t.Fatalf("reply dated between prompts resolved to form %d, want %d", got.ID, oldForm.ID)
	}

	// A reply dated after both prompts binds to the newest one.
	got, _, err = resolver.ActiveForm(ctx, chat, textUpdateAt("Ada", 1000))
	if err != nil {
		t.Fatalf("ActiveForm: %v", err)
	}
	if got.ID != newForm.ID {
		t.Fatalf("later reply resolved to form %d, want %d", got.ID, newForm.ID)
	}
}

func TestActiveFormCallbackAnchorsToBoundMessage(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()

	// Two forms in one chat: an older one with a keyboard, and a newer one.
	oldForm := &domain.FormState{Kind: "old"}
	_ = store.CreateFormState(ctx, nil, oldForm)
	oldRoot, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, oldRoot.ID, oldForm.ID)

	newForm := &domain.FormState{Kind: "new"}
	_ = store.CreateFormState(ctx, nil, newForm)
	newRoot, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 9, Direction: domain.DirectionOut,
		Date: time.Unix(900, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, newRoot.ID, newForm.ID)

	// A press on the older form's stale keyboard resolves to the older form,
	// not to the chat's most recent prompt.
	press := &telegram.Update{
		UpdateID: 3,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb",
			Message: &telegram.Message{MessageID: 5, Chat: telegram.Chat{ID: 42}},
			Data:    "choice",
		},
	}
	got, _, err := resolver.ActiveForm(ctx, chat, press)
	if err != nil {
		t.Fatalf("ActiveForm: %v", err)
	}
	if got.ID != oldForm.ID {
		t.Fatalf("callback resolved to form %d, want %d", got.ID, oldForm.ID)
	}
}

func TestActiveFormNoOutboundMessages(t *testing.T) {
	_, resolver, chat := seedResolver(t)
	_, _, err := resolver.ActiveForm(context.Background(), chat, textUpdate("hi"))
	if !errors.Is(err, ErrNoActiveForm) {
		t.Fatalf("want ErrNoActiveForm, got %v", err)
	}
}

func TestActiveFormIgnoresPlainOutbound(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()
	// An outbound message with no form pointers (an ordinary reply).
	_, _ = store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	_, _, err := resolver.ActiveForm(ctx, chat, textUpdate("hi"))
	if !errors.Is(err, ErrNoActiveForm) {
		t.Fatalf("want ErrNoActiveForm, got %v", err)
	}
}

func TestActiveFormFinishedForm(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()

	fs := &domain.FormState{Kind: "survey", IsFinished: true}
	_ = store.CreateFormState(ctx, nil, fs)
	root, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	_ = store.SetMessageFormState(ctx, nil, root.ID, fs.ID)

	_, _, err := resolver.ActiveForm(ctx, chat, textUpdate("hi"))
	if !errors.Is(err, ErrNoActiveForm) {
		t.Fatalf("finished form: want ErrNoActiveForm, got %v", err)
	}
}

func TestActiveFormDanglingPointer(t *testing.T) {
	store, resolver, chat := seedResolver(t)
	ctx := context.Background()

	root, _ := store.UpsertMessage(ctx, nil, &domain.Message{
		ChatID: chat.ID, MessageID: 5, Direction: domain.DirectionOut,
		Date: time.Unix(100, 0),
	})
	// Points at a form state that does not exist.
	_ = store.SetMessageFormState(ctx, nil, root.ID, 9999)

	_, _, err := resolver.ActiveForm(ctx, chat, textUpdate("hi"))
	if !errors.Is(err, ErrNoActiveForm) {
		t.Fatalf("dangling pointer: want ErrNoActiveForm, got %v", err)
	}
}
