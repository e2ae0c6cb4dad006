package services

import (
	"context"
	"errors"
	"testing"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

func messageUpdate(updateID, messageID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: messageID,
			From:      &telegram.User{ID: 500, FirstName: "Ada", Username: "ada"},
			Date:      1700000100,
			Chat:      telegram.Chat{ID: 42, Type: "private"},
			Text:      text,
		},
	}
}

func TestSaveUpdateIngestsMessage(t *testing.T) {
	store := newFakeStore()
	svc := NewUpdateService(nil, store)
	bot := &domain.Bot{Name: "b"}
	bot.ID = 1

	ing, err := svc.SaveUpdate(context.Background(), bot, messageUpdate(1, 10, "hello"))
	if err != nil {
		t.Fatalf("SaveUpdate: %v", err)
	}
	if ing.User == nil || ing.User.UserID != 500 {
		t.Fatalf("user not ingested: %+v", ing.User)
	}
	if ing.Chat == nil || ing.Chat.ChatID != 42 {
		t.Fatalf("chat not ingested: %+v", ing.Chat)
	}
	if ing.Message == nil || ing.Message.Text != "hello" || ing.Message.Direction != domain.DirectionIn {
		t.Fatalf("message not ingested: %+v", ing.Message)
	}
	if ing.Message.FromUserID == nil || *ing.Message.FromUserID != ing.User.ID {
		t.Fatalf("sender not linked")
	}
	if ing.Record == nil || ing.Record.Type != "message" || ing.Record.UpdateID != 1 {
		t.Fatalf("update row wrong: %+v", ing.Record)
	}
	if ing.Record.MessageID == nil || *ing.Record.MessageID != ing.Message.ID {
		t.Fatalf("update row not linked to message")
	}
}

func TestSaveUpdateDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := NewUpdateService(nil, store)
	bot := &domain.Bot{}
	bot.ID = 1

	if _, err := svc.SaveUpdate(context.Background(), bot, messageUpdate(7, 10, "hi")); err != nil {
		t.Fatalf("first SaveUpdate: %v", err)
	}
	_, err := svc.SaveUpdate(context.Background(), bot, messageUpdate(7, 10, "hi"))
	if !errors.Is(err, ErrDuplicateUpdate) {
		t.Fatalf("want ErrDuplicateUpdate, got %v", err)
	}
}

func TestSaveUpdateCallbackReferencesOutboundRow(t *testing.T) {
	store := newFakeStore()
	svc := NewUpdateService(nil, store)
	bot := &domain.Bot{}
	bot.ID = 1

	// Seed the chat and the bot's prompt the button hangs off.
	chat, _ := store.UpsertChat(context.Background(), nil, bot.ID, &domain.Chat{ChatID: 42})
	prompt, _ := store.UpsertMessage(context.Background(), nil, &domain.Message{
		ChatID: chat.ID, MessageID: 77, Direction: domain.DirectionOut, Text: "Pick one",
	})

	u := &telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb1",
			From: telegram.User{ID: 500},
			Message: &telegram.Message{
				MessageID: 77,
				Chat:      telegram.Chat{ID: 42, Type: "private"},
				Text:      "Pick one",
			},
			Data: "cat",
		},
	}
	ing, err := svc.SaveUpdate(context.Background(), bot, u)
	if err != nil {
		t.Fatalf("SaveUpdate: %v", err)
	}
	// The bound prompt is referenced, not re-ingested as inbound.
	if ing.Message == nil || ing.Message.ID != prompt.ID {
		t.Fatalf("callback not bound to outbound row: %+v", ing.Message)
	}
	if ing.Message.Direction != domain.DirectionOut {
		t.Fatalf("outbound row flipped to %q", ing.Message.Direction)
	}
	if ing.Record.CallbackQueryID != "cb1" || ing.Record.CallbackData != "cat" {
		t.Fatalf("callback fields not recorded: %+v", ing.Record)
	}
	if !ing.Record.IsCallback() {
		t.Fatalf("update row not typed as callback")
	}
}

func TestSaveUpdateRedeliveryUpdatesMessageInPlace(t *testing.T) {
	store := newFakeStore()
	svc := NewUpdateService(nil, store)
	bot := &domain.Bot{}
	bot.ID = 1
	ctx := context.Background()

	first, err := svc.SaveUpdate(ctx, bot, messageUpdate(1, 10, "hello"))
	if err != nil {
		t.Fatalf("SaveUpdate: %v", err)
	}
	// An edited_message delivery for the same platform message.
	edit := &telegram.Update{
		UpdateID: 2,
		EditedMessage: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: 500},
			Date:      1700000200,
			Chat:      telegram.Chat{ID: 42, Type: "private"},
			Text:      "hello (edited)",
		},
	}
	second, err := svc.SaveUpdate(ctx, bot, edit)
	if err != nil {
		t.Fatalf("SaveUpdate edit: %v", err)
	}
	if second.Message.ID != first.Message.ID {
		t.Fatalf("edit duplicated the message row")
	}
	if second.Message.Text != "hello (edited)" {
		t.Fatalf("text not refreshed: %q", second.Message.Text)
	}
	if second.Record.Type != "edited_message" {
		t.Fatalf("type = %q", second.Record.Type)
	}
}
