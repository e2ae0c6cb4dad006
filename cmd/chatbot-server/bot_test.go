package main

import (
	"context"
	"testing"

	"golang.org/x/text/language"

	"github.com/londkevich/go-chatbot/internal/config"
	"github.com/londkevich/go-chatbot/internal/forms"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

type promptLog struct {
	sent  []string
	edits []string
}

func (p *promptLog) SendPrompt(ctx context.Context, text string, kb *telegram.InlineKeyboardMarkup) error {
	p.sent = append(p.sent, text)
	return nil
}

func (p *promptLog) EditPrompt(ctx context.Context, text string, kb *telegram.InlineKeyboardMarkup) error {
	p.edits = append(p.edits, text)
	return nil
}

type nopSaver struct{ saves int }

func (s *nopSaver) SaveForm(ctx context.Context, f *forms.Form) error {
	s.saves++
	return nil
}

func TestSetupBot_RegistersSurveyKind(t *testing.T) {
	formRegistry, handlers := setupBot(config.Config{Locale: "en"})
	if handlers == nil {
		t.Fatalf("nil handler registry")
	}
	f, err := formRegistry.New(kindSurvey)
	if err != nil {
		t.Fatalf("New(%q): %v", kindSurvey, err)
	}
	want := []string{"name", "age", "newsletter"}
	got := f.FieldNames()
	if len(got) != len(want) {
		t.Fatalf("fields = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fields = %v, want %v", got, want)
		}
	}
}

func TestSurveyForm_FullFlow(t *testing.T) {
	ctx := context.Background()
	f, err := newSurveyForm(language.English)
	if err != nil {
		t.Fatalf("newSurveyForm: %v", err)
	}
	msgr := &promptLog{}
	saver := &nopSaver{}
	f.Bind(msgr, saver)

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.CurrentField().Name() != "name" {
		t.Fatalf("root field = %q", f.CurrentField().Name())
	}

	// Too-short name re-prompts the same field.
	if err := f.Input(ctx, "A"); err != nil {
		t.Fatalf("Input short name: %v", err)
	}
	if f.CurrentField().Name() != "name" {
		t.Fatalf("validation failure advanced to %q", f.CurrentField().Name())
	}

	if err := f.Input(ctx, "Ada"); err != nil {
		t.Fatalf("Input name: %v", err)
	}
	if f.CurrentField().Name() != "age" {
		t.Fatalf("after name: %q", f.CurrentField().Name())
	}

	// Non-integer age fails conversion and re-prompts.
	if err := f.Input(ctx, "old"); err != nil {
		t.Fatalf("Input bad age: %v", err)
	}
	if f.CurrentField().Name() != "age" {
		t.Fatalf("bad age advanced to %q", f.CurrentField().Name())
	}

	if err := f.Input(ctx, "30"); err != nil {
		t.Fatalf("Input age: %v", err)
	}
	if f.CurrentField().Name() != "newsletter" {
		t.Fatalf("after age: %q", f.CurrentField().Name())
	}

	// Off-keyboard input loops in place via an edit, not a new message.
	editsBefore := len(msgr.edits)
	if err := f.Input(ctx, "maybe"); err != nil {
		t.Fatalf("Input maybe: %v", err)
	}
	if f.Finished() {
		t.Fatalf("off-keyboard answer finished the form")
	}
	if len(msgr.edits) != editsBefore+1 {
		t.Fatalf("expected in-place edit, sent=%d edits=%d", len(msgr.sent), len(msgr.edits))
	}

	if err := f.Input(ctx, "yes"); err != nil {
		t.Fatalf("Input yes: %v", err)
	}
	if !f.Finished() {
		t.Fatalf("form not finished")
	}

	if name, _ := f.String("name"); name != "Ada" {
		t.Fatalf("name = %q", name)
	}
	if age, _ := f.Int("age"); age != 30 {
		t.Fatalf("age = %d", age)
	}
	if summary, ok := f.Data["summary"].(string); !ok || summary == "" {
		t.Fatalf("summary not stashed: %v", f.Data["summary"])
	}
	if saver.saves == 0 {
		t.Fatalf("form never persisted")
	}
}
