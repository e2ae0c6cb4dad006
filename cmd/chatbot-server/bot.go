package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"

	"github.com/londkevich/go-chatbot/internal/config"
	"github.com/londkevich/go-chatbot/internal/forms"
	"github.com/londkevich/go-chatbot/internal/services"
	"github.com/londkevich/go-chatbot/internal/telegram"
)

// kindSurvey is the built-in demo conversation: a short intake form that
// shows off validation retries, a keyboard field edited in place, and
// completion through OnFinish.
const kindSurvey = "survey"

// setupBot declares the form kinds and the handler routing table.
// Applications embedding the framework replace this with their own.
func setupBot(cfg config.Config) (*forms.Registry, *services.HandlerRegistry) {
	locale := language.Make(cfg.Locale)

	formRegistry := forms.NewRegistry()
	formRegistry.Register(kindSurvey, func() (*forms.Form, error) {
		return newSurveyForm(locale)
	})

	handlers := services.NewHandlerRegistry()

	handlers.Register(&services.Handler{
		Name:         "cancel",
		Command:      "/cancel",
		SuppressForm: true,
		Fn: func(ctx context.Context, t *services.Turn) error {
			f, err := t.ActiveForm(ctx)
			if errors.Is(err, services.ErrNoActiveForm) {
				return t.Reply(ctx, "Nothing to cancel.")
			}
			if err != nil {
				return err
			}
			if err := f.Cancel(ctx); err != nil {
				return err
			}
			return t.Reply(ctx, "Okay, cancelled.")
		},
	})

	handlers.Register(&services.Handler{
		Name:    "start",
		Command: "/start",
		Fn: func(ctx context.Context, t *services.Turn) error {
			return t.Reply(ctx, "Hi! Send /survey to begin, /cancel to abort.")
		},
	})

	handlers.Register(&services.Handler{
		Name:    "survey",
		Command: "/survey",
		Fn: func(ctx context.Context, t *services.Turn) error {
			_, err := t.StartForm(ctx, kindSurvey)
			return err
		},
	})

	handlers.SetDefault(&services.Handler{
		Name: "default",
		Fn: func(ctx context.Context, t *services.Turn) error {
			return t.Reply(ctx, "I did not understand that. Try /survey.")
		},
	})

	return formRegistry, handlers
}

// newSurveyForm builds the demo form: name (free text), age (validated
// integer), and a yes/no keyboard whose re-prompts edit the same message.
func newSurveyForm(locale language.Tag) (*forms.Form, error) {
	name := forms.Text("name", "What is your name?")
	name.Validators = []forms.Validator{forms.MinLength(2), forms.MaxLength(100)}

	age := forms.Integer("age", "How old are you?")
	age.Validators = append(age.Validators, forms.MinValue(1), forms.MaxValue(120))

	newsletter := forms.Choice("newsletter", "Subscribe to updates?", [][]telegram.InlineKeyboardButton{
		{
			{Text: "Yes", CallbackData: "yes"},
			{Text: "No", CallbackData: "no"},
		},
	})

	f, err := forms.New(kindSurvey,
		[]forms.FieldSpec{name, age, newsletter},
		forms.WithoutAutoChain(),
		forms.WithLocale(locale),
		forms.WithOnFinish(finishSurvey),
	)
	if err != nil {
		return nil, err
	}

	if err := f.Connect("name", "age", nil, forms.NewMessage); err != nil {
		return nil, err
	}
	if err := f.Connect("age", "newsletter", nil, forms.NewMessage); err != nil {
		return nil, err
	}
	// Unknown answers re-render the keyboard in place; yes/no completes.
	notChoice := func(value string, f *forms.Form) bool {
		return value != "yes" && value != "no"
	}
	if err := f.Connect("newsletter", "newsletter", notChoice, forms.UpdateMessage); err != nil {
		return nil, err
	}
	if err := f.ConnectEnd("newsletter", nil); err != nil {
		return nil, err
	}
	return f, nil
}

func finishSurvey(ctx context.Context, f *forms.Form) error {
	name, _ := f.String("name")
	age, _ := f.Int("age")
	sub, _ := f.String("newsletter")
	f.Data["summary"] = fmt.Sprintf("%s, %d, newsletter=%s", name, age, sub)
	return nil
}
