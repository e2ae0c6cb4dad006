// Package services defines the business logic for webhook ingestion, update
// dispatching, and conversational form persistence. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"

	"github.com/londkevich/go-chatbot/internal/forms"
)

var (
	// ErrBotNotFound indicates that no configured bot matches the webhook
	// route slug.
	ErrBotNotFound = errors.New("bot not found")

	// ErrChatNotFound indicates that the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNoActiveForm indicates that the resumption walk found no unfinished
	// form bound to the conversation. The dispatcher treats it as "route to
	// ordinary handlers", not as a failure.
	ErrNoActiveForm = errors.New("no active form")

	// ErrDuplicateUpdate indicates a webhook redelivery of an update_id that
	// has already been recorded and handled.
	ErrDuplicateUpdate = errors.New("duplicate update")

	// ErrUnknownFormKind is returned when a persisted form references a kind
	// that is no longer registered. Aliases the forms package sentinel so
	// callers can check either.
	ErrUnknownFormKind = forms.ErrUnknownKind
)
