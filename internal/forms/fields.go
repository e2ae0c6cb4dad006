// Package forms – fields.
//
// This file defines the Field unit of the conversation engine: one
// prompt/validate/advance step. Fields carry a prompt (static or computed
// from the answers collected so far), an optional inline keyboard, a
// conversion step producing the cleaned value, and an ordered validator
// chain. A validation failure never escapes the field: it flips the field
// invalid and accumulates error text for the re-prompt.
package forms

import (
	"strconv"

	"github.com/londkevich/go-chatbot/internal/telegram"
)

// PromptType selects how a field's prompt is delivered: as a fresh outbound
// message or as an in-place edit of the previous prompt (on-the-fly inline
// keyboard updates).
type PromptType string

const (
	// NewMessage sends the prompt as a new outbound message. Default.
	NewMessage PromptType = "new_message"
	// UpdateMessage edits the most recent outbound prompt in place.
	UpdateMessage PromptType = "update_message"
)

// Condition guards an outgoing edge. It receives the raw input that
// validated successfully and the owning form, and reports whether the edge
// should be taken. A nil Condition always matches.
type Condition func(value string, f *Form) bool

// Validator checks a raw input value. A non-nil error marks the field
// invalid; the error text is surfaced on the re-prompt.
type Validator func(value string, f *Form) error

// ConvertFunc turns the raw input into the cleaned, typed value stored in
// the form data. A non-nil error marks the field invalid.
type ConvertFunc func(value string, f *Form) (any, error)

// FieldSpec declares one field of a form. Specs are plain data; New builds
// fresh Field instances from them per form, so runtime state never leaks
// across conversations.
type FieldSpec struct {
	// Name uniquely identifies the field within its form and keys the
	// cleaned value in the form data.
	Name string

	// Prompt is the static prompt text. PromptFunc, when set, wins and may
	// derive the text from the answers collected so far.
	Prompt     string
	PromptFunc func(f *Form) string

	// Keyboard attaches selectable options to the prompt. KeyboardFunc,
	// when set, wins.
	Keyboard     [][]telegram.InlineKeyboardButton
	KeyboardFunc func(f *Form) [][]telegram.InlineKeyboardButton

	// Convert produces the cleaned value. Nil keeps the raw string.
	Convert ConvertFunc

	// Validators run in order against the raw input. All failures are
	// collected.
	Validators []Validator

	// ErrorMessage, when non-empty, replaces every collected error text on
	// the re-prompt.
	ErrorMessage string
}

// Field is the runtime instance of a FieldSpec inside one Form.
type Field struct {
	name         string
	prompt       string
	promptFunc   func(f *Form) string
	keyboard     [][]telegram.InlineKeyboardButton
	keyboardFunc func(f *Form) [][]telegram.InlineKeyboardButton
	convert      ConvertFunc
	validators   []Validator
	errorMessage string

	// promptType is stamped by edge traversal before the prompt is sent;
	// the root field keeps the NewMessage default.
	promptType PromptType

	value   string
	cleaned any
	bound   bool
	valid   bool
	errs    []string
}

func newField(spec FieldSpec) *Field {
	return &Field{
		name:         spec.Name,
		prompt:       spec.Prompt,
		promptFunc:   spec.PromptFunc,
		keyboard:     spec.Keyboard,
		keyboardFunc: spec.KeyboardFunc,
		convert:      spec.Convert,
		validators:   spec.Validators,
		errorMessage: spec.ErrorMessage,
		promptType:   NewMessage,
	}
}

// Name returns the field's unique name within its form.
func (fl *Field) Name() string { return fl.name }

// Value returns the last raw input recorded for the field.
func (fl *Field) Value() string { return fl.value }

// Bound reports whether the field has received any input.
func (fl *Field) Bound() bool { return fl.bound }

// Valid reports whether the last input passed conversion and validation.
func (fl *Field) Valid() bool { return fl.valid }

// Errors returns the error texts collected by the last input attempt.
func (fl *Field) Errors() []string { return fl.errs }

// Input records value and runs conversion and the validator chain. It never
// returns an error: failures flip the field invalid and accumulate into the
// error list for the re-prompt.
func (fl *Field) Input(value string, f *Form) {
	fl.value = value
	fl.bound = true
	fl.valid = false
	fl.errs = nil
	fl.cleaned = value

	if fl.convert != nil {
		cleaned, err := fl.convert(value, f)
		if err != nil {
			fl.errs = append(fl.errs, err.Error())
		} else {
			fl.cleaned = cleaned
		}
	}
	for _, v := range fl.validators {
		if err := v(value, f); err != nil {
			fl.errs = append(fl.errs, err.Error())
		}
	}

	if len(fl.errs) == 0 {
		fl.valid = true
		return
	}
	if fl.errorMessage != "" {
		fl.errs = []string{fl.errorMessage}
	}
}

// PromptText renders the prompt, preferring the computed variant.
func (fl *Field) PromptText(f *Form) string {
	if fl.promptFunc != nil {
		return fl.promptFunc(f)
	}
	return fl.prompt
}

// KeyboardMarkup renders the inline keyboard, or nil when the field has
// none.
func (fl *Field) KeyboardMarkup(f *Form) *telegram.InlineKeyboardMarkup {
	kb := fl.keyboard
	if fl.keyboardFunc != nil {
		kb = fl.keyboardFunc(f)
	}
	if len(kb) == 0 {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: kb}
}

//
// Typed field constructors
//

// Text declares a free-text field with no conversion.
func Text(name, prompt string) FieldSpec {
	return FieldSpec{Name: name, Prompt: prompt}
}

// Integer declares a whole-number field. Non-numeric input fails with a
// locale-aware "Enter a whole number." message and the cleaned value is an
// int.
func Integer(name, prompt string) FieldSpec {
	return FieldSpec{
		Name:    name,
		Prompt:  prompt,
		Convert: convertInt,
	}
}

func convertInt(value string, f *Form) (any, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, &validationError{f.printer().Sprintf("Enter a whole number.")}
	}
	return n, nil
}

// Choice declares a field whose prompt carries an inline keyboard built from
// the given rows; the pressed button's callback data arrives as the input.
func Choice(name, prompt string, rows [][]telegram.InlineKeyboardButton) FieldSpec {
	return FieldSpec{Name: name, Prompt: prompt, Keyboard: rows}
}

// validationError is a plain message error so validator text survives
// Error() round-trips unchanged.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

//
// Reusable validators
//

// MinValue validates that numeric input is >= limit. Non-numeric input is
// left to the field's conversion step.
func MinValue(limit int) Validator {
	return func(value string, f *Form) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil
		}
		if n < limit {
			return &validationError{f.printer().Sprintf("Ensure this value is greater than or equal to %d.", limit)}
		}
		return nil
	}
}

// MaxValue validates that numeric input is <= limit.
func MaxValue(limit int) Validator {
	return func(value string, f *Form) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil
		}
		if n > limit {
			return &validationError{f.printer().Sprintf("Ensure this value is less than or equal to %d.", limit)}
		}
		return nil
	}
}

// MinLength validates that input has at least limit characters.
func MinLength(limit int) Validator {
	return func(value string, f *Form) error {
		if len([]rune(value)) < limit {
			return &validationError{f.printer().Sprintf("Ensure this value has at least %d characters.", limit)}
		}
		return nil
	}
}

// MaxLength validates that input has at most limit characters.
func MaxLength(limit int) Validator {
	return func(value string, f *Form) error {
		if len([]rune(value)) > limit {
			return &validationError{f.printer().Sprintf("Ensure this value has at most %d characters.", limit)}
		}
		return nil
	}
}
