// Package forms implements the multi-turn conversation engine: Fields
// connected into a directed graph, a Form tracking one running conversation
// across independent webhook deliveries, and a versioned snapshot format for
// persistence-based resumption.
//
// The engine is storage- and transport-agnostic: a Form talks to the outside
// world only through its Messenger (prompt delivery) and Saver (durable
// persistence) collaborators, bound by the persistence bridge in
// internal/services.
//
// Persistence ordering is persist-first: every turn saves the form state
// before attempting the outbound send, so a crashed send leaves a durably
// resumable row.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/londkevich/go-chatbot/internal/telegram"
)

// Engine state errors.
var (
	// ErrNotStarted is returned when input arrives before Start.
	ErrNotStarted = errors.New("forms: form not started")
	// ErrFinished is returned when input arrives after completion; the
	// caller must re-route the event to ordinary handlers.
	ErrFinished = errors.New("forms: form already finished")
	// ErrNoFields is returned when a form is declared without fields.
	ErrNoFields = errors.New("forms: form has no fields")
)

// Messenger delivers prompts to the chat that owns the conversation.
// SendPrompt produces a new outbound message; EditPrompt rewrites the most
// recent outbound prompt in place.
type Messenger interface {
	SendPrompt(ctx context.Context, text string, keyboard *telegram.InlineKeyboardMarkup) error
	EditPrompt(ctx context.Context, text string, keyboard *telegram.InlineKeyboardMarkup) error
}

// Saver persists the form after every turn.
type Saver interface {
	SaveForm(ctx context.Context, f *Form) error
}

// FinishFunc runs exactly once when the field graph has no next field. This
// is the place handler authors put domain logic (writing records, sending a
// confirmation).
type FinishFunc func(ctx context.Context, f *Form) error

// edge is one directed connection in the field graph. Targets are arena
// indices, never object references, so cycles and self-loops carry no
// ownership hazards. dst == endIndex marks an explicit terminal edge.
type edge struct {
	src    int
	dst    int
	cond   Condition
	prompt PromptType
}

// endIndex is the pseudo-target of an explicit terminal edge.
const endIndex = -1

// Form is one running conversation instance: an arena of Fields, an edge
// list, a cursor, and the accumulated cleaned data.
//
// Data only ever gains entries for fields that validated successfully; a
// failed attempt never reaches it. Because the graph may contain cycles a
// field can be revisited arbitrarily often, in which case its entry is
// simply overwritten.
type Form struct {
	kind   string
	fields []*Field
	index  map[string]int
	edges  []edge

	current  int
	previous int
	finished bool

	// Data holds the cleaned values keyed by field name plus any extra keys
	// a handler chooses to stash.
	Data map[string]any

	locale language.Tag
	pr     *message.Printer

	messenger Messenger
	saver     Saver
	onFinish  FinishFunc
	onCancel  FinishFunc

	autoChain bool
	root      int
}

// Option customizes a Form at construction time.
type Option func(*Form)

// WithoutAutoChain disables the default linear chaining of consecutively
// declared fields; the caller wires the graph explicitly with Connect.
func WithoutAutoChain() Option {
	return func(f *Form) { f.autoChain = false }
}

// WithLocale sets the language used to render validation messages.
func WithLocale(tag language.Tag) Option {
	return func(f *Form) { f.locale = tag }
}

// WithRoot overrides the default root (the first declared field).
func WithRoot(name string) Option {
	return func(f *Form) {
		if i, ok := f.index[name]; ok {
			f.root = i
		}
	}
}

// WithOnFinish sets the terminal callback.
func WithOnFinish(fn FinishFunc) Option {
	return func(f *Form) { f.onFinish = fn }
}

// WithOnCancel sets the cancellation callback.
func WithOnCancel(fn FinishFunc) Option {
	return func(f *Form) { f.onCancel = fn }
}

// New builds a Form of the given kind from an ordered field declaration.
// Declaration order determines the default root and, unless disabled,
// consecutive fields are auto-chained with unconditional NewMessage edges.
func New(kind string, specs []FieldSpec, opts ...Option) (*Form, error) {
	if len(specs) == 0 {
		return nil, ErrNoFields
	}
	f := &Form{
		kind:      kind,
		index:     make(map[string]int, len(specs)),
		current:   -1,
		previous:  -1,
		Data:      make(map[string]any),
		locale:    language.English,
		autoChain: true,
	}
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("forms: field %d of kind %q has no name", i, kind)
		}
		if _, dup := f.index[spec.Name]; dup {
			return nil, fmt.Errorf("forms: duplicate field %q in kind %q", spec.Name, kind)
		}
		f.index[spec.Name] = i
		f.fields = append(f.fields, newField(spec))
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.autoChain {
		for i := 0; i+1 < len(f.fields); i++ {
			f.edges = append(f.edges, edge{src: i, dst: i + 1, prompt: NewMessage})
		}
	}
	return f, nil
}

// Bind attaches the delivery and persistence collaborators. Must be called
// before Start or Input.
func (f *Form) Bind(m Messenger, s Saver) {
	f.messenger = m
	f.saver = s
}

// Kind returns the registry key the form was declared under.
func (f *Form) Kind() string { return f.kind }

// Finished reports whether the form reached its terminal state.
func (f *Form) Finished() bool { return f.finished }

// CurrentField returns the field the cursor points at, or nil before start.
func (f *Form) CurrentField() *Field {
	if f.current < 0 || f.current >= len(f.fields) {
		return nil
	}
	return f.fields[f.current]
}

// PreviousField returns the last field visited before the current one.
func (f *Form) PreviousField() *Field {
	if f.previous < 0 || f.previous >= len(f.fields) {
		return nil
	}
	return f.fields[f.previous]
}

// Field returns the named field, or nil when the form has none by that name.
func (f *Form) Field(name string) *Field {
	if i, ok := f.index[name]; ok {
		return f.fields[i]
	}
	return nil
}

// FieldNames returns the field names in declaration order.
func (f *Form) FieldNames() []string {
	names := make([]string, len(f.fields))
	for i, fl := range f.fields {
		names[i] = fl.name
	}
	return names
}

// Int returns the cleaned value of name as an int. Values restored from a
// JSON snapshot arrive as float64 and are converted back.
func (f *Form) Int(name string) (int, bool) {
	switch v := f.Data[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// String returns the cleaned value of name as a string.
func (f *Form) String(name string) (string, bool) {
	s, ok := f.Data[name].(string)
	return s, ok
}

func (f *Form) printer() *message.Printer {
	if f.pr == nil {
		f.pr = message.NewPrinter(f.locale)
	}
	return f.pr
}

// Connect appends a directed edge from src to dst. Edges are evaluated in
// insertion order; the first whose condition matches (nil always matches)
// wins. Edges may loop back to an earlier or the same field.
func (f *Form) Connect(src, dst string, cond Condition, prompt PromptType) error {
	si, ok := f.index[src]
	if !ok {
		return fmt.Errorf("forms: connect: unknown field %q", src)
	}
	di, ok := f.index[dst]
	if !ok {
		return fmt.Errorf("forms: connect: unknown field %q", dst)
	}
	if prompt == "" {
		prompt = NewMessage
	}
	f.edges = append(f.edges, edge{src: si, dst: di, cond: cond, prompt: prompt})
	return nil
}

// ConnectEnd appends an explicit terminal edge: when its condition matches,
// the form completes even if later edges would have matched.
func (f *Form) ConnectEnd(src string, cond Condition) error {
	si, ok := f.index[src]
	if !ok {
		return fmt.Errorf("forms: connect: unknown field %q", src)
	}
	f.edges = append(f.edges, edge{src: si, dst: endIndex, cond: cond})
	return nil
}

// nextField resolves the first matching outgoing edge of the current field.
// The boolean reports whether an advance target exists; a matched terminal
// edge or no match at all both report false.
func (f *Form) nextField(value string) (int, PromptType, bool) {
	for _, e := range f.edges {
		if e.src != f.current {
			continue
		}
		if e.cond != nil && !e.cond(value, f) {
			continue
		}
		if e.dst == endIndex {
			return 0, "", false
		}
		return e.dst, e.prompt, true
	}
	return 0, "", false
}

// Start moves the cursor to the root field, persists the form, and sends the
// root prompt. Transport errors from the send propagate after the form has
// been durably saved.
func (f *Form) Start(ctx context.Context) error {
	if len(f.fields) == 0 {
		return ErrNoFields
	}
	f.current = f.root
	if err := f.save(ctx); err != nil {
		return err
	}
	return f.sendCurrentPrompt(ctx)
}

// Input feeds one inbound value into the current field and advances the
// conversation: on success the next field's prompt goes out (or the form
// completes and OnFinish runs); on validation failure the same field
// re-prompts carrying its error text. State is persisted in every path,
// before any outbound send, so an errored-out retry attempt is durably
// resumable.
func (f *Form) Input(ctx context.Context, value string) error {
	if f.finished {
		return ErrFinished
	}
	cur := f.CurrentField()
	if cur == nil {
		return ErrNotStarted
	}

	cur.Input(value, f)
	if !cur.valid {
		if err := f.save(ctx); err != nil {
			return err
		}
		return f.sendCurrentPrompt(ctx)
	}

	f.Data[cur.name] = cur.cleaned

	next, prompt, ok := f.nextField(value)
	if !ok {
		f.finished = true
		if err := f.save(ctx); err != nil {
			return err
		}
		if f.onFinish != nil {
			return f.onFinish(ctx, f)
		}
		return nil
	}

	f.previous = f.current
	f.current = next
	f.fields[next].promptType = prompt
	if err := f.save(ctx); err != nil {
		return err
	}
	return f.sendCurrentPrompt(ctx)
}

// Cancel terminates the form early, persists the terminal state, and runs
// the cancellation callback when one is set.
func (f *Form) Cancel(ctx context.Context) error {
	if f.finished {
		return ErrFinished
	}
	f.finished = true
	if err := f.save(ctx); err != nil {
		return err
	}
	if f.onCancel != nil {
		return f.onCancel(ctx, f)
	}
	return nil
}

func (f *Form) save(ctx context.Context) error {
	if f.saver == nil {
		return nil
	}
	return f.saver.SaveForm(ctx, f)
}

// sendCurrentPrompt renders and delivers the current field's prompt,
// prepending accumulated validation errors and honoring the field's prompt
// type.
func (f *Form) sendCurrentPrompt(ctx context.Context) error {
	cur := f.CurrentField()
	if cur == nil || f.messenger == nil {
		return nil
	}
	text := cur.PromptText(f)
	if len(cur.errs) > 0 {
		text = strings.Join(cur.errs, "\n") + "\n\n" + text
	}
	kb := cur.KeyboardMarkup(f)
	if cur.promptType == UpdateMessage {
		return f.messenger.EditPrompt(ctx, text, kb)
	}
	return f.messenger.SendPrompt(ctx, text, kb)
}
