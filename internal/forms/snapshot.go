package forms

import (
	"fmt"
)

// SnapshotVersion is the current snapshot schema version. Bump it whenever
// the shape below changes; Restore rejects versions it does not understand.
const SnapshotVersion = 1

// FieldSnapshot captures the runtime state of one field.
type FieldSnapshot struct {
	Name       string     `json:"name"`
	Value      string     `json:"value,omitempty"`
	Bound      bool       `json:"bound,omitempty"`
	Valid      bool       `json:"valid,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
	PromptType PromptType `json:"prompt_type,omitempty"`
}

// Snapshot is the serializable state of a running form: everything needed to
// rebuild the conversation on a later webhook delivery, minus the graph
// itself, which the registry factory reconstructs from code.
type Snapshot struct {
	Version       int             `json:"version"`
	Kind          string          `json:"kind"`
	CurrentField  string          `json:"current_field,omitempty"`
	PreviousField string          `json:"previous_field,omitempty"`
	Finished      bool            `json:"finished,omitempty"`
	Data          map[string]any  `json:"data,omitempty"`
	Fields        []FieldSnapshot `json:"fields,omitempty"`
}

// Snapshot captures the form's current state.
func (f *Form) Snapshot() Snapshot {
	snap := Snapshot{
		Version:  SnapshotVersion,
		Kind:     f.kind,
		Finished: f.finished,
		Data:     f.Data,
	}
	if cur := f.CurrentField(); cur != nil {
		snap.CurrentField = cur.name
	}
	if prev := f.PreviousField(); prev != nil {
		snap.PreviousField = prev.name
	}
	for _, fl := range f.fields {
		if !fl.bound && fl.promptType == NewMessage {
			continue
		}
		snap.Fields = append(snap.Fields, FieldSnapshot{
			Name:       fl.name,
			Value:      fl.value,
			Bound:      fl.bound,
			Valid:      fl.valid,
			Errors:     fl.errs,
			PromptType: fl.promptType,
		})
	}
	return snap
}

// Restore rehydrates the form from a snapshot taken from the same kind's
// graph. Unknown schema versions and fields the current graph no longer
// declares are rejected: resuming against a divergent graph would advance
// the conversation from an undefined position.
func (f *Form) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("forms: unsupported snapshot version %d for kind %q", snap.Version, snap.Kind)
	}
	if snap.Kind != f.kind {
		return fmt.Errorf("forms: snapshot kind %q does not match form kind %q", snap.Kind, f.kind)
	}

	f.current = -1
	f.previous = -1
	if snap.CurrentField != "" {
		i, ok := f.index[snap.CurrentField]
		if !ok {
			return fmt.Errorf("forms: snapshot of kind %q references unknown field %q", snap.Kind, snap.CurrentField)
		}
		f.current = i
	}
	if snap.PreviousField != "" {
		i, ok := f.index[snap.PreviousField]
		if !ok {
			return fmt.Errorf("forms: snapshot of kind %q references unknown field %q", snap.Kind, snap.PreviousField)
		}
		f.previous = i
	}
	f.finished = snap.Finished
	if snap.Data != nil {
		f.Data = snap.Data
	}

	for _, fs := range snap.Fields {
		i, ok := f.index[fs.Name]
		if !ok {
			return fmt.Errorf("forms: snapshot of kind %q references unknown field %q", snap.Kind, fs.Name)
		}
		fl := f.fields[i]
		fl.value = fs.Value
		fl.bound = fs.Bound
		fl.valid = fs.Valid
		fl.errs = fs.Errors
		if fs.PromptType != "" {
			fl.promptType = fs.PromptType
		}
	}
	return nil
}
