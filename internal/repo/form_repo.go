// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the FormState
// and FieldState models.
//
// Error semantics:
//   - When a form state is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Saves are last-writer-wins: SaveFormState overwrites whatever row state
//     is current without comparing versions. The Version column only counts
//     saves for diagnostics.
//
// Functions:
//
//   - CreateFormState(ctx, db, fs) -> error
//     Inserts a new form state row.
//
//   - SaveFormState(ctx, db, fs) -> error
//     Overwrites an existing row and increments its save counter.
//
//   - GetFormState(ctx, db, id) -> *domain.FormState, error
//     Fetches a form state by primary key, or ErrNotFound.
//
//   - UpsertFieldState(ctx, db, formStateID, name, value, valid) -> error
//     Inserts or updates the per-field row keyed by (form_state_id, name).
//
//   - ListFieldStates(ctx, db, formStateID) -> []domain.FieldState, error
//     Returns the per-field rows of a form, ordered by name.
//
//   - CountFormStates / ListFormStatesPage
//     Pagination pair for the operational API.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
)

// CreateFormState inserts a new form state row.
func CreateFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error {
	return db.WithContext(ctx).Create(fs).Error
}

// SaveFormState overwrites an existing form state row and bumps its save
// counter. Concurrent savers silently clobber each other; the counter makes
// the clobbering visible in diagnostics, nothing more.
func SaveFormState(ctx context.Context, db *gorm.DB, fs *domain.FormState) error {
	fs.Version++
	res := db.WithContext(ctx).
		Model(&domain.FormState{}).
		Where("id = ?", fs.ID).
		Updates(map[string]any{
			"kind":           fs.Kind,
			"current_field":  fs.CurrentField,
			"previous_field": fs.PreviousField,
			"context":        fs.Context,
			"is_finished":    fs.IsFinished,
			"handler":        fs.Handler,
			"version":        fs.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetFormState fetches a form state by primary key, or ErrNotFound.
func GetFormState(ctx context.Context, db *gorm.DB, id uint) (*domain.FormState, error) {
	var fs domain.FormState
	if err := db.WithContext(ctx).Where("id = ?", id).First(&fs).Error; err != nil {
		return nil, err
	}
	return &fs, nil
}

// UpsertFieldState inserts or updates the per-field row keyed by
// (form_state_id, name). Revisited fields (graph cycles) update in place
// rather than accumulating history.
func UpsertFieldState(ctx context.Context, db *gorm.DB, formStateID uint, name, value string, valid bool) error {
	var existing domain.FieldState
	err := db.WithContext(ctx).
		Where("form_state_id = ? AND name = ?", formStateID, name).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		fs := domain.FieldState{
			FormStateID: formStateID,
			Name:        name,
			Value:       value,
			IsValid:     valid,
		}
		if err := db.WithContext(ctx).Create(&fs).Error; err != nil {
			// A concurrent insert of the same (form, name) pair loses the
			// race; fall through to the update path semantics by reporting
			// the violation to the caller.
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	case err != nil:
		return err
	}
	existing.Value = value
	existing.IsValid = valid
	return db.WithContext(ctx).Save(&existing).Error
}

// ListFieldStates returns the per-field rows of a form, ordered by name.
func ListFieldStates(ctx context.Context, db *gorm.DB, formStateID uint) ([]domain.FieldState, error) {
	var out []domain.FieldState
	err := db.WithContext(ctx).
		Where("form_state_id = ?", formStateID).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// CountFormStates returns the total number of form state rows, optionally
// filtered to unfinished ones.
func CountFormStates(ctx context.Context, db *gorm.DB, activeOnly bool) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.FormState{})
	if activeOnly {
		q = q.Where("is_finished = ?", false)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListFormStatesPage returns a paginated slice of form states, newest first,
// optionally filtered to unfinished ones.
func ListFormStatesPage(ctx context.Context, db *gorm.DB, activeOnly bool, offset, limit int) ([]domain.FormState, error) {
	q := db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_finished = ?", false)
	}
	var out []domain.FormState
	err := q.Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
