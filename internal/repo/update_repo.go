// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Update
// model and the duplicate-delivery detection that keeps webhook retries
// from being processed twice.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
)

// ErrDuplicate indicates that a row with the same platform identity already
// exists (a redelivered webhook update).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateUpdate inserts an update row and returns ErrDuplicate when the
// platform update_id has already been recorded.
func CreateUpdate(ctx context.Context, db *gorm.DB, u *domain.Update) (*domain.Update, error) {
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUpdateByPlatformID fetches an update by the platform-assigned update_id.
func GetUpdateByPlatformID(ctx context.Context, db *gorm.DB, updateID int64) (*domain.Update, error) {
	var u domain.Update
	if err := db.WithContext(ctx).Where("update_id = ?", updateID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUpdateHandler records which handler claimed the update.
func SetUpdateHandler(ctx context.Context, db *gorm.DB, id uint, handler string) error {
	res := db.WithContext(ctx).
		Model(&domain.Update{}).
		Where("id = ?", id).
		Update("handler", handler)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUpdates returns the total number of updates recorded for botID.
func CountUpdates(ctx context.Context, db *gorm.DB, botID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Update{}).
		Where("bot_id = ?", botID).
		Count(&total).Error
	return total, err
}

// ListUpdatesPage returns a paginated slice of updates for botID, newest
// first.
func ListUpdatesPage(ctx context.Context, db *gorm.DB, botID uint, offset, limit int) ([]domain.Update, error) {
	var out []domain.Update
	err := db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("update_id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
