// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
)

// UpsertUser inserts a user row keyed by the platform user id, or refreshes
// the profile columns of the existing row. Profile data follows whatever the
// latest update carried.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	var existing domain.User
	err := db.WithContext(ctx).Where("user_id = ?", u.UserID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.WithContext(ctx).Create(u).Error; err != nil {
			return nil, err
		}
		return u, nil
	case err != nil:
		return nil, err
	}
	existing.IsBot = u.IsBot
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Username = u.Username
	existing.LanguageCode = u.LanguageCode
	if err := db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetUserByPlatformID fetches a user by the platform-assigned id.
func GetUserByPlatformID(ctx context.Context, db *gorm.DB, userID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
