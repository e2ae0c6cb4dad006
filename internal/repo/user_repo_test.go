package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/londkevich/go-chatbot/internal/domain"
)

func TestUpsertUser_InsertThenRefresh(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := UpsertUser(ctx, db, &domain.User{UserID: 7, FirstName: "Ada", Username: "ada"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	second, err := UpsertUser(ctx, db, &domain.User{UserID: 7, FirstName: "Ada", LastName: "Lovelace", Username: "ada_l", LanguageCode: "en"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("refresh created a new row: %d != %d", second.ID, first.ID)
	}
	if second.LastName != "Lovelace" || second.Username != "ada_l" || second.LanguageCode != "en" {
		t.Fatalf("profile not refreshed: %+v", second)
	}

	var total int64
	if err := db.Model(&domain.User{}).Count(&total).Error; err != nil || total != 1 {
		t.Fatalf("user rows = %d, err=%v", total, err)
	}
}

func TestGetUserByPlatformID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetUserByPlatformID(ctx, db, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}

	seeded, err := UpsertUser(ctx, db, &domain.User{UserID: 7, FirstName: "Ada"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := GetUserByPlatformID(ctx, db, 7)
	if err != nil || got.ID != seeded.ID {
		t.Fatalf("GetUserByPlatformID: %+v err=%v", got, err)
	}
}
