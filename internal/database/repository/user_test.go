package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/artur/peaktube/internal/database"
	"github.com/artur/peaktube/internal/database/repository"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	// Every pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	dbWrapper := &database.DB{DB: db}
	if err := dbWrapper.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return db
}

func TestUserRepository_UpsertFromTelegram(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewUserRepository(db)

	tgUser := &tgbotapi.User{
		ID:           12345,
		FirstName:    "Test",
		LastName:     "User",
		UserName:     "testuser",
		LanguageCode: "en",
	}

	user1, err := repo.UpsertFromTelegram(ctx, tgUser)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	if user1 == nil {
		t.Fatal("Expected user to be returned")
	}
	if user1.TelegramUserID != 12345 {
		t.Errorf("Expected telegram_user_id 12345, got %d", user1.TelegramUserID)
	}

	tgUser.FirstName = "Updated"
	user2, err := repo.UpsertFromTelegram(ctx, tgUser)
	if err != nil {
		t.Fatalf("Failed to update user: %v", err)
	}
	if user2.ID != user1.ID {
		t.Errorf("User ID should remain same, got %d vs %d", user2.ID, user1.ID)
	}
	if user2.DisplayName() != "Updated" {
		t.Errorf("Expected display name 'Updated', got %s", user2.DisplayName())
	}
}

func TestUserRepository_UpsertFromTelegram_NilUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := repository.NewUserRepository(db)

	if _, err := repo.UpsertFromTelegram(context.Background(), nil); err == nil {
		t.Error("Expected error for nil user")
	}
}

func TestUserRepository_GetByTelegramID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	repo := repository.NewUserRepository(db)

	user, err := repo.GetByTelegramID(ctx, 99999)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("Expected nil for non-existent user")
	}

	if _, err := repo.UpsertFromTelegram(ctx, &tgbotapi.User{ID: 12345, UserName: "only_username"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	user, err = repo.GetByTelegramID(ctx, 12345)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user == nil || user.TelegramUserID != 12345 {
		t.Fatalf("Failed to retrieve correct user")
	}
	if user.DisplayName() != "only_username" {
		t.Errorf("Expected username fallback, got %q", user.DisplayName())
	}

	count, err := repo.GetTotalUsers(ctx)
	if err != nil {
		t.Fatalf("Failed to count users: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 user, got %d", count)
	}
}
