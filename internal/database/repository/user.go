package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/peaktube/internal/database/models"
)

const userColumns = `id, telegram_user_id, username, first_name, last_name, language_code, created_at, updated_at`

// UserRepository stores Telegram profiles of everyone who talked to the bot.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram refreshes the stored profile and returns the row as saved.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, tgUser *tgbotapi.User) (*models.User, error) {
	if tgUser == nil {
		return nil, errors.New("telegram user is nil")
	}

	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (telegram_user_id, username, first_name, last_name, language_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			updated_at = excluded.updated_at
		RETURNING `+userColumns,
		tgUser.ID, tgUser.UserName, tgUser.FirstName, tgUser.LastName, tgUser.LanguageCode, now, now,
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", tgUser.ID, err)
	}
	return user, nil
}

// GetByTelegramID returns (nil, nil) for an unknown user.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramUserID int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_user_id = ?`, telegramUserID)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", telegramUserID, err)
	}
	return user, nil
}

func (r *UserRepository) GetTotalUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var username, firstName, lastName, languageCode sql.NullString

	if err := row.Scan(
		&user.ID,
		&user.TelegramUserID,
		&username,
		&firstName,
		&lastName,
		&languageCode,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.LanguageCode = languageCode.String
	return user, nil
}
