package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/entitlement"
)

// ErrCorruptRecord is returned when a stored quota row cannot be trusted.
var ErrCorruptRecord = errors.New("corrupt quota record")

// QuotaRepository persists per-user quota counters
type QuotaRepository struct {
	db *sql.DB
}

// NewQuotaRepository creates a new QuotaRepository
func NewQuotaRepository(db *sql.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// Load returns the stored record for a user, or (nil, nil) if there is none.
func (r *QuotaRepository) Load(ctx context.Context, userID int64) (*models.QuotaRecord, error) {
	query := `
		SELECT user_id, plan, downloads_today, downloads_total, last_reset_at, ai_assist_used, ai_assist_window_start
		FROM quota_records
		WHERE user_id = ?
	`

	rec := &models.QuotaRecord{}
	var lastReset, aiWindow int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.Plan,
		&rec.DownloadsToday,
		&rec.DownloadsTotal,
		&lastReset,
		&rec.AiAssistUsed,
		&aiWindow,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: user %d: %v", ErrCorruptRecord, userID, err)
	}

	if _, ok := entitlement.ParsePlan(rec.Plan); !ok {
		return nil, fmt.Errorf("%w: user %d: unknown plan %q", ErrCorruptRecord, userID, rec.Plan)
	}
	if rec.DownloadsToday < 0 || rec.DownloadsTotal < 0 || rec.AiAssistUsed < 0 {
		return nil, fmt.Errorf("%w: user %d: negative counter", ErrCorruptRecord, userID)
	}

	rec.LastResetAt = time.Unix(0, lastReset)
	rec.AiAssistWindowStart = time.Unix(0, aiWindow)
	return rec, nil
}

// Save inserts or replaces the record for rec.UserID
func (r *QuotaRepository) Save(ctx context.Context, rec *models.QuotaRecord) error {
	query := `
		INSERT INTO quota_records (user_id, plan, downloads_today, downloads_total, last_reset_at, ai_assist_used, ai_assist_window_start)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan = excluded.plan,
			downloads_today = excluded.downloads_today,
			downloads_total = excluded.downloads_total,
			last_reset_at = excluded.last_reset_at,
			ai_assist_used = excluded.ai_assist_used,
			ai_assist_window_start = excluded.ai_assist_window_start
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID,
		rec.Plan,
		rec.DownloadsToday,
		rec.DownloadsTotal,
		rec.LastResetAt.UnixNano(),
		rec.AiAssistUsed,
		rec.AiAssistWindowStart.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save quota record: %w", err)
	}
	return nil
}
