package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artur/peaktube/internal/database/models"
)

// LinkRepository persists minted direct links
type LinkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new LinkRepository
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a new link. Links are never updated afterwards.
func (r *LinkRepository) Create(ctx context.Context, link *models.DirectLink) error {
	query := `
		INSERT INTO direct_links (id, token, source_url, direct_url, title, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.Token,
		link.SourceURL,
		link.DirectURL,
		link.Title,
		link.CreatedAt.UnixNano(),
		link.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create direct link: %w", err)
	}
	return nil
}

// GetByToken returns the link with the given token, or (nil, nil).
func (r *LinkRepository) GetByToken(ctx context.Context, token string) (*models.DirectLink, error) {
	query := `
		SELECT id, token, source_url, direct_url, title, created_at, expires_at
		FROM direct_links
		WHERE token = ?
	`
	link, err := scanLink(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get direct link: %w", err)
	}
	return link, nil
}

// List returns all stored links ordered by expiry.
func (r *LinkRepository) List(ctx context.Context) ([]*models.DirectLink, error) {
	query := `
		SELECT id, token, source_url, direct_url, title, created_at, expires_at
		FROM direct_links
		ORDER BY expires_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct links: %w", err)
	}
	defer rows.Close()

	var links []*models.DirectLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan direct link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// DeleteExpired removes every link whose expiry is strictly before now.
func (r *LinkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM direct_links WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.DirectLink, error) {
	link := &models.DirectLink{}
	var title sql.NullString
	var createdAt, expiresAt int64
	if err := row.Scan(
		&link.ID,
		&link.Token,
		&link.SourceURL,
		&link.DirectURL,
		&title,
		&createdAt,
		&expiresAt,
	); err != nil {
		return nil, err
	}
	link.Title = title.String
	link.CreatedAt = time.Unix(0, createdAt)
	link.ExpiresAt = time.Unix(0, expiresAt)
	return link, nil
}
