package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/artur/peaktube/internal/database/models"
)

// DeliveryRepository handles delivery history persistence
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new DeliveryRepository
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// RecordDelivery records a completed request
func (r *DeliveryRepository) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	query := `
		INSERT INTO deliveries
		(user_id, resource_id, rendition, quality, kind, title, file_size_bytes, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.UserID,
		d.ResourceID,
		d.Rendition,
		d.Quality,
		d.Kind,
		d.Title,
		d.FileSizeBytes,
		d.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	return nil
}

// GetUserDeliveryCount returns total deliveries for a user
func (r *DeliveryRepository) GetUserDeliveryCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM deliveries WHERE user_id = ?`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

// CountByKind returns how many deliveries were files and how many were links.
func (r *DeliveryRepository) CountByKind(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM deliveries GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan delivery count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// PopularResource represents a resource with delivery count
type PopularResource struct {
	ResourceID    string
	Title         string
	DeliveryCount int64
}

// GetPopularResources returns most delivered resources (top N)
func (r *DeliveryRepository) GetPopularResources(ctx context.Context, limit int) ([]PopularResource, error) {
	query := `
		SELECT resource_id, MAX(title), COUNT(*) as delivery_count
		FROM deliveries
		GROUP BY resource_id
		ORDER BY delivery_count DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular resources: %w", err)
	}
	defer rows.Close()

	var resources []PopularResource
	for rows.Next() {
		var res PopularResource
		var title sql.NullString
		if err := rows.Scan(&res.ResourceID, &title, &res.DeliveryCount); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		res.Title = title.String
		resources = append(resources, res)
	}

	return resources, rows.Err()
}
