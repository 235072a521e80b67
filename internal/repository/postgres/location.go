package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"courier/internal/domain"
)

// LocationRepository is a PostgreSQL implementation of repository.LocationRepository.
type LocationRepository struct {
	q Querier
}

// NewLocationRepository creates a new PostgreSQL location history repository.
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{q: db}
}

// Append adds one history row.
func (r *LocationRepository) Append(ctx context.Context, record *domain.LocationRecord) error {
	query := `
		INSERT INTO location_history (id, driver_id, order_ids, lat, lng, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		record.ID,
		record.DriverID,
		pq.Array(record.OrderIDs),
		record.Lat,
		record.Lng,
		record.ReceivedAt,
	)
	return err
}

// ListByOrder returns the newest rows mentioning orderID, newest first.
func (r *LocationRepository) ListByOrder(ctx context.Context, orderID string, limit int) ([]*domain.LocationRecord, error) {
	query := `
		SELECT id, driver_id, order_ids, lat, lng, received_at
		FROM location_history
		WHERE $1 = ANY(order_ids)
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := r.q.QueryContext(ctx, query, orderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.LocationRecord
	for rows.Next() {
		var rec domain.LocationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.DriverID,
			pq.Array(&rec.OrderIDs),
			&rec.Lat,
			&rec.Lng,
			&rec.ReceivedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
