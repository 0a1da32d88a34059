package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fancify-backend/internal/models"
)

type TransformRepo struct {
	pool *pgxpool.Pool
}

func NewTransformRepo(pool *pgxpool.Pool) *TransformRepo {
	return &TransformRepo{pool: pool}
}

// Record implements session.Recorder.
func (r *TransformRepo) Record(ctx context.Context, t *models.TransformRecord) error {
	t.ID = uuid.New()
	query := `INSERT INTO transform_log (id, session_id, rating, input, output, failed, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		t.ID, t.SessionID, t.Rating, t.Input, t.Output, t.Failed, t.ErrorMessage, t.DurationMs,
	).Scan(&t.CreatedAt)
}

func (r *TransformRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.TransformRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT id, session_id, rating, input, output, failed, error_message, duration_ms, created_at
		FROM transform_log WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.TransformRecord
	for rows.Next() {
		t := &models.TransformRecord{}
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.Rating, &t.Input, &t.Output,
			&t.Failed, &t.ErrorMessage, &t.DurationMs, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, t)
	}
	return records, rows.Err()
}
