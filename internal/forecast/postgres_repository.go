package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/airwatch/airwatch/internal/airquality"
)

const predictionColumns = `
	id, pollutant, predicted_value, hours_ahead, created_at, target_at,
	actual_value, model_version, source
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL prediction repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// InsertBatch stores predictions in one transaction.
func (r *PostgresRepository) InsertBatch(ctx context.Context, predictions []*Prediction) error {
	if len(predictions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range predictions {
		batch.Queue(`
			INSERT INTO predictions (`+predictionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, p.ID, string(p.Pollutant), p.PredictedValue, p.HoursAhead, p.CreatedAt, p.TargetAt,
			p.ActualValue, p.ModelVersion, string(p.Source))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin prediction batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	return tx.Commit(ctx)
}

// UnresolvedBefore returns unresolved predictions targeting before t.
func (r *PostgresRepository) UnresolvedBefore(ctx context.Context, t time.Time) ([]*Prediction, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE actual_value IS NULL AND target_at < $1
		ORDER BY target_at ASC
	`
	return r.list(ctx, query, t)
}

// SetActual records the actual value once.
func (r *PostgresRepository) SetActual(ctx context.Context, id string, actual float64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE predictions SET actual_value = $2
		WHERE id = $1 AND actual_value IS NULL
	`, id, actual)
	if err != nil {
		return fmt.Errorf("set actual: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM predictions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check prediction: %w", err)
	}
	if !exists {
		return ErrPredictionNotFound
	}
	return ErrActualAlreadySet
}

// Resolved returns resolved predictions matching f, latest target first.
func (r *PostgresRepository) Resolved(ctx context.Context, f Filter) ([]*Prediction, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE actual_value IS NOT NULL
		  AND ($1 = '' OR pollutant = $1)
		  AND ($2 = 0 OR hours_ahead = $2)
		ORDER BY target_at DESC
	`
	args := []any{string(f.Pollutant), f.HoursAhead}
	if f.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, f.Limit)
	}
	return r.list(ctx, query, args...)
}

// Upcoming returns the newest prediction per pollutant and lead time whose
// target lies in [from, to].
func (r *PostgresRepository) Upcoming(ctx context.Context, from, to time.Time) ([]*Prediction, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM (
			SELECT DISTINCT ON (pollutant, hours_ahead) *
			FROM predictions
			ORDER BY pollutant, hours_ahead, created_at DESC
		) latest
		WHERE target_at BETWEEN $1 AND $2
		ORDER BY target_at ASC, pollutant ASC
	`
	return r.list(ctx, query, from, to)
}

// InsertModelMetric stores a training run.
func (r *PostgresRepository) InsertModelMetric(ctx context.Context, m *ModelMetric) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO model_metrics (id, model_name, model_type, rmse, mae, r2, trained_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.ModelName, m.ModelType, m.RMSE, m.MAE, m.R2, m.TrainedAt)
	if err != nil {
		return fmt.Errorf("insert model metric: %w", err)
	}
	return nil
}

// ModelMetrics returns the latest training runs, newest first.
func (r *PostgresRepository) ModelMetrics(ctx context.Context, limit int) ([]*ModelMetric, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, model_name, model_type, rmse, mae, r2, trained_at
		FROM model_metrics
		ORDER BY trained_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query model metrics: %w", err)
	}
	defer rows.Close()

	var out []*ModelMetric
	for rows.Next() {
		var m ModelMetric
		if err := rows.Scan(&m.ID, &m.ModelName, &m.ModelType, &m.RMSE, &m.MAE, &m.R2, &m.TrainedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Prediction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []*Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var (
		p         Prediction
		pollutant string
		source    string
	)
	err := row.Scan(
		&p.ID,
		&pollutant,
		&p.PredictedValue,
		&p.HoursAhead,
		&p.CreatedAt,
		&p.TargetAt,
		&p.ActualValue,
		&p.ModelVersion,
		&source,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPredictionNotFound
		}
		return nil, err
	}
	p.Pollutant = airquality.Pollutant(pollutant)
	p.Source = Source(source)
	return &p, nil
}
