package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/airwatch/airwatch/internal/airquality"
)

const alertColumns = `
	id, pollutant, value, level, message, is_active,
	latitude, longitude, created_at, resolved_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ApplyTransitions runs the batch in one transaction. Each pollutant is
// guarded by a transaction-scoped advisory lock taken in batch order.
func (r *PostgresRepository) ApplyTransitions(ctx context.Context, batch []Transition) (*ApplyResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin alert batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := &ApplyResult{}
	for _, t := range batch {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "alert:"+string(t.Pollutant)); err != nil {
			return nil, fmt.Errorf("lock pollutant %s: %w", t.Pollutant, err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE alerts
			SET is_active = FALSE, resolved_at = $2
			WHERE pollutant = $1 AND is_active
		`, string(t.Pollutant), t.At)
		if err != nil {
			return nil, fmt.Errorf("resolve %s alerts: %w", t.Pollutant, err)
		}
		out.Resolved += int(tag.RowsAffected())

		if t.Create == nil {
			continue
		}

		a := *t.Create
		a.Active = true
		_, err = tx.Exec(ctx, `
			INSERT INTO alerts (`+alertColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, a.ID, string(a.Pollutant), a.Value, string(a.Level), a.Message, a.Active,
			a.Lat, a.Lon, a.CreatedAt, a.ResolvedAt)
		if err != nil {
			return nil, fmt.Errorf("insert %s alert: %w", t.Pollutant, err)
		}
		out.Created = append(out.Created, &a)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit alert batch: %w", err)
	}
	return out, nil
}

// ActiveFor returns the active alert for a pollutant, or nil.
func (r *PostgresRepository) ActiveFor(ctx context.Context, pollutant airquality.Pollutant) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE pollutant = $1 AND is_active`

	a, err := scanAlert(r.pool.QueryRow(ctx, query, string(pollutant)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// Active returns every active alert, newest first.
func (r *PostgresRepository) Active(ctx context.Context) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE is_active ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// History returns alerts matching the filter, newest first.
func (r *PostgresRepository) History(ctx context.Context, filter HistoryFilter) ([]*Alert, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.list(ctx, query, args...)
}

// All returns every stored alert.
func (r *PostgresRepository) All(ctx context.Context) ([]*Alert, error) {
	return r.list(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC`)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Alert, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*Alert, error) {
	var (
		a         Alert
		pollutant string
		level     string
	)
	err := row.Scan(
		&a.ID,
		&pollutant,
		&a.Value,
		&level,
		&a.Message,
		&a.Active,
		&a.Lat,
		&a.Lon,
		&a.CreatedAt,
		&a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Pollutant = airquality.Pollutant(pollutant)
	a.Level = Level(level)
	return &a, nil
}
