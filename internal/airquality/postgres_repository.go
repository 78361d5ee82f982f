package airquality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const measurementColumns = `
	id, so2, nh3, pm25,
	temperature, humidity, wind_speed, wind_direction, pressure,
	latitude, longitude, recorded_at, source, aqi
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL measurement repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Insert stores a measurement.
func (r *PostgresRepository) Insert(ctx context.Context, m *Measurement) error {
	query := `
		INSERT INTO measurements (` + measurementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SO2, m.NH3, m.PM25,
		m.Temperature, m.Humidity, m.WindSpeed, m.WindDirection, m.Pressure,
		m.Lat, m.Lon, m.RecordedAt, m.Source, m.AQI,
	)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

// Latest returns the most recently recorded measurement.
func (r *PostgresRepository) Latest(ctx context.Context) (*Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements ORDER BY recorded_at DESC LIMIT 1`

	m, err := scanMeasurement(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoMeasurements
		}
		return nil, err
	}
	return m, nil
}

// Since returns measurements recorded at or after since.
func (r *PostgresRepository) Since(ctx context.Context, since time.Time) ([]*Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements
		WHERE recorded_at >= $1
		ORDER BY recorded_at ASC
	`
	return r.list(ctx, query, since)
}

// Between returns measurements recorded in [from, to].
func (r *PostgresRepository) Between(ctx context.Context, from, to time.Time) ([]*Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements
		WHERE recorded_at BETWEEN $1 AND $2
		ORDER BY recorded_at ASC
	`
	return r.list(ctx, query, from, to)
}

// InBBox returns located measurements inside box recorded at or after since.
func (r *PostgresRepository) InBBox(ctx context.Context, box BBox, since time.Time) ([]*Measurement, error) {
	query := `
		SELECT ` + measurementColumns + `
		FROM measurements
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
		  AND recorded_at >= $5
		ORDER BY recorded_at ASC
	`
	return r.list(ctx, query, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, since)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Measurement, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []*Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMeasurement(row pgx.Row) (*Measurement, error) {
	var m Measurement
	err := row.Scan(
		&m.ID,
		&m.SO2,
		&m.NH3,
		&m.PM25,
		&m.Temperature,
		&m.Humidity,
		&m.WindSpeed,
		&m.WindDirection,
		&m.Pressure,
		&m.Lat,
		&m.Lon,
		&m.RecordedAt,
		&m.Source,
		&m.AQI,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
