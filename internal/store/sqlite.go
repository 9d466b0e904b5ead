// Package store persists normalized earthquakes in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS earthquakes (
	earthquake_id           TEXT PRIMARY KEY,
	provider                TEXT NOT NULL DEFAULT '',
	title                   TEXT NOT NULL DEFAULT '',
	date                    TEXT NOT NULL DEFAULT '',
	mag                     REAL NOT NULL DEFAULT 0,
	depth                   REAL NOT NULL DEFAULT 0,
	lon                     REAL NOT NULL DEFAULT 0,
	lat                     REAL NOT NULL DEFAULT 0,
	recorded_at             INTEGER NOT NULL,
	closest_city_name       TEXT,
	closest_city_code       INTEGER,
	closest_city_distance   REAL,
	closest_city_population INTEGER,
	epicenter_name          TEXT,
	place_name              TEXT NOT NULL DEFAULT '',
	airports_json           TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_earthquakes_recent ON earthquakes (recorded_at DESC, earthquake_id);
`

const upsertSQL = `
INSERT INTO earthquakes (
	earthquake_id, provider, title, date, mag, depth, lon, lat, recorded_at,
	closest_city_name, closest_city_code, closest_city_distance, closest_city_population,
	epicenter_name, place_name, airports_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(earthquake_id) DO UPDATE SET
	provider                = excluded.provider,
	title                   = excluded.title,
	date                    = excluded.date,
	mag                     = excluded.mag,
	depth                   = excluded.depth,
	lon                     = excluded.lon,
	lat                     = excluded.lat,
	recorded_at             = excluded.recorded_at,
	closest_city_name       = excluded.closest_city_name,
	closest_city_code       = excluded.closest_city_code,
	closest_city_distance   = excluded.closest_city_distance,
	closest_city_population = excluded.closest_city_population,
	epicenter_name          = excluded.epicenter_name,
	place_name              = excluded.place_name,
	airports_json           = excluded.airports_json
`

const selectColumns = `
	earthquake_id, provider, title, date, mag, depth, lon, lat, recorded_at,
	closest_city_name, closest_city_code, closest_city_distance, closest_city_population,
	epicenter_name, place_name, airports_json
`

var errEmptyID = errors.New("empty earthquake_id")

// Store is the SQLite-backed earthquake table.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Open creates the parent directory, opens the database in WAL mode and
// applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure data dir: %w", domain.ErrPersistence, err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", domain.ErrPersistence, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %w", domain.ErrPersistence, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", domain.ErrPersistence, err)
	}

	return &Store{db: db, logger: logger, metrics: metrics}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness reports whether the database is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert inserts or fully replaces each record keyed by ID in one short
// transaction. A record that cannot be written is logged and skipped; the
// others still commit. It returns the number of rows written.
func (s *Store) Upsert(ctx context.Context, quakes []domain.Earthquake) (int, error) {
	if len(quakes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare upsert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	written := 0
	for i := range quakes {
		if err := upsertOne(ctx, stmt, quakes[i]); err != nil {
			s.logger.Warn("skipping record", "earthquake_id", quakes[i].ID, "error", err)
			s.metrics.UpsertErrors.Inc()
			continue
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrPersistence, err)
	}
	s.metrics.RecordsUpserted.Add(float64(written))
	return written, nil
}

func upsertOne(ctx context.Context, stmt *sql.Stmt, eq domain.Earthquake) error {
	if eq.ID == "" {
		return errEmptyID
	}

	airports := eq.Airports
	if airports == nil {
		airports = []domain.Airport{}
	}
	airportsJSON, err := json.Marshal(airports)
	if err != nil {
		return fmt.Errorf("encode airports: %w", err)
	}

	var (
		cityName sql.NullString
		cityCode sql.NullInt64
		cityDist sql.NullFloat64
		cityPop  sql.NullInt64
	)
	if c := eq.NearestCity; c != nil {
		cityName = sql.NullString{String: c.Name, Valid: true}
		cityCode = sql.NullInt64{Int64: int64(c.Code), Valid: true}
		cityDist = sql.NullFloat64{Float64: c.DistanceMeters, Valid: true}
		cityPop = sql.NullInt64{Int64: c.Population, Valid: true}
	}

	var epicenter sql.NullString
	if eq.EpicenterName != nil {
		epicenter = sql.NullString{String: *eq.EpicenterName, Valid: true}
	}

	_, err = stmt.ExecContext(ctx,
		eq.ID, eq.Provider, eq.Title, eq.OccurredAt,
		eq.Magnitude, eq.DepthKm, eq.Longitude, eq.Latitude, eq.RecordedAtEpoch,
		cityName, cityCode, cityDist, cityPop,
		epicenter, eq.PlaceName, string(airportsJSON),
	)
	return err
}

// FetchRecent returns up to limit records, newest recorded_at first, ties
// broken by ID ascending. Rows that fail to decode are logged and skipped.
func (s *Store) FetchRecent(ctx context.Context, limit int) ([]domain.Earthquake, error) {
	if limit <= 0 {
		return []domain.Earthquake{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM earthquakes ORDER BY recorded_at DESC, earthquake_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]domain.Earthquake, 0, min(limit, 256))
	for rows.Next() {
		eq, err := scanEarthquake(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable row", "error", err)
			continue
		}
		out = append(out, eq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate recent: %w", domain.ErrPersistence, err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM earthquakes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrPersistence, err)
	}
	s.metrics.StoredRecords.Set(float64(n))
	return n, nil
}

func scanEarthquake(rows *sql.Rows) (domain.Earthquake, error) {
	var (
		eq           domain.Earthquake
		cityName     sql.NullString
		cityCode     sql.NullInt64
		cityDist     sql.NullFloat64
		cityPop      sql.NullInt64
		epicenter    sql.NullString
		airportsJSON string
	)
	if err := rows.Scan(
		&eq.ID, &eq.Provider, &eq.Title, &eq.OccurredAt,
		&eq.Magnitude, &eq.DepthKm, &eq.Longitude, &eq.Latitude, &eq.RecordedAtEpoch,
		&cityName, &cityCode, &cityDist, &cityPop,
		&epicenter, &eq.PlaceName, &airportsJSON,
	); err != nil {
		return domain.Earthquake{}, err
	}

	if cityName.Valid {
		eq.NearestCity = &domain.City{
			Name:           cityName.String,
			Code:           int(cityCode.Int64),
			DistanceMeters: cityDist.Float64,
			Population:     cityPop.Int64,
		}
	}
	if epicenter.Valid {
		name := epicenter.String
		eq.EpicenterName = &name
	}

	eq.Airports = []domain.Airport{}
	if airportsJSON != "" {
		if err := json.Unmarshal([]byte(airportsJSON), &eq.Airports); err != nil {
			return domain.Earthquake{}, fmt.Errorf("%w: airports for %s: %w", domain.ErrParse, eq.ID, err)
		}
		if eq.Airports == nil {
			eq.Airports = []domain.Airport{}
		}
	}
	return eq, nil
}
