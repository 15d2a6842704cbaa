package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS weather_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	city TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT '',
	temperature REAL NOT NULL,
	feels_like REAL NOT NULL,
	humidity INTEGER NOT NULL,
	pressure INTEGER,
	description TEXT NOT NULL DEFAULT '',
	icon TEXT NOT NULL DEFAULT '',
	wind_speed REAL NOT NULL DEFAULT 0,
	wind_direction INTEGER,
	visibility INTEGER,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	queried_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_weather_queries_queried_at ON weather_queries(queried_at);
CREATE INDEX IF NOT EXISTS idx_weather_queries_city ON weather_queries(city);
`

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the history database at path and applies the
// schema. database/sql serializes writers, which is all the coordination the
// single-writer recorder needs.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// sqlite tolerates a single writer; cap the pool so inserts and the
	// prune job never contend for write locks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert implements Store.Insert.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_queries (
			city, country, temperature, feels_like, humidity, pressure,
			description, icon, wind_speed, wind_direction, visibility,
			ip_address, user_agent, queried_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.City, rec.Country, rec.Temperature, rec.FeelsLike, rec.Humidity, rec.Pressure,
		rec.Description, rec.Icon, rec.WindSpeed, rec.WindDirection, rec.Visibility,
		rec.IPAddress, rec.UserAgent, rec.QueriedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// List implements Store.List, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, city, country, temperature, feels_like, humidity, pressure,
			description, icon, wind_speed, wind_direction, visibility,
			ip_address, user_agent, queried_at
		FROM weather_queries
		ORDER BY queried_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var queriedAt string
		if err := rows.Scan(
			&rec.ID, &rec.City, &rec.Country, &rec.Temperature, &rec.FeelsLike,
			&rec.Humidity, &rec.Pressure, &rec.Description, &rec.Icon,
			&rec.WindSpeed, &rec.WindDirection, &rec.Visibility,
			&rec.IPAddress, &rec.UserAgent, &queriedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, queriedAt)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", queriedAt, err)
		}
		rec.QueriedAt = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune implements Store.Prune: deletes everything except the newest keep
// rows and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM weather_queries
		WHERE id NOT IN (
			SELECT id FROM weather_queries
			ORDER BY queried_at DESC, id DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
