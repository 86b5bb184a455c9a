// Package history records every capture job in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/logger"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for unknown IDs
var ErrNotFound = errors.New("capture not found")

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	mode        TEXT NOT NULL,
	region_x    REAL NOT NULL,
	region_y    REAL NOT NULL,
	region_w    REAL NOT NULL,
	region_h    REAL NOT NULL,
	dpr         REAL NOT NULL,
	width       INTEGER NOT NULL DEFAULT 0,
	height      INTEGER NOT NULL DEFAULT 0,
	tiles       INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	format      TEXT NOT NULL DEFAULT '',
	sink        TEXT NOT NULL DEFAULT '',
	filename    TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	success     INTEGER NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS captures_created_at ON captures(created_at DESC);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// Entry is one recorded job
type Entry struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	URL       string        `json:"url,omitempty"`
	Mode      string        `json:"mode"`
	Region    geometry.Rect `json:"region"`
	DPR       float64       `json:"dpr"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Tiles     int           `json:"tiles"`
	Skipped   int           `json:"skipped"`
	Format    string        `json:"format"`
	Sink      string        `json:"sink"`
	Filename  string        `json:"filename,omitempty"`
	Location  string        `json:"location,omitempty"`
	Bytes     int           `json:"bytes"`
	Success   bool          `json:"success"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Store is the capture history database
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and creates) the history database at path
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// one writer; also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}

	logger.WithComponent("history").Debug().Str("path", path).Msg("History database opened")
	return &Store{db: db, path: path}, nil
}

// Path returns the database location
func (s *Store) Path() string {
	return s.path
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or replaces an entry
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("history: entry has no id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO captures (
			id, created_at, url, mode, region_x, region_y, region_w, region_h, dpr,
			width, height, tiles, skipped, format, sink, filename, location, bytes,
			success, error_kind, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UnixMilli(), e.URL, e.Mode,
		e.Region.X, e.Region.Y, e.Region.Width, e.Region.Height, e.DPR,
		e.Width, e.Height, e.Tiles, e.Skipped, e.Format, e.Sink, e.Filename, e.Location, e.Bytes,
		e.Success, e.ErrorKind, e.Error, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, created_at, url, mode, region_x, region_y, region_w, region_h, dpr,
		width, height, tiles, skipped, format, sink, filename, location, bytes,
		success, error_kind, error, duration_ms
	FROM captures`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var created, durationMs int64
	err := row.Scan(
		&e.ID, &created, &e.URL, &e.Mode,
		&e.Region.X, &e.Region.Y, &e.Region.Width, &e.Region.Height, &e.DPR,
		&e.Width, &e.Height, &e.Tiles, &e.Skipped, &e.Format, &e.Sink, &e.Filename, &e.Location, &e.Bytes,
		&e.Success, &e.ErrorKind, &e.Error, &durationMs,
	)
	if err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.UnixMilli(created)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}

// List returns the most recent entries, newest first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("history: get %s: %w", id, err)
	}
	return e, nil
}
