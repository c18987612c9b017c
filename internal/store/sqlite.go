// File: internal/store/sqlite.go
// Package store persists the recently played tracks in SQLite.
// License: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/momentics/beatbridge/message"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultRetention bounds the number of rows kept on disk.
const DefaultRetention = 100

// Store implements router.HistoryStore on top of SQLite.
type Store struct {
	db        *sql.DB
	retention int
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	if path != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db, retention: DefaultRetention}, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS track_history (
		track_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album_art TEXT,
		duration REAL NOT NULL DEFAULT 0,
		is_liked INTEGER NOT NULL DEFAULT 0,
		played_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_track_history_played_at ON track_history(played_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SetRetention changes how many rows survive pruning.
func (s *Store) SetRetention(n int) {
	if n > 0 {
		s.retention = n
	}
}

// SaveTrack upserts t as played at the given time and prunes old rows.
func (s *Store) SaveTrack(ctx context.Context, t message.Track, at time.Time) error {
	query := `
		INSERT INTO track_history (track_id, title, artist, album_art, duration, is_liked, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album_art = excluded.album_art,
			duration = excluded.duration,
			is_liked = excluded.is_liked,
			played_at = excluded.played_at
	`
	var albumArt sql.NullString
	if t.AlbumArt != "" {
		albumArt = sql.NullString{String: t.AlbumArt, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Artist, albumArt, t.Duration, t.IsLiked, at.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save track: %w", err)
	}

	prune := `
		DELETE FROM track_history WHERE track_id NOT IN (
			SELECT track_id FROM track_history ORDER BY played_at DESC LIMIT ?
		)
	`
	if _, err := s.db.ExecContext(ctx, prune, s.retention); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

// LoadHistory returns up to limit tracks, most recently played first.
func (s *Store) LoadHistory(ctx context.Context, limit int) ([]message.Track, error) {
	query := `
		SELECT track_id, title, artist, album_art, duration, is_liked
		FROM track_history
		ORDER BY played_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var tracks []message.Track
	for rows.Next() {
		var (
			t        message.Track
			albumArt sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &albumArt, &t.Duration, &t.IsLiked); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		t.AlbumArt = albumArt.String
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return tracks, nil
}

// Count returns the number of persisted tracks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM track_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
