// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history records pipeline runs in a local SQLite database.
//
// Every run gets a row in runs. Progressive runs store each status event in
// step_events as it happens; wave runs store one completed row per step
// result once the run finishes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite run history.
type Store struct {
	db     *sql.DB
	masker Masker
}

// Masker scrubs secrets from text before it is stored.
type Masker interface {
	Mask(s string) string
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path. ":memory:" opens a private
	// in-memory database.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent readers.
	WAL bool

	// Masker, when set, scrubs run errors, event messages and event
	// details before they are written.
	Masker Masker
}

// Open opens or creates the database at cfg.Path and migrates it.
func Open(cfg Config) (*Store, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection also keeps an
	// in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, masker: cfg.Masker}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) mask(text string) string {
	if s.masker == nil {
		return text
	}
	return s.masker.Mask(text)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context, wal bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			source TEXT,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			correlation_id TEXT,
			error TEXT,
			steps INTEGER DEFAULT 0,
			completed INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline)`,
		`CREATE TABLE IF NOT EXISTS step_events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			message TEXT,
			reason TEXT,
			retryable INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			detail TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
