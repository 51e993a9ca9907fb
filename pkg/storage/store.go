// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage backs the gateway's API keys, usage accounting, model
// mapping, and pricing with a single SQLite database in WAL mode.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	key                TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	active             INTEGER NOT NULL DEFAULT 1,
	deactivated_reason TEXT NOT NULL DEFAULT '',
	service_tier       TEXT NOT NULL DEFAULT 'default',
	expires_at         INTEGER,
	budget_limit_mtd   REAL,
	budget_used_mtd    REAL NOT NULL DEFAULT 0,
	budget_mtd_month   TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_history (
	key        TEXT NOT NULL,
	month      TEXT NOT NULL,
	used       REAL NOT NULL,
	PRIMARY KEY (key, month)
);

CREATE TABLE IF NOT EXISTS usage (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	api_key       TEXT NOT NULL,
	request_id    TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cache_read    INTEGER NOT NULL DEFAULT 0,
	cache_write   INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	service_tier  TEXT NOT NULL DEFAULT 'default',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_key ON usage(api_key, created_at);

CREATE TABLE IF NOT EXISTS model_mapping (
	alias    TEXT PRIMARY KEY,
	model_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_pricing (
	model              TEXT PRIMARY KEY,
	input_per_mtok     REAL NOT NULL,
	output_per_mtok    REAL NOT NULL,
	cache_read_per_mtok  REAL NOT NULL DEFAULT 0,
	cache_write_per_mtok REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS usage_stats (
	api_key       TEXT NOT NULL,
	day           TEXT NOT NULL,
	model         TEXT NOT NULL,
	requests      INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (api_key, day, model)
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the shared handle for all gateway persistence.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the gateway database, enables WAL mode, and
// applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 10000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.seedPricing(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database opened", zap.String("path", path))
	return s, nil
}

// DB exposes the raw handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
