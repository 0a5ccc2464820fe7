/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package settings persists the sidebar style settings between sessions.
// Only the text fields and enums are stored; reference images never are.
// Persistence is a convenience: failures are logged and swallowed.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mangawizard/internal/domain"
	applog "mangawizard/internal/log"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// StorageKey is the single key holding the persisted settings.
const StorageKey = "ai-manga-gen-config"

// FileName is the local key/value database inside the config directory.
const FileName = "local.sqlite"

// Store loads and saves style settings. Implementations never return errors.
type Store interface {
	Load() (domain.StyleConfig, bool)
	Save(domain.StyleConfig)
}

// persisted is the stored subset. Field names match the original local-storage layout.
type persisted struct {
	StyleText   string `json:"styleText"`
	ExtraPrompt string `json:"extraPrompt"`
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

func encode(c domain.StyleConfig) ([]byte, error) {
	return json.Marshal(persisted{
		StyleText:   c.StyleText,
		ExtraPrompt: c.ExtraPrompt,
		AspectRatio: string(c.AspectRatio),
		ImageSize:   string(c.ImageSize),
	})
}

func decode(b []byte) (domain.StyleConfig, error) {
	var p persisted
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.StyleConfig{}, err
	}
	c := domain.StyleConfig{
		StyleText:   p.StyleText,
		ExtraPrompt: p.ExtraPrompt,
		AspectRatio: domain.AspectRatio(p.AspectRatio),
		ImageSize:   domain.ImageSize(p.ImageSize),
	}
	return c.Normalized(), nil
}

// SQLiteStore keeps settings in a small key/value table.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (creating if needed) the key/value database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	l := applog.WithComponent("settings").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("settings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure kv table: %w", err)
	}
	l.Debug("settings store ready")
	return &SQLiteStore{db: db, log: l}, nil
}

// OpenDefault opens the store inside dir (usually config.Dir()).
func OpenDefault(dir string) (*SQLiteStore, error) {
	return OpenSQLite(filepath.Join(dir, FileName))
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load returns the saved settings, or false when none are saved or they cannot be read.
func (s *SQLiteStore) Load() (domain.StyleConfig, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StyleConfig{}, false
	}
	if err != nil {
		s.log.Error("failed to load saved config", slog.Any("err", err))
		return domain.StyleConfig{}, false
	}
	c, err := decode([]byte(raw))
	if err != nil {
		s.log.Error("failed to load saved config", slog.Any("err", err))
		return domain.StyleConfig{}, false
	}
	return c, true
}

// Save persists the text/enum subset of c. Errors are logged, never returned.
func (s *SQLiteStore) Save(c domain.StyleConfig) {
	b, err := encode(c)
	if err != nil {
		s.log.Error("failed to save config", slog.Any("err", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		StorageKey, string(b), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.log.Error("failed to save config", slog.Any("err", err))
	}
}

// MemoryStore is an in-process Store for headless runs and tests.
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte
}

func (m *MemoryStore) Load() (domain.StyleConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return domain.StyleConfig{}, false
	}
	c, err := decode(m.raw)
	if err != nil {
		return domain.StyleConfig{}, false
	}
	return c, true
}

func (m *MemoryStore) Save(c domain.StyleConfig) {
	b, err := encode(c)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.raw = b
	m.mu.Unlock()
}

// LoadOrDefault returns the saved settings or the defaults.
func LoadOrDefault(s Store) domain.StyleConfig {
	if s == nil {
		return domain.DefaultStyle()
	}
	if c, ok := s.Load(); ok {
		return c
	}
	return domain.DefaultStyle()
}
