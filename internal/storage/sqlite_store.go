// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/inkweaver/internal/model"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps sessions in a single SQLite database. Listing reads only
// the metadata columns; the full session is stored as a JSON document.
type SQLiteStore struct {
	// MaxSessions limits stored sessions (0 = unlimited).
	MaxSessions int

	db   *sql.DB
	path string
}

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	preview       TEXT NOT NULL DEFAULT '',
	variant       TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	data          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		MaxSessions: DefaultMaxSessions,
		db:          db,
		path:        path,
	}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Save upserts the session and prunes old rows.
func (s *SQLiteStore) Save(sess *model.ChatSession) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if err := ValidateID(sess.ID); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	meta := sess.Meta()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, title, preview, variant, message_count, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			preview = excluded.preview,
			variant = excluded.variant,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		meta.ID, meta.Title, meta.Preview, meta.Variant.String(), meta.MessageCount,
		meta.CreatedAt.UnixNano(), meta.LastUpdated.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	if s.MaxSessions > 0 {
		_, err = tx.Exec(`
			DELETE FROM sessions WHERE id != ? AND id NOT IN (
				SELECT id FROM sessions ORDER BY updated_at DESC LIMIT ?
			)`, sess.ID, s.MaxSessions)
		if err != nil {
			return fmt.Errorf("prune sessions: %w", err)
		}
	}

	return tx.Commit()
}

// Load reads a session by ID.
func (s *SQLiteStore) Load(id string) (*model.ChatSession, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var sess model.ChatSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Messages == nil {
		sess.Messages = make([]*model.Message, 0)
	}
	sess.Config = sess.Config.Normalize()
	return &sess, nil
}

// List returns session metadata, most recent first.
func (s *SQLiteStore) List() ([]model.SessionMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, preview, variant, message_count, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := make([]model.SessionMeta, 0)
	for rows.Next() {
		var (
			m                model.SessionMeta
			variant          string
			created, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Preview, &variant, &m.MessageCount, &created, &updated); err != nil {
			return nil, err
		}
		if v, err := model.ParseVariant(variant); err == nil {
			m.Variant = v
		}
		m.CreatedAt = time.Unix(0, created)
		m.LastUpdated = time.Unix(0, updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete removes a session row.
func (s *SQLiteStore) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
