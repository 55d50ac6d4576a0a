// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/jeranaias/inkweaver/internal/model"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DefaultMaxSessions caps stored sessions when no limit is configured.
const DefaultMaxSessions = 500

// Store persists sessions.
type Store interface {
	// Save inserts or replaces a session.
	Save(sess *model.ChatSession) error
	// Load returns the session with the given ID or ErrSessionNotFound.
	Load(id string) (*model.ChatSession, error)
	// List returns metadata for all sessions, most recently updated first.
	List() ([]model.SessionMeta, error)
	// Delete removes a session or returns ErrSessionNotFound.
	Delete(id string) error
	// Close releases resources.
	Close() error
}

// Errors returned by stores.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidID is returned for IDs that are not safe as file names.
	ErrInvalidID = errors.New("invalid session id")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID rejects IDs that could escape the storage directory.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Open creates a store of the given backend rooted at dir. The SQLite
// backend keeps its database at dir/sessions.db.
func Open(backend, dir string, maxSessions int) (Store, error) {
	switch backend {
	case "", BackendJSON:
		s, err := NewJSONStore(dir)
		if err != nil {
			return nil, err
		}
		s.MaxSessions = maxSessions
		return s, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(filepath.Join(dir, "sessions.db"))
		if err != nil {
			return nil, err
		}
		s.MaxSessions = maxSessions
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
