// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/util"
)

// =============================================================================
// JSON STORE
// =============================================================================

// JSONStore keeps one JSON file per session in BaseDir.
type JSONStore struct {
	// BaseDir is the directory for session files.
	BaseDir string

	// MaxSessions limits stored sessions (0 = unlimited). The least recently
	// updated sessions are pruned first.
	MaxSessions int

	mu sync.Mutex
}

// NewJSONStore creates a store rooted at baseDir, creating it if needed.
func NewJSONStore(baseDir string) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &JSONStore{
		BaseDir:     baseDir,
		MaxSessions: DefaultMaxSessions,
	}, nil
}

// Save writes the session atomically.
func (s *JSONStore) Save(sess *model.ChatSession) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if err := ValidateID(sess.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := util.AtomicWriteFile(s.filePath(sess.ID), data, 0600); err != nil {
		return err
	}
	if s.MaxSessions > 0 {
		s.enforceLimit(sess.ID)
	}
	return nil
}

// enforceLimit removes the oldest sessions beyond MaxSessions, never the
// one just saved. Caller holds s.mu.
func (s *JSONStore) enforceLimit(keep string) {
	metas, err := s.list()
	if err != nil || len(metas) <= s.MaxSessions {
		return
	}
	excess := len(metas) - s.MaxSessions
	// metas is newest first; walk from the tail.
	for i := len(metas) - 1; i >= 0 && excess > 0; i-- {
		if metas[i].ID == keep {
			continue
		}
		if err := os.Remove(s.filePath(metas[i].ID)); err == nil {
			excess--
		}
	}
}

// Load reads a session by ID.
func (s *JSONStore) Load(id string) (*model.ChatSession, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}

	var sess model.ChatSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Messages == nil {
		sess.Messages = make([]*model.Message, 0)
	}
	sess.Config = sess.Config.Normalize()
	return &sess, nil
}

// List returns metadata for every readable session, most recent first.
// Corrupt files are skipped.
func (s *JSONStore) List() ([]model.SessionMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *JSONStore) list() ([]model.SessionMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.SessionMeta{}, nil
		}
		return nil, err
	}

	metas := make([]model.SessionMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := s.Load(id)
		if err != nil {
			continue
		}
		metas = append(metas, sess.Meta())
	}

	sortNewestFirst(metas)
	return metas, nil
}

// Delete removes a session file.
func (s *JSONStore) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return err
}

// Close is a no-op for the file store.
func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

func sortNewestFirst(metas []model.SessionMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].LastUpdated.After(metas[j].LastUpdated)
	})
}
