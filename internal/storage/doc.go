// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session persistence for inkweaver.
//
// Two interchangeable backends implement Store:
//
//   - JSONStore: one JSON document per session in a directory
//   - SQLiteStore: a single SQLite database file (pure Go driver)
//
// # Usage
//
//	store, err := storage.Open(storage.BackendJSON, dir)
//	err = store.Save(sess)
//	metas, err := store.List()
//	sess, err := store.Load(metas[0].ID)
//
// # Storage Location
//
// Sessions are stored under ~/.inkweaver/sessions/ unless configured otherwise.
package storage
