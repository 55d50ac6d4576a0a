// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for story sessions and messages.
//
// This package defines the core domain types used throughout the application
// for representing writing sessions, their messages, and the per-session
// generation settings.
//
// # Key Types
//
//   - ChatSession: Container for a story session with messages, title, and config
//   - Message: Single message with role, text, timestamp, and thinking marker
//   - Variant: Closed, ordered enumeration of backend model variants (PRO, FLASH, LITE)
//   - ModelConfig: Per-session generation settings (variant, auto-switch, thinking, search)
//   - Character: Character sheet used to build a character-development prompt
//
// # Usage
//
// Create a new session and add a turn:
//
//	sess := model.NewChatSession()
//	sess.Append(model.NewUserMessage("Write an opening line."))
//
// Walk the fallback order:
//
//	for _, v := range model.FallbackOrder() {
//	    fmt.Println(v, v.ModelID())
//	}
package model
