// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns story sessions and drives generation for them.
//
// A Service keeps sessions in memory, persists every change through a
// storage.Store, and runs the model fallback chain for each turn.
//
// # Key Types
//
//   - Service: session lifecycle plus Send, Regenerate and DevelopCharacter
//   - Generator: the generation and title backend (generate.Orchestrator)
//
// # Usage
//
//	svc := session.NewService(store, orchestrator, session.WithLogger(log))
//	sess, _ := svc.Create(nil)
//	res, err := svc.Send(ctx, sess.ID, "Begin with a storm", func(text string) {
//		fmt.Print(text)
//	})
//	svc.Wait() // pending title renames
//
// Only one generation may run per session at a time; a second call gets
// ErrBusy.
package session
