// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the inkweaver command line.
//
// # Commands Overview
//
//   - chat: Interactive story session with streaming replies
//   - ask: Single prompt, reply printed to stdout
//   - sessions: List, show, rename, export and delete stored sessions
//   - character: Develop a character sheet into a full profile
//   - serve: Run the HTTP API
//   - config: Show, create or locate the configuration file
//   - version: Print build information
//
// # Usage
//
//	root := cli.NewRootCommand()
//	if err := root.Execute(); err != nil {
//	    os.Exit(1)
//	}
//
// Model selection flags shared by chat, ask and character:
//
//	--variant pro|flash|lite   starting model
//	--no-auto-switch           fail instead of falling back on quota errors
//	--deep-thinking            request a thinking budget (PRO/FLASH)
//	--budget N                 thinking budget in tokens
//	--search                   enable Google Search grounding (PRO/FLASH)
package cli
