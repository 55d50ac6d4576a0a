// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for inkweaver.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Gemini endpoint, key, timeout and request limit
//   - DefaultsConfig: Generation settings given to new sessions
//   - Watcher: Reloads the config file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (INKWEAVER_*, GEMINI_API_KEY, API_KEY)
//   - ~/.inkweaver/config.toml
//   - ~/.inkweaver/config.json
//   - Built-in defaults
//
// # Example Configuration
//
//	[api]
//	requests_per_minute = 30
//
//	[defaults]
//	variant = "flash"
//	auto_switch = true
//	deep_thinking = true
//	thinking_budget = 4096
//
//	[storage]
//	backend = "sqlite"
package config
