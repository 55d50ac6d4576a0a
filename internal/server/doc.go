// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the story session service over HTTP.
//
// Endpoints:
//   - GET    /health                          - Health check
//   - GET    /api/sessions                    - List sessions (?grouped=true buckets by date)
//   - POST   /api/sessions                    - Create a session
//   - GET    /api/sessions/:id                - Fetch a session
//   - DELETE /api/sessions/:id                - Delete a session
//   - PUT    /api/sessions/:id/config         - Replace generation settings
//   - POST   /api/sessions/:id/messages       - Send a prompt (SSE)
//   - POST   /api/sessions/:id/regenerate     - Regenerate the last reply (SSE)
//   - POST   /api/characters                  - Develop a character (SSE)
//   - GET    /api/sessions/:id/export         - Download as Markdown or JSON
//
// Streaming endpoints emit "partial" events carrying the cumulative reply,
// then a single "done" event with the generation result or an "error" event.
package server
