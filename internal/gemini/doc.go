// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini provides a REST client for the Google Gemini generative
// language API.
//
// Only the two calls the application needs are implemented: one-shot
// generateContent and streamGenerateContent over server-sent events.
//
// # Key Types
//
//   - Client: HTTP client with API-key auth, request limiting and secure logging
//   - GenerateContentRequest: Request body (contents, system instruction, tools, safety)
//   - GenerateContentResponse: Response body or a single streamed chunk
//   - APIError: Error body returned by the API with its HTTP status
//   - SSEReader: Server-sent event parser for streamed responses
//
// # Usage
//
//	client := gemini.NewClient(apiKey)
//	err := client.StreamGenerateContent(ctx, "gemini-3-flash-preview", req,
//	    func(chunk *gemini.GenerateContentResponse) {
//	        fmt.Print(chunk.Text())
//	    })
//
// # Security
//
// The API key travels only in the x-goog-api-key header. It is never logged;
// log lines carry a SHA-256 fingerprint instead.
package gemini
