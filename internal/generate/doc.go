// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generate turns a session turn into a streamed reply.
//
// The Orchestrator sends the history and new prompt to the configured model
// variant and forwards the accumulated reply text to a caller-supplied sink
// as it streams. When a variant reports a quota or rate-limit failure and
// auto-switch is enabled, it retries on the next variant of the fixed
// fallback order PRO -> FLASH -> LITE. Any other failure is returned as is.
//
// SynthesizeTitle asks the LITE variant for a short session title and never
// fails; errors degrade to an empty string.
//
// # Usage
//
//	orch := generate.NewOrchestrator(gemini.NewClient(key))
//	res, err := orch.Generate(ctx, history, "Continue the scene.", cfg,
//	    func(text string) { render(text) })
package generate
