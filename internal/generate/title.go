// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/inkweaver/internal/gemini"
	"github.com/jeranaias/inkweaver/internal/model"
)

// TitleMessageLimit is how many leading messages feed title synthesis.
const TitleMessageLimit = 4

// titleInstruction precedes the conversation excerpt in the title request.
const titleInstruction = `Analyze the following story brainstorming session or creative writing snippet.
Generate a short, evocative, and relevant title (max 4-6 words).
Do not use quotes. Do not use labels like "Title:". Just the title itself.

Conversation:
`

// BuildTitleRequest builds the one-shot title request from the first
// TitleMessageLimit messages of history.
func BuildTitleRequest(history []model.Message) *gemini.GenerateContentRequest {
	if len(history) > TitleMessageLimit {
		history = history[:TitleMessageLimit]
	}
	var b strings.Builder
	b.WriteString(titleInstruction)
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", wireRole(m.Role), m.Text)
	}
	return &gemini.GenerateContentRequest{
		Contents: []gemini.Content{gemini.NewTextContent(gemini.RoleUser, b.String())},
	}
}

// SynthesizeTitle asks the LITE variant for a short title. It never fails:
// any error, including an empty reply, yields "".
func (o *Orchestrator) SynthesizeTitle(ctx context.Context, history []model.Message) string {
	req := BuildTitleRequest(history)
	resp, err := o.backend.GenerateContent(ctx, model.VariantLite.ModelID(), req)
	if err != nil {
		o.log.WithError(err).Warn("failed to generate title")
		return ""
	}
	return strings.TrimSpace(resp.Text())
}

// IsUsableTitle reports whether a synthesized title should replace the
// current one.
func IsUsableTitle(title string) bool {
	return title != "" && title != model.UntitledTitle
}
