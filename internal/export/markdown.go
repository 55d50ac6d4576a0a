// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/inkweaver/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a session as a Markdown transcript.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a session to Markdown:
//
//	# <title>
//
//	Exported from InkWeaver on <date>
//
//	---
//
//	### USER:
//	<text>
//
//	### INKWEAVER:
//	<text>
func (e *MarkdownExporter) Export(sess *model.ChatSession) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}

	title := strings.TrimSpace(sess.Title)
	if title == "" {
		title = model.UntitledTitle
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "Exported from InkWeaver on %s\n\n", e.options.now().Format("January 2, 2006"))
	sb.WriteString("---\n\n")

	for _, msg := range sess.Messages {
		if msg.IsThinking && msg.Text == "" {
			continue
		}
		fmt.Fprintf(&sb, "### %s:\n%s\n\n", msg.Role.DisplayName(), msg.Text)
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}
