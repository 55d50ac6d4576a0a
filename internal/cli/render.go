// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/inkweaver/internal/model"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownRenderer     *glamour.TermRenderer
	markdownRendererOnce sync.Once
)

// renderMarkdown renders markdown for terminal display.
// Returns the original content if the renderer is unavailable or fails.
func renderMarkdown(content string) string {
	markdownRendererOnce.Do(func() {
		width := GetTerminalWidth()
		if width > MaxRenderWidth {
			width = MaxRenderWidth
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayMarkdown writes content, rendered when render is set.
func displayMarkdown(w io.Writer, content string, render bool) {
	if render {
		fmt.Fprint(w, renderMarkdown(content))
		return
	}
	fmt.Fprint(w, content)
	if !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(w)
	}
}

// =============================================================================
// STREAMING OUTPUT
// =============================================================================

// streamPrinter turns cumulative partial replies into terminal output by
// writing only what was added since the last update.
type streamPrinter struct {
	w    io.Writer
	mu   sync.Mutex
	last string
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w}
}

// Update is a generate.PartialFunc.
func (p *streamPrinter) Update(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.HasPrefix(text, p.last) {
		io.WriteString(p.w, text[len(p.last):])
	} else {
		// The reply was restarted on another variant.
		io.WriteString(p.w, "\n"+text)
	}
	p.last = text
}

// Finish terminates the current line.
func (p *streamPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" && !strings.HasSuffix(p.last, "\n") {
		io.WriteString(p.w, "\n")
	}
}

// Printed reports whether any text was written.
func (p *streamPrinter) Printed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last != ""
}

// =============================================================================
// RESULT NOTICES
// =============================================================================

// fallbackNotice describes a model switch, or "" when none happened.
func fallbackNotice(cfg model.ModelConfig, res model.GenerationResult) string {
	if !res.Switched(cfg.Variant) {
		return ""
	}
	return fmt.Sprintf("%s quota exhausted; reply written by %s",
		cfg.Variant.DisplayName(), res.UsedModel.DisplayName())
}

// describeConfig is a one-line summary of generation settings.
func describeConfig(cfg model.ModelConfig) string {
	var parts []string
	parts = append(parts, cfg.Variant.String())
	if cfg.AutoSwitch {
		parts = append(parts, "auto-switch")
	}
	if cfg.EffectiveThinking(cfg.Variant) {
		parts = append(parts, fmt.Sprintf("thinking %d", cfg.ThinkingBudget))
	}
	if cfg.EffectiveSearch(cfg.Variant) {
		parts = append(parts, "search")
	}
	return strings.Join(parts, ", ")
}
