// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/inkweaver/internal/model"
)

var fixedDate = time.Date(2025, time.March, 9, 14, 0, 0, 0, time.UTC)

func sampleSession() *model.ChatSession {
	sess := model.NewChatSession()
	sess.Title = "The Glass Orchard"
	sess.Append(model.NewUserMessage("Describe the orchard at dawn."))
	sess.Append(model.NewAssistantMessage("Light threaded through the glass apples."))
	return sess
}

func TestMarkdownExporter_Format(t *testing.T) {
	exp := NewMarkdownExporter(&Options{Now: func() time.Time { return fixedDate }})

	data, err := exp.Export(sampleSession())
	require.NoError(t, err)

	want := "# The Glass Orchard\n\n" +
		"Exported from InkWeaver on March 9, 2025\n\n" +
		"---\n\n" +
		"### USER:\nDescribe the orchard at dawn.\n\n" +
		"### INKWEAVER:\nLight threaded through the glass apples.\n\n"
	assert.Equal(t, want, string(data))
}

func TestMarkdownExporter_EmptyTitleAndPlaceholder(t *testing.T) {
	sess := model.NewChatSession()
	sess.Title = ""
	sess.Append(model.NewUserMessage("hi"))
	sess.Append(model.NewAssistantPlaceholder())

	data, err := NewMarkdownExporter(nil).Export(sess)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Untitled Story\n")
	assert.NotContains(t, string(data), "INKWEAVER")
}

func TestMarkdownExporter_NilSession(t *testing.T) {
	_, err := NewMarkdownExporter(nil).Export(nil)
	assert.Error(t, err)
}

func TestJSONExporter_RoundTrips(t *testing.T) {
	sess := sampleSession()
	data, err := NewJSONExporter().Export(sess)
	require.NoError(t, err)

	var got model.ChatSession
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Title, got.Title)
	assert.Len(t, got.Messages, 2)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		title, ext, want string
	}{
		{"The Glass Orchard", ".md", "the_glass_orchard.md"},
		{"Café Noir", ".md", "cafe_noir.md"},
		{"", ".md", "story.md"},
		{"   ", "json", "story.json"},
		{"Chapter 1: Rain/Ash", ".md", "chapter_1__rain_ash.md"},
		{"ＡＢＣ", ".md", "abc.md"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.title, tt.ext))
		})
	}
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"", "md", "Markdown"} {
		exp, err := ForFormat(name)
		require.NoError(t, err)
		assert.Equal(t, ".md", exp.FileExtension())
		assert.Equal(t, "text/markdown", exp.MimeType())
	}

	exp, err := ForFormat("json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", exp.MimeType())

	_, err = ForFormat("html")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	opts := &Options{OutputDir: dir, Now: func() time.Time { return fixedDate }}

	path, err := ToFile(sampleSession(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "the_glass_orchard.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### INKWEAVER:")
}
