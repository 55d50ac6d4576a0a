// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders story sessions to shareable documents.
//
// # Supported Formats
//
//   - Markdown: the story transcript with USER and INKWEAVER headings
//   - JSON: the full session document, suitable for re-import
//
// # Usage
//
//	exp, err := export.ForFormat("md")
//	data, err := exp.Export(sess)
//	name := export.FileName(sess.Title, exp.FileExtension())
//
// Or write straight to a directory:
//
//	path, err := export.ToFile(sess, exp, &export.Options{OutputDir: "."})
package export
