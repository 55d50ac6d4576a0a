// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the text and file helpers shared across inkweaver.
//
// Session listings need titles and previews cut to a column width, and
// CJK text counts double there, so TruncateWidth and PadRight measure
// display width rather than runes. TruncateRunes and RuneLen count runes,
// which is what the title rename rule and message previews use.
//
// Sessions and config files are written with AtomicWriteFile, so a crash
// mid-save leaves the previous version intact.
//
//	title := util.TruncateWidth(util.SingleLine(meta.Title), 32)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
