// InkWeaver - a creative writing partner for the terminal and HTTP.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/inkweaver/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
