// rigchat - swap local language models and chat with them from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/jeranaias/rigchat/internal/cli"

func main() {
	cli.Execute()
}
