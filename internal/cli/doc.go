// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command line.
//
// # Commands
//
//	rigchat            TUI when stdout is a terminal, REPL otherwise
//	rigchat tui        Bubble Tea interface
//	rigchat chat       line-mode REPL with history
//	rigchat models     list the catalog and which Ollama tags are installed
//	rigchat config     show | path | init
//	rigchat version
//
// Persistent flags (--config, --model, --system, --log-file, --metrics-addr)
// override the configuration file and RIGCHAT_* variables.
//
// The event log never goes to the terminal while the TUI owns it; by
// default it is appended to ~/.rigchat/rigchat.log.
package cli
