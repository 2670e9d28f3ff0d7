// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by rigchat packages.
//
//   - AtomicWriteFile: crash-safe file writing with fsync (config saves)
//   - Truncate, Width, PadRight: display-width aware string helpers for the
//     TUI and REPL, backed by go-runewidth
package util
