// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the lipgloss palette and theme for rigchat.
//
// Colors are lipgloss.AdaptiveColor so they follow the terminal's light or
// dark background; termenv supplies the detection. Every model status is
// rendered with a shape indicator as well as a color.
package styles
