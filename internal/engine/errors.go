// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "errors"

var (
	// ErrClosed is returned by a Handle used after Close.
	ErrClosed = errors.New("model handle closed")

	// ErrNoFinalMessage is returned by FinalMessage before any stream has ended.
	ErrNoFinalMessage = errors.New("no finished completion")

	// ErrUnknownBackend is returned when a recipe names a backend nobody serves.
	ErrUnknownBackend = errors.New("unknown backend")
)
