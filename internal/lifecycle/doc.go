// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lifecycle owns the active model handle.
//
// A Manager loads at most one handle at a time from the point of view of its
// observers: SelectModel advances the load epoch, drops the current handle
// and starts loading in the background. Progress reports, the new handle
// and load errors are applied only while their epoch is still current. A
// handle that finishes loading after it was superseded is closed and never
// published.
//
// Selecting a model also resets the attached session, once when the
// selection starts and again just before the new handle is published.
//
// # States
//
//	Idle --SelectModel--> Loading --ok--> Ready
//	                         |
//	                         +--error--> Failed --SelectModel--> Loading
package lifecycle
