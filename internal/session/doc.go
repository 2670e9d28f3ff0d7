// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives streaming generations against a model handle.
//
// A Controller owns one conversation and runs at most one generation at a
// time. Submit appends the user turn and an empty assistant placeholder,
// then streams chunks into the placeholder from a background goroutine.
// When the stream ends the handle's canonical final text replaces the
// running aggregate and the entry is frozen.
//
// Every generation captures the generation epoch when it starts. Each write
// it makes (chunk, final text, error marker) happens under the controller's
// lock and only if that epoch is still current. Reset advances the epoch,
// so anything still in flight from before the reset can no longer touch the
// conversation. A stale generation stops reading and closes its stream.
//
// # Usage
//
//	ctrl := session.New(session.WithOnChange(redraw))
//	if !ctrl.Submit(ctx, "Hello", handle, system, session.DefaultParams()) {
//	    // empty prompt, no model, or a reply is still streaming
//	}
//	for _, msg := range ctrl.Snapshot() {
//	    fmt.Println(msg.Role, msg.Content)
//	}
package session
