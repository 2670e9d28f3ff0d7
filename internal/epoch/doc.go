// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package epoch implements the attempt-numbering protocol that keeps stale
// asynchronous results away from visible state.
//
// Every asynchronous unit of work (a model load, a token stream, a final
// message fetch) captures the Token that was current when it started. Before
// each state mutation derived from that work, the owner re-reads the Counter
// and applies the mutation only if the captured Token is still current.
// A mismatch means the work was superseded; its result is dropped silently.
//
// # Usage
//
//	var loads epoch.Counter
//	tok := loads.Advance()
//	go func() {
//	    h, err := create()
//	    mu.Lock()
//	    defer mu.Unlock()
//	    if !loads.IsCurrent(tok) {
//	        return // superseded
//	    }
//	    apply(h, err)
//	}()
//
// The Counter itself is safe for concurrent use, but callers that need
// check-and-apply to be atomic must hold their own lock around both steps.
package epoch
