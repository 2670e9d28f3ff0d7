// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package epoch

import (
	"strconv"
	"sync/atomic"
)

// Token identifies one attempt. The zero Token means "no attempt yet".
type Token uint64

// String returns the decimal form used in log lines.
func (t Token) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Counter is a monotonically increasing attempt counter.
// The zero value is ready to use and reports Token 0 as current.
type Counter struct {
	n atomic.Uint64
}

// Advance starts a new attempt and returns its Token.
// Every Token handed out before this call becomes stale.
func (c *Counter) Advance() Token {
	return Token(c.n.Add(1))
}

// Current returns the Token of the latest attempt.
func (c *Counter) Current() Token {
	return Token(c.n.Load())
}

// IsCurrent reports whether tok still identifies the latest attempt.
func (c *Counter) IsCurrent(tok Token) bool {
	return c.Current() == tok
}

// Guard returns a closure bound to tok, handy for passing into callbacks
// that only need to ask "am I still current?".
func (c *Counter) Guard(tok Token) func() bool {
	return func() bool { return c.IsCurrent(tok) }
}
