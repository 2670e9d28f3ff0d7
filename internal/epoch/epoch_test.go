// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package epoch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_ZeroValue(t *testing.T) {
	var c Counter
	assert.Equal(t, Token(0), c.Current())
	assert.True(t, c.IsCurrent(0))
}

func TestCounter_AdvanceSupersedes(t *testing.T) {
	var c Counter

	first := c.Advance()
	require.True(t, c.IsCurrent(first))

	second := c.Advance()
	assert.Greater(t, uint64(second), uint64(first))
	assert.False(t, c.IsCurrent(first), "older token must be stale")
	assert.True(t, c.IsCurrent(second))
}

func TestCounter_Guard(t *testing.T) {
	var c Counter
	tok := c.Advance()
	stillCurrent := c.Guard(tok)

	assert.True(t, stillCurrent())
	c.Advance()
	assert.False(t, stillCurrent())
}

func TestCounter_ConcurrentAdvanceIsUnique(t *testing.T) {
	var c Counter
	const workers = 64

	var (
		mu   sync.Mutex
		seen = make(map[Token]bool, workers)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := c.Advance()
			mu.Lock()
			seen[tok] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	assert.Equal(t, Token(workers), c.Current())
}

func TestToken_String(t *testing.T) {
	assert.Equal(t, "42", Token(42).String())
}
