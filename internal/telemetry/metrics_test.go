// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.LoadSettled(OutcomeOK, 2*time.Second)
	m.LoadSettled(OutcomeSuperseded, time.Second)
	m.LoadSettled(OutcomeOK, time.Second)
	m.GenerationSettled(OutcomeError)
	m.Superseded(KindChunk)
	m.Superseded(KindChunk)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Loads(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads(OutcomeSuperseded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SupersededCount(KindChunk)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SupersededCount(KindFinal)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoadSettled(OutcomeOK, time.Second)
		m.GenerationSettled(OutcomeOK)
		m.Superseded(KindHandle)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.GenerationSettled(OutcomeOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rigchat_generations_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "rigchat_model_load_seconds")
}
