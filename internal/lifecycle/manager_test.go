// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/engine/enginetest"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

func testCatalog(t *testing.T, ids ...string) *catalog.Catalog {
	t.Helper()
	descs := make([]catalog.Descriptor, len(ids))
	for i, id := range ids {
		descs[i] = catalog.Descriptor{
			ID:     id,
			Recipe: catalog.Recipe{Backend: catalog.BackendOllama, Model: id},
		}
	}
	cat, err := catalog.New(descs...)
	require.NoError(t, err)
	return cat
}

type countingResetter struct{ n atomic.Int32 }

func (r *countingResetter) Reset() { r.n.Add(1) }

func handleFor(t *testing.T, eng *enginetest.Engine, id string) *enginetest.Handle {
	t.Helper()
	for _, h := range eng.Handles() {
		if h.ModelID() == id {
			return h
		}
	}
	t.Fatalf("no handle created for %s", id)
	return nil
}

// =============================================================================
// SELECTION
// =============================================================================

func TestSelectModel_Ready(t *testing.T) {
	eng := enginetest.New()
	resets := &countingResetter{}
	m := New(testCatalog(t, "A", "B"), eng, WithSession(resets))

	tok, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()

	st := m.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, "A", st.ModelID)
	assert.Equal(t, tok, st.Epoch)
	assert.Empty(t, st.Err)

	h := m.ActiveHandle()
	require.NotNil(t, h)
	assert.Equal(t, "A", h.ModelID())
	assert.Equal(t, int32(2), resets.n.Load(), "reset on select and on publish")
}

func TestSelectModel_UnknownID(t *testing.T) {
	eng := enginetest.New()
	m := New(testCatalog(t, "A"), eng)

	_, err := m.SelectModel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, StatusIdle, m.State().Status)
	assert.Zero(t, m.State().Epoch)
	assert.Zero(t, eng.Calls("nope"))
}

func TestSelectModel_LoadingHidesHandle(t *testing.T) {
	gate := make(chan struct{})
	eng := enginetest.New().Script("A", enginetest.Load{Gate: gate})
	m := New(testCatalog(t, "A"), eng)

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, m.State().Status)
	assert.Nil(t, m.ActiveHandle())
	_, err = m.RequireHandle()
	assert.ErrorIs(t, err, ErrNoHandle)
	assert.Contains(t, err.Error(), "Loading A...")

	close(gate)
	m.Wait()
	assert.NotNil(t, m.ActiveHandle())
	h, err := m.RequireHandle()
	require.NoError(t, err)
	assert.Equal(t, "A", h.ModelID())
}

func TestSelectModel_ReportsProgress(t *testing.T) {
	eng := enginetest.New().Script("A", enginetest.Load{Progress: []engine.Progress{
		engine.NewProgress(0.5, "pulling"),
		engine.Indeterminate("loading into memory"),
	}})

	var mu sync.Mutex
	var labels []string
	var m *Manager
	m = New(testCatalog(t, "A"), eng, WithOnChange(func() {
		st := m.State()
		if st.Status == StatusLoading && st.Progress != nil {
			mu.Lock()
			labels = append(labels, st.Progress.Label)
			mu.Unlock()
		}
	}))

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pulling", "loading into memory"}, labels)
}

func TestSelectModel_SupersededLoadNeverExposed(t *testing.T) {
	gateA := make(chan struct{})
	eng := enginetest.New().
		Script("A", enginetest.Load{Gate: gateA, Progress: []engine.Progress{engine.NewProgress(0.9, "stale")}}).
		Script("B", enginetest.Load{Progress: []engine.Progress{engine.NewProgress(0.3, "fresh")}})
	metrics := telemetry.NewMetrics()
	m := New(testCatalog(t, "A", "B"), eng, WithMetrics(metrics))

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	tokB, err := m.SelectModel(context.Background(), "B")
	require.NoError(t, err)

	close(gateA)
	m.Wait()

	st := m.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, "B", st.ModelID)
	assert.Equal(t, tokB, st.Epoch)
	require.NotNil(t, st.Progress)
	assert.Equal(t, "fresh", st.Progress.Label)

	require.NotNil(t, m.ActiveHandle())
	assert.Equal(t, "B", m.ActiveHandle().ModelID())
	assert.True(t, handleFor(t, eng, "A").Closed(), "abandoned handle is released")
	assert.False(t, handleFor(t, eng, "B").Closed())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SupersededCount(telemetry.KindHandle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SupersededCount(telemetry.KindProgress)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Loads(telemetry.OutcomeOK)))
}

func TestSelectModel_OnlyLatestOfManyWins(t *testing.T) {
	ids := []string{"m0", "m1", "m2", "m3", "m4"}
	gates := make(map[string]chan struct{}, len(ids))
	eng := enginetest.New()
	for _, id := range ids {
		gates[id] = make(chan struct{})
		eng.Script(id, enginetest.Load{Gate: gates[id]})
	}
	m := New(testCatalog(t, ids...), eng)

	for _, id := range ids {
		_, err := m.SelectModel(context.Background(), id)
		require.NoError(t, err)
	}
	// Settle out of order: newest first, then the rest.
	close(gates["m4"])
	for _, id := range []string{"m1", "m3", "m0", "m2"} {
		close(gates[id])
	}
	m.Wait()

	require.NotNil(t, m.ActiveHandle())
	assert.Equal(t, "m4", m.ActiveHandle().ModelID())
	for _, h := range eng.Handles() {
		if h.ModelID() == "m4" {
			assert.False(t, h.Closed())
			continue
		}
		assert.True(t, h.Closed(), "%s should be released", h.ModelID())
	}
}

func TestSelectModel_ReleasesPreviousHandle(t *testing.T) {
	eng := enginetest.New()
	m := New(testCatalog(t, "A", "B"), eng)

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()
	a := handleFor(t, eng, "A")

	_, err = m.SelectModel(context.Background(), "B")
	require.NoError(t, err)
	m.Wait()
	assert.True(t, a.Closed())
	assert.Equal(t, 1, a.CloseCalls())
	assert.Equal(t, "B", m.ActiveHandle().ModelID())
}

type engineFunc func(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) (engine.Handle, error)

func (f engineFunc) CreateModel(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) (engine.Handle, error) {
	return f(ctx, desc, onProgress)
}

// slowCloseHandle blocks in Close until unblock is closed.
type slowCloseHandle struct {
	*enginetest.Handle
	unblock chan struct{}
	onClose func()
}

func (h *slowCloseHandle) Close() error {
	h.onClose()
	<-h.unblock
	return h.Handle.Close()
}

func TestSelectModel_ReleaseRunsAfterResetWithoutBlocking(t *testing.T) {
	gate := make(chan struct{})
	turn := enginetest.Text("late", "late")
	turn.Gate = gate

	ctrl := session.New()
	var streamingAtClose atomic.Bool
	slow := &slowCloseHandle{
		Handle:  enginetest.NewHandle("A", turn),
		unblock: make(chan struct{}),
		onClose: func() { streamingAtClose.Store(ctrl.IsStreaming()) },
	}
	eng := engineFunc(func(ctx context.Context, desc catalog.Descriptor, _ engine.ProgressFunc) (engine.Handle, error) {
		if desc.ID == "A" {
			return slow, nil
		}
		return enginetest.NewHandle(desc.ID), nil
	})
	m := New(testCatalog(t, "A", "B"), eng, WithSession(ctrl))

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()
	require.True(t, ctrl.Submit(context.Background(), "Hello", m.ActiveHandle(), "", session.DefaultParams()))

	start := time.Now()
	_, err = m.SelectModel(context.Background(), "B")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, ctrl.IsStreaming())
	assert.False(t, slow.Closed())

	close(slow.unblock)
	m.Wait()
	assert.True(t, slow.Closed())
	assert.False(t, streamingAtClose.Load(), "session reset before the handle is closed")
	assert.Equal(t, "B", m.ActiveHandle().ModelID())

	close(gate)
	ctrl.Wait()
	assert.Empty(t, ctrl.Snapshot())
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSelectModel_FailureThenRetry(t *testing.T) {
	eng := enginetest.New().Script("A",
		enginetest.Load{Err: errors.New("pull failed: no space left")},
		enginetest.Load{},
	)
	m := New(testCatalog(t, "A"), eng)

	first, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()

	st := m.State()
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "pull failed: no space left", st.Err)
	assert.Nil(t, m.ActiveHandle())
	assert.Contains(t, st.Summary(), "failed")

	second, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()
	assert.Greater(t, second, first)
	assert.Equal(t, StatusReady, m.State().Status)
	assert.Empty(t, m.State().Err)
	assert.NotNil(t, m.ActiveHandle())
	assert.Equal(t, 2, eng.Calls("A"))
}

func TestSelectModel_StaleFailureIgnored(t *testing.T) {
	gate := make(chan struct{})
	eng := enginetest.New().Script("A", enginetest.Load{Gate: gate, Err: errors.New("late")})
	metrics := telemetry.NewMetrics()
	m := New(testCatalog(t, "A", "B"), eng, WithMetrics(metrics))

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	_, err = m.SelectModel(context.Background(), "B")
	require.NoError(t, err)
	close(gate)
	m.Wait()

	st := m.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, "B", st.ModelID)
	assert.Empty(t, st.Err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SupersededCount(telemetry.KindLoadErr)))
}

// =============================================================================
// CLOSE
// =============================================================================

func TestClose_ReleasesHandle(t *testing.T) {
	eng := enginetest.New()
	m := New(testCatalog(t, "A"), eng)
	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()

	require.NoError(t, m.Close())
	assert.True(t, handleFor(t, eng, "A").Closed())
	assert.Nil(t, m.ActiveHandle())
	require.NoError(t, m.Close())

	_, err = m.SelectModel(context.Background(), "A")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_DuringLoad(t *testing.T) {
	gate := make(chan struct{})
	eng := enginetest.New().Script("A", enginetest.Load{Gate: gate})
	m := New(testCatalog(t, "A"), eng)
	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(gate)
	}()
	require.NoError(t, m.Close())

	assert.Nil(t, m.ActiveHandle())
	assert.True(t, handleFor(t, eng, "A").Closed())
}

// =============================================================================
// WITH A SESSION
// =============================================================================

func TestScenario_HelloOnModelA(t *testing.T) {
	eng := enginetest.New().Script("A", enginetest.Load{
		Turns: []enginetest.Turn{enginetest.Text("Hi there!", "Hi", " there")},
	})
	ctrl := session.New()
	m := New(testCatalog(t, "A", "B"), eng, WithSession(ctrl))

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()

	require.True(t, ctrl.Submit(context.Background(), "Hello", m.ActiveHandle(), "", session.DefaultParams()))
	ctrl.Wait()

	snap := ctrl.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Hello", snap[0].Content)
	assert.Equal(t, "Hi there!", snap[1].Content)
}

func TestScenario_SwitchModelMidStream(t *testing.T) {
	streamGate := make(chan struct{})
	finalGate := make(chan struct{})
	turn := enginetest.Text("Hi there!", "Hi", " there")
	turn.Gate = streamGate
	turn.FinalGate = finalGate
	loadB := make(chan struct{})

	eng := enginetest.New().
		Script("A", enginetest.Load{Turns: []enginetest.Turn{turn}}).
		Script("B", enginetest.Load{Gate: loadB})
	metrics := telemetry.NewMetrics()
	ctrl := session.New(session.WithMetrics(metrics))
	m := New(testCatalog(t, "A", "B"), eng, WithSession(ctrl))

	_, err := m.SelectModel(context.Background(), "A")
	require.NoError(t, err)
	m.Wait()
	a := handleFor(t, eng, "A")
	require.True(t, ctrl.Submit(context.Background(), "Hello", m.ActiveHandle(), "", session.DefaultParams()))
	require.Eventually(t, func() bool { return len(a.Streams()) == 1 }, 2*time.Second, time.Millisecond,
		"stream opened before the switch")

	_, err = m.SelectModel(context.Background(), "B")
	require.NoError(t, err)
	assert.Empty(t, ctrl.Snapshot(), "selection clears the conversation")
	assert.False(t, ctrl.IsStreaming())

	// Stale chunks and final arrive while B is still loading.
	close(streamGate)
	close(finalGate)
	ctrl.Wait()
	assert.Empty(t, ctrl.Snapshot())

	close(loadB)
	m.Wait()
	assert.Equal(t, StatusReady, m.State().Status)
	assert.Equal(t, "B", m.ActiveHandle().ModelID())
	assert.Empty(t, ctrl.Snapshot())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SupersededCount(telemetry.KindChunk)))
	assert.True(t, a.Closed())
	assert.Equal(t, 1, a.Streams()[0].Consumed())
}

func TestState_Summary(t *testing.T) {
	half := engine.NewProgress(0.5, "pulling")
	tests := []struct {
		state State
		want  string
	}{
		{State{}, "No model selected"},
		{State{ModelID: "A", Status: StatusLoading}, "Loading A..."},
		{State{ModelID: "A", Status: StatusLoading, Progress: &half}, "A: pulling 50%"},
		{State{ModelID: "A", Status: StatusLoading, Progress: &engine.Progress{Label: "warming"}}, "A: warming"},
		{State{ModelID: "A", Status: StatusReady}, "A ready"},
		{State{ModelID: "A", Status: StatusFailed, Err: "boom"}, "A failed: boom"},
	}
	for i, tc := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.state.Summary())
		})
	}
	assert.Equal(t, "Status(9)", Status(9).String())
}
