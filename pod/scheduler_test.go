package pod

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotuc/pod-go/internal/registry"
)

func waitForFrames(t *testing.T, tr *captureTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(tr.frames) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(tr.frames))
}

func TestScheduler_PlainErrorBecomesErrorMsg(t *testing.T) {
	ctx, tr := newTestContext()
	s := NewScheduler(4)
	v := registry.Var{
		NS: "ns", Name: "v",
		Handler: func(_ []any, d registry.Derefer) { panic(errors.New("boom")) },
	}
	s.Invoke(ctx, v, "1", nil)
	waitForFrames(t, tr, 1)

	assert.Equal(t, "boom", tr.frames[0]["ex-message"])
}

func TestScheduler_PodErrorCarriesData(t *testing.T) {
	ctx, tr := newTestContext()
	s := NewScheduler(4)
	v := registry.Var{
		NS: "ns", Name: "v",
		Handler: func(_ []any, d registry.Derefer) {
			panic(NewError("bad args", map[string]any{"n": 1}))
		},
	}
	s.Invoke(ctx, v, "1", nil)
	waitForFrames(t, tr, 1)

	assert.Equal(t, "bad args", tr.frames[0]["ex-message"])
	assert.Equal(t, `{"n":1}`, tr.frames[0]["ex-data"])
}

func TestScheduler_UnknownPanicValue(t *testing.T) {
	ctx, tr := newTestContext()
	s := NewScheduler(4)
	v := registry.Var{
		NS: "ns", Name: "v",
		Handler: func(_ []any, d registry.Derefer) { panic(42) },
	}
	s.Invoke(ctx, v, "1", nil)
	waitForFrames(t, tr, 1)

	assert.Contains(t, tr.frames[0]["ex-message"], "unknown exception")
}

func TestScheduler_SilentHandlerSynthesizesError(t *testing.T) {
	ctx, tr := newTestContext()
	s := NewScheduler(4)
	v := registry.Var{
		NS: "ns", Name: "v",
		Handler: func(_ []any, d registry.Derefer) {},
	}
	s.Invoke(ctx, v, "1", nil)
	waitForFrames(t, tr, 1)

	assert.Equal(t, "illegal var implementation, deref returned without any notice", tr.frames[0]["ex-message"])
}

func TestScheduler_PendingRemovedAfterCompletion(t *testing.T) {
	ctx, tr := newTestContext()
	s := NewScheduler(4)
	v := registry.Var{
		NS: "ns", Name: "v",
		Handler: func(_ []any, d registry.Derefer) { _ = d.Success() },
	}
	s.Invoke(ctx, v, "1", []any{"a"})
	waitForFrames(t, tr, 1)

	// The frame is written before the worker's deferred forgetPending runs,
	// so wait for the worker to return rather than checking immediately.
	assert.Eventually(t, func() bool { return len(s.Snapshot()) == 0 }, time.Second, time.Millisecond,
		"the pending entry must be removed once the worker returns")
}

func TestScheduler_BuiltinBypassesCapAndRunsSynchronously(t *testing.T) {
	ctx, tr := newTestContext()
	s := NewScheduler(1)
	require.True(t, s.sem.TryAcquire(1), "occupy the only slot so a capped var could not run")
	v := PendingsVar(s, ctx.Encoder)
	s.Invoke(ctx, v, "1", nil)

	require.Len(t, tr.frames, 1, "builtin vars run synchronously, no polling needed")
	assert.Equal(t, []string{"done"}, tr.frames[0]["status"])
}
