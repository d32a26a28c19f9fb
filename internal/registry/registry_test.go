package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindVarSplitsQualifiedName(t *testing.T) {
	r := New()
	ns := NewNamespace("test-pod")
	ns.AddVar(Var{NS: "test-pod", Name: "add-sync"})
	r.AddNamespace(ns)

	v, err := r.FindVar("test-pod/add-sync")
	require.NoError(t, err)
	assert.Equal(t, "add-sync", v.Name)
}

func TestFindVarMissingSeparator(t *testing.T) {
	r := New()
	_, err := r.FindVar("no-slash")
	require.Error(t, err)
}

func TestFindVarUnknownNamespaceOrVar(t *testing.T) {
	r := New()
	r.AddNamespace(NewNamespace("test-pod"))

	_, err := r.FindVar("missing-ns/v")
	require.Error(t, err)

	_, err = r.FindVar("test-pod/missing-var")
	require.Error(t, err)
}

func TestDeferredNamespaceLoadsOnceAndStaysDeferredInDescribe(t *testing.T) {
	r := New()
	loadCount := 0
	ns := NewDeferredNamespace("lazy", func(add func(Var)) error {
		loadCount++
		add(Var{NS: "lazy", Name: "v1"})
		return nil
	})
	r.AddNamespace(ns)

	views := r.Describe("")
	require.Len(t, views, 1)
	assert.True(t, views[0].Deferred)
	assert.Empty(t, views[0].Vars)

	require.NoError(t, ns.Load())
	require.NoError(t, ns.Load())
	assert.Equal(t, 1, loadCount, "loader must run at most once")

	v, err := r.FindVar("lazy/v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Name)

	// Describe output is independent of load history (P6).
	views = r.Describe("")
	require.Len(t, views, 1)
	assert.True(t, views[0].Deferred)
}

func TestDescribePutsPodIDFirstAsStubWhenUnmatched(t *testing.T) {
	r := New()
	r.AddNamespace(NewNamespace("a"))
	r.AddNamespace(NewNamespace("b"))

	views := r.Describe("foo")
	require.Len(t, views, 3)
	assert.Equal(t, "foo", views[0].Name)
	assert.Equal(t, "a", views[1].Name)
	assert.Equal(t, "b", views[2].Name)
}

func TestDescribePutsMatchingPodIDFirstWithoutDuplicate(t *testing.T) {
	r := New()
	r.AddNamespace(NewNamespace("a"))
	foo := NewNamespace("foo")
	foo.AddVar(Var{NS: "foo", Name: "v"})
	r.AddNamespace(foo)
	r.AddNamespace(NewNamespace("b"))

	views := r.Describe("foo")
	require.Len(t, views, 3)
	assert.Equal(t, "foo", views[0].Name)
	assert.Len(t, views[0].Vars, 1)
	assert.Equal(t, "a", views[1].Name)
	assert.Equal(t, "b", views[2].Name)
}

func TestAddNamespaceIsIdempotent(t *testing.T) {
	r := New()
	first := NewNamespace("a")
	first.AddVar(Var{NS: "a", Name: "v1"})
	r.AddNamespace(first)
	r.AddNamespace(NewNamespace("a")) // should be ignored

	v, err := r.FindVar("a/v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Name)
}
