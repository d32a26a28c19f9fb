// Package registry holds the var/namespace registry: the data the describe
// op serializes and the lookup table the dispatcher consults on invoke and
// load-ns.
package registry

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Derefer is the per-invocation handle a Var's Handler uses to emit
// streaming callbacks and exactly one terminal (success or error) response.
// The concrete implementation lives in the pod package, which is the only
// thing that needs to know how a frame actually reaches the transport.
type Derefer interface {
	Callback(v any) error
	SendStdout(s string) error
	SendStderr(s string) error
	Success() error
	SuccessValue(v any) error
	Error(msg string, data any) error
	ErrorMsg(msg string) error
}

// Handler implements a var's behavior. It must not return until every
// goroutine it spawned to emit through d has finished — the scheduler treats
// Handler's return as the signal that the invocation is over.
type Handler func(args []any, d Derefer)

// Var is a host-invokable callable. It is a plain struct rather than an
// interface: the runtime only ever needs the fields below, whether the var
// is user-defined or one of the runtime's own built-ins (see pod.PendingsVar).
type Var struct {
	NS    string
	Name  string
	Meta  string // opaque metadata string, not interpreted by the runtime
	Code  string // optional client-side code executed by the host under NS
	Async bool

	Handler Handler

	// Builtin marks vars that bypass the concurrency limiter (e.g. the
	// pendings introspection var). Ordinary vars leave this false.
	Builtin bool
}

// Qualified returns "<ns>/<name>".
func (v Var) Qualified() string { return v.NS + "/" + v.Name }

// Descriptor is the {name, meta, code?, async?} shape serialized into a
// describe frame's namespaces[n].vars entries.
type Descriptor struct {
	Name  string
	Meta  string
	Code  string
	Async bool
}

func (v Var) Descriptor() Descriptor {
	return Descriptor{Name: v.Name, Meta: v.Meta, Code: v.Code, Async: v.Async}
}

// Namespace holds an insertion-ordered set of vars. A deferred namespace
// advertises only its name in describe, before and after Load populates its
// vars.
type Namespace struct {
	Name string

	mu       sync.Mutex
	order    []string
	vars     map[string]Var
	deferred bool
	loader   func(add func(Var)) error
	loadOnce sync.Once
	loadErr  error
}

// NewNamespace creates an immediately-populated namespace.
func NewNamespace(name string) *Namespace {
	return &Namespace{Name: name, vars: map[string]Var{}}
}

// NewDeferredNamespace creates a namespace whose vars are populated lazily,
// the first time Load is called, by invoking loader with a callback to
// register each var. The loader runs at most once (sync.Once): a repeated
// load-ns op for an already-loaded deferred namespace is a no-op, resolving
// the distilled spec's open question about reload idempotence.
func NewDeferredNamespace(name string, loader func(add func(Var)) error) *Namespace {
	return &Namespace{Name: name, vars: map[string]Var{}, deferred: true, loader: loader}
}

// AddVar registers v under its local name. Re-adding the same name replaces
// the previous var but keeps its position, keeping AddVar idempotent for the
// describe merge step in the dispatcher.
func (n *Namespace) AddVar(v Var) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.vars[v.Name]; !exists {
		n.order = append(n.order, v.Name)
	}
	n.vars[v.Name] = v
}

// Load runs the deferred loader exactly once. Namespaces that were not
// constructed with NewDeferredNamespace are already loaded; Load is a no-op
// for them.
func (n *Namespace) Load() error {
	if n.loader == nil {
		return nil
	}
	n.loadOnce.Do(func() {
		n.loadErr = n.loader(n.AddVar)
	})
	return n.loadErr
}

// Deferred reports whether this namespace still advertises only its name
// (describe output is independent of load history: even after Load has run,
// Deferred keeps returning true, per invariant P6).
func (n *Namespace) Deferred() bool {
	return n.deferred
}

// Vars returns the namespace's vars in registration order.
func (n *Namespace) Vars() []Var {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Var, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.vars[name])
	}
	return out
}

func (n *Namespace) findVar(name string) (Var, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.vars[name]
	return v, ok
}

// Registry is the insertion-ordered table of namespaces the dispatcher
// consults for describe, invoke, and load-ns.
type Registry struct {
	mu         sync.Mutex
	order      []string
	namespaces map[string]*Namespace
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{namespaces: map[string]*Namespace{}}
}

// AddNamespace registers ns. Re-adding a namespace with the same name is a
// no-op if it is already present (the dispatcher's describe handler merges
// built-in namespaces into the registry idempotently).
func (r *Registry) AddNamespace(ns *Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.namespaces[ns.Name]; exists {
		return
	}
	r.order = append(r.order, ns.Name)
	r.namespaces[ns.Name] = ns
}

// FindNS looks up a namespace by name.
func (r *Registry) FindNS(name string) (*Namespace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.namespaces[name]
	if !ok {
		return nil, errors.Errorf("registry: unknown namespace %q", name)
	}
	return ns, nil
}

// FindVar splits a qualified name on its first "/" and looks up the var.
func (r *Registry) FindVar(qualified string) (Var, error) {
	i := strings.IndexByte(qualified, '/')
	if i < 0 {
		return Var{}, errors.Errorf("registry: %q is not a qualified var name", qualified)
	}
	nsName, varName := qualified[:i], qualified[i+1:]
	ns, err := r.FindNS(nsName)
	if err != nil {
		return Var{}, err
	}
	v, ok := ns.findVar(varName)
	if !ok {
		return Var{}, errors.Errorf("registry: unknown var %q in namespace %q", varName, nsName)
	}
	return v, nil
}

// NamespaceView is one entry of describe's namespaces list.
type NamespaceView struct {
	Name     string
	Deferred bool
	Vars     []Descriptor
}

// Describe returns every registered namespace, in registration order. A
// non-empty podID goes first: the namespace with that name is moved to the
// front, or a synthesized stub is prepended if no namespace has that name.
func (r *Registry) Describe(podID string) []NamespaceView {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	namespaces := make(map[string]*Namespace, len(r.namespaces))
	for k, v := range r.namespaces {
		namespaces[k] = v
	}
	r.mu.Unlock()

	views := make([]NamespaceView, 0, len(order)+1)
	viewOf := func(ns *Namespace) NamespaceView {
		if ns.Deferred() {
			return NamespaceView{Name: ns.Name, Deferred: true}
		}
		vars := ns.Vars()
		descs := make([]Descriptor, 0, len(vars))
		for _, v := range vars {
			descs = append(descs, v.Descriptor())
		}
		return NamespaceView{Name: ns.Name, Vars: descs}
	}

	if podID != "" {
		if ns, ok := namespaces[podID]; ok {
			views = append(views, viewOf(ns))
		} else {
			views = append(views, NamespaceView{Name: podID})
		}
	}

	for _, name := range order {
		if name == podID {
			continue
		}
		views = append(views, viewOf(namespaces[name]))
	}

	return views
}
