package pod

import (
	"github.com/lotuc/pod-go/internal/payload"
	"github.com/lotuc/pod-go/internal/registry"
	"github.com/lotuc/pod-go/internal/transport"
)

// Pod bundles the pieces described by §2's component table (C+B+E+H+I) into
// the one object an embedder constructs and runs.
type Pod struct {
	Context    *Context
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
	Registry   *registry.Registry
}

// Config are the construction parameters for New.
type Config struct {
	PodID          string
	MaxConcurrency int64
	Transport      transport.Transport
	Components     any
	Cleanup        func()
}

// New wires a Context, JSON payload encoder, Registry, and Scheduler into a
// runnable Pod. Callers register namespaces/vars on Registry (directly, or
// via NewVar) before calling Run.
func New(cfg Config) *Pod {
	reg := registry.New()
	enc := payload.New()
	ctx := NewContext(cfg.PodID, enc, cfg.Transport, reg, cfg.Components, cfg.Cleanup)
	sched := NewScheduler(cfg.MaxConcurrency)
	return &Pod{
		Context:    ctx,
		Scheduler:  sched,
		Dispatcher: NewDispatcher(ctx, sched),
		Registry:   reg,
	}
}

// AddVar registers a var described by a VarSpec, closing its Handler over
// p.Context.
func (p *Pod) AddVar(spec VarSpec) {
	ns, err := p.Registry.FindNS(spec.NS)
	if err != nil {
		ns = registry.NewNamespace(spec.NS)
		p.Registry.AddNamespace(ns)
	}
	ns.AddVar(NewVar(p.Context, spec))
}

// AddDeferredNamespace registers a namespace whose vars are populated lazily
// the first time a load-ns op for it arrives.
func (p *Pod) AddDeferredNamespace(name string, loader func(add func(VarSpec))) {
	p.Registry.AddNamespace(registry.NewDeferredNamespace(name, func(add func(registry.Var)) error {
		loader(func(spec VarSpec) {
			add(NewVar(p.Context, spec))
		})
		return nil
	}))
}

// Run drives the dispatcher's read-eval loop until shutdown, EOF, or a fatal
// protocol error.
func (p *Pod) Run() error {
	return p.Dispatcher.Run()
}
