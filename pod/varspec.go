package pod

import "github.com/lotuc/pod-go/internal/registry"

// VarSpec is the Go-native stand-in for the source's var-defining macros: a
// plain struct an embedder fills in instead of hand-rolling a registry.Var's
// Handler closure each time. The runtime never depends on VarSpec — only on
// the registry.Var it produces (§9 "macro-generated var classes").
type VarSpec struct {
	NS, Name, Meta, Code string
	Async                bool

	// Handler receives ctx so it can reach Components, Registry, or issue
	// further callbacks through d. It must not return until any goroutine it
	// spawned to write through d has finished (see Derefer contract, §4.F).
	Handler func(ctx *Context, args []any, d registry.Derefer)
}

// NewVar closes spec.Handler over ctx and returns the registry.Var the
// dispatcher and scheduler actually operate on.
func NewVar(ctx *Context, spec VarSpec) registry.Var {
	return registry.Var{
		NS:    spec.NS,
		Name:  spec.Name,
		Meta:  spec.Meta,
		Code:  spec.Code,
		Async: spec.Async,
		Handler: func(args []any, d registry.Derefer) {
			spec.Handler(ctx, args, d)
		},
	}
}
