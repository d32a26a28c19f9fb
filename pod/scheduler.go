package pod

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lotuc/pod-go/internal/payload"
	"github.com/lotuc/pod-go/internal/registry"
)

// PendingsNamespace is the built-in namespace every pod advertises,
// regardless of its own vars.
const PendingsNamespace = "lotuc.babashka.pods"

// PendingsVarName is the name of the built-in introspection var.
const PendingsVarName = "pendings"

// PendingInvoke is a snapshot of one in-flight invocation, recorded while its
// worker goroutine runs and removed the moment the worker returns.
type PendingInvoke struct {
	NS          string
	VarName     string
	ID          string
	Args        []any
	StartedAtMS int64
}

// Scheduler runs var invocations on worker goroutines, bounded by a
// concurrency cap for non-built-in vars. Built-in vars (currently just
// "pendings") bypass the cap entirely.
type Scheduler struct {
	sem *semaphore.Weighted

	pendingMu sync.Mutex
	pending   map[string]PendingInvoke
}

// NewScheduler returns a Scheduler with the given concurrency cap. cap <= 0
// is treated as 1024, the protocol's documented default.
func NewScheduler(cap int64) *Scheduler {
	if cap <= 0 {
		cap = 1024
	}
	return &Scheduler{
		sem:     semaphore.NewWeighted(cap),
		pending: map[string]PendingInvoke{},
	}
}

// Invoke runs v's Handler on a new worker goroutine and returns without
// waiting for it; built-in vars instead run to completion before Invoke
// returns.
// ctx.lifecycle is not consulted here: per §5/§9 the scheduler does not join
// outstanding workers on shutdown.
func (s *Scheduler) Invoke(ctx *Context, v registry.Var, id string, args []any) {
	run := func() {
		if !v.Builtin {
			if err := s.sem.Acquire(context.Background(), 1); err != nil {
				return
			}
			defer s.sem.Release(1)
		}

		s.recordPending(v, id, args)
		defer s.forgetPending(id)

		d := newDerefer(ctx, id, v.Qualified())
		s.runHandler(v, args, d)

		if !d.Done() {
			_ = d.ErrorMsg("illegal var implementation, deref returned without any notice")
		}
	}

	if v.Builtin {
		run()
		return
	}
	go run()
}

// runHandler invokes v.Handler, converting a recovered panic into the
// matching terminal error per §7: a *PodError carries structured ex-data, any
// other error value becomes a message-only error, and anything else is
// reported as "unknown exception".
func (s *Scheduler) runHandler(v registry.Var, args []any, d *derefer) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch e := r.(type) {
		case *PodError:
			_ = d.Error(e.Message, e.Data)
		case error:
			_ = d.ErrorMsg(e.Error())
		default:
			_ = d.ErrorMsg("unknown exception")
		}
	}()
	v.Handler(args, d)
}

func (s *Scheduler) recordPending(v registry.Var, id string, args []any) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[id] = PendingInvoke{
		NS:          v.NS,
		VarName:     v.Name,
		ID:          id,
		Args:        args,
		StartedAtMS: time.Now().UnixMilli(),
	}
}

func (s *Scheduler) forgetPending(id string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, id)
}

// Snapshot copies the pending map under its mutex, for the introspection var.
func (s *Scheduler) Snapshot() map[string]PendingInvoke {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := make(map[string]PendingInvoke, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// PendingsVar builds the built-in "lotuc.babashka.pods/pendings" var whose
// derefer returns a snapshot of s's pending map via SuccessValue.
func PendingsVar(s *Scheduler, enc *payload.Encoder) registry.Var {
	return registry.Var{
		NS:      PendingsNamespace,
		Name:    PendingsVarName,
		Meta:    `{:doc "snapshot of in-flight invocations"}`,
		Builtin: true,
		Handler: func(_ []any, d registry.Derefer) {
			snap := s.Snapshot()
			out := make(map[string]payload.PendingSnapshot, len(snap))
			for id, p := range snap {
				out[id] = payload.PendingSnapshot{Args: p.Args, StartedMS: p.StartedAtMS}
			}
			_ = d.SuccessValue(out)
		},
	}
}
