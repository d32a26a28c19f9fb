package pod

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/lotuc/pod-go/internal/registry"
	"github.com/lotuc/pod-go/internal/wire"
)

// Dispatcher runs the single-goroutine read-eval loop described in §4.G: one
// frame in, route by op, write zero or more frames out.
type Dispatcher struct {
	ctx       *Context
	scheduler *Scheduler
}

// NewDispatcher builds a Dispatcher over ctx, whose Transport and Registry it
// drives, scheduling invocations on scheduler.
func NewDispatcher(ctx *Context, scheduler *Scheduler) *Dispatcher {
	return &Dispatcher{ctx: ctx, scheduler: scheduler}
}

// Run reads frames until a shutdown op, an unknown op, or a transport error
// (including io.EOF) ends the loop. It returns nil on a clean shutdown/EOF
// and a non-nil error for protocol-fatal decode/transport failures (§7.1).
func (disp *Dispatcher) Run() error {
	for {
		frame, err := disp.ctx.Transport.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				disp.ctx.runCleanup()
				return nil
			}
			log.Printf("pod: dispatcher: read frame: %v", err)
			disp.ctx.runCleanup()
			return err
		}

		op, _ := frame["op"].(string)
		switch op {
		case "describe":
			disp.handleDescribe()
		case "load-ns":
			disp.handleLoadNS(frame)
		case "invoke":
			disp.handleInvoke(frame)
		case "shutdown":
			disp.ctx.runCleanup()
			return nil
		default:
			log.Printf("pod: dispatcher: unknown op %q, terminating", op)
			disp.ctx.runCleanup()
			return nil
		}
	}
}

// registerBuiltins merges the always-present "lotuc.babashka.pods" namespace
// (currently just "pendings") into the registry. AddNamespace/AddVar are
// idempotent, so calling this on every describe is safe.
func (disp *Dispatcher) registerBuiltins() {
	ns := registry.NewNamespace(PendingsNamespace)
	ns.AddVar(PendingsVar(disp.scheduler, disp.ctx.Encoder))
	disp.ctx.Registry.AddNamespace(ns)
}

func (disp *Dispatcher) handleDescribe() {
	disp.registerBuiltins()

	views := disp.ctx.Registry.Describe(disp.ctx.PodID)
	namespaces := make([]any, 0, len(views))
	for _, v := range views {
		if v.Deferred {
			namespaces = append(namespaces, wire.Frame{"name": v.Name, "defer": "true"})
			continue
		}
		vars := make([]any, 0, len(v.Vars))
		for _, d := range v.Vars {
			vd := wire.Frame{"name": d.Name}
			if d.Meta != "" {
				vd["meta"] = d.Meta
			}
			if d.Code != "" {
				vd["code"] = d.Code
			}
			if d.Async {
				vd["async"] = "true"
			}
			vars = append(vars, vd)
		}
		namespaces = append(namespaces, wire.Frame{"name": v.Name, "vars": vars})
	}

	ops := wire.Frame{}
	if disp.ctx.Cleanup != nil {
		ops["shutdown"] = wire.Frame{}
	}

	_ = disp.ctx.sendFrame(wire.Frame{
		"format":     disp.ctx.Encoder.Format(),
		"ops":        ops,
		"namespaces": namespaces,
	})
}

func (disp *Dispatcher) handleLoadNS(frame wire.Frame) {
	id, _ := frame["id"].(string)
	nsName, _ := frame["ns"].(string)

	ns, err := disp.ctx.Registry.FindNS(nsName)
	if err != nil {
		_ = disp.ctx.sendFrame(wire.Frame{
			"id": id, "ex-message": err.Error(), "ex-data": disp.ctx.Encoder.EmptyDict(),
			"status": []string{"done", "error"},
		})
		return
	}
	if err := ns.Load(); err != nil {
		_ = disp.ctx.sendFrame(wire.Frame{
			"id": id, "ex-message": err.Error(), "ex-data": disp.ctx.Encoder.EmptyDict(),
			"status": []string{"done", "error"},
		})
		return
	}

	vars := make([]any, 0)
	for _, v := range ns.Vars() {
		d := v.Descriptor()
		vd := wire.Frame{"name": d.Name}
		if d.Meta != "" {
			vd["meta"] = d.Meta
		}
		if d.Code != "" {
			vd["code"] = d.Code
		}
		if d.Async {
			vd["async"] = "true"
		}
		vars = append(vars, vd)
	}

	_ = disp.ctx.sendFrame(wire.Frame{"id": id, "name": ns.Name, "vars": vars})
}

func (disp *Dispatcher) handleInvoke(frame wire.Frame) {
	id, _ := frame["id"].(string)
	qualified, _ := frame["var"].(string)

	v, err := disp.ctx.Registry.FindVar(qualified)
	if err != nil {
		_ = disp.ctx.sendFrame(wire.Frame{
			"id": id, "ex-message": "var not found", "ex-data": disp.ctx.Encoder.EmptyDict(),
			"status": []string{"done", "error"},
		})
		return
	}

	argsStr, _ := frame["args"].(string)
	args, err := disp.ctx.Encoder.DecodeArgs(argsStr)
	if err != nil {
		_ = disp.ctx.sendFrame(wire.Frame{
			"id": id, "ex-message": fmt.Sprintf("malformed args: %v", err),
			"ex-data": disp.ctx.Encoder.EmptyDict(),
			"status":  []string{"done", "error"},
		})
		return
	}

	disp.scheduler.Invoke(disp.ctx, v, id, args)
}
