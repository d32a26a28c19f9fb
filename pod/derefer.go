package pod

import (
	"fmt"
	"sync"

	"github.com/lotuc/pod-go/internal/registry"
	"github.com/lotuc/pod-go/internal/wire"
)

// derefer is the concrete registry.Derefer handed to a var's Handler for one
// invocation. It is owned by exactly one worker goroutine: created by the
// scheduler's worker just before the Handler runs, and dropped when the
// worker returns.
type derefer struct {
	ctx     *Context
	id      string
	varQual string // "<ns>/<name>", for diagnostics only

	mu   sync.Mutex
	done bool
}

func newDerefer(ctx *Context, id, varQual string) *derefer {
	return &derefer{ctx: ctx, id: id, varQual: varQual}
}

// Done reports whether a terminal (Success/SuccessValue/Error/ErrorMsg) call
// has already happened. The scheduler consults this after Handler returns to
// detect the "illegal var implementation" case (§7.6).
func (d *derefer) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// markTerminal sets done and reports whether the caller actually won the
// race to be the terminal call (false means a terminal call already
// happened, and this call must not emit a second one).
func (d *derefer) markTerminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return false
	}
	d.done = true
	return true
}

func (d *derefer) Callback(v any) error {
	if d.Done() {
		return fmt.Errorf("pod: callback after terminal response for invocation %s", d.id)
	}
	value, err := d.ctx.Encoder.Encode(v)
	if err != nil {
		return err
	}
	return d.ctx.sendFrame(wire.Frame{"id": d.id, "value": value, "status": []string{}})
}

func (d *derefer) SendStdout(s string) error {
	return d.ctx.sendFrame(wire.Frame{"id": d.id, "out": s})
}

func (d *derefer) SendStderr(s string) error {
	return d.ctx.sendFrame(wire.Frame{"id": d.id, "err": s})
}

func (d *derefer) Success() error {
	if !d.markTerminal() {
		return fmt.Errorf("pod: duplicate terminal response for invocation %s", d.id)
	}
	return d.ctx.sendFrame(wire.Frame{"id": d.id, "status": []string{"done"}})
}

func (d *derefer) SuccessValue(v any) error {
	if !d.markTerminal() {
		return fmt.Errorf("pod: duplicate terminal response for invocation %s", d.id)
	}
	value, err := d.ctx.Encoder.Encode(v)
	if err != nil {
		return err
	}
	return d.ctx.sendFrame(wire.Frame{"id": d.id, "value": value, "status": []string{"done"}})
}

func (d *derefer) Error(msg string, data any) error {
	if !d.markTerminal() {
		return fmt.Errorf("pod: duplicate terminal response for invocation %s", d.id)
	}

	if data == nil {
		data = map[string]any{}
	}
	exData, err := d.ctx.Encoder.Encode(data)
	if err != nil {
		return err
	}
	if !d.ctx.Encoder.IsDict(exData) {
		// Malformed ex-data: wrap it so the host still gets a dict, and warn
		// the var author on stderr rather than failing the invocation.
		wrapped, werr := d.ctx.Encoder.MakeDict("ex-data", data)
		if werr == nil {
			exData = wrapped
		}
		_ = d.SendStderr(fmt.Sprintf("pod: var %s reported non-dict ex-data; wrapped it", d.varQual))
	}

	return d.ctx.sendFrame(wire.Frame{
		"id":         d.id,
		"ex-message": msg,
		"ex-data":    exData,
		"status":     []string{"done", "error"},
	})
}

func (d *derefer) ErrorMsg(msg string) error {
	return d.Error(msg, map[string]any{})
}

var _ registry.Derefer = (*derefer)(nil)
