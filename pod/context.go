// Package pod implements the pod-side runtime described by the babashka pod
// protocol: the dispatcher, scheduler, derefer, and the Context that ties
// them to a transport, payload encoder, and var/namespace registry.
package pod

import (
	"context"
	"sync"
	"time"

	"github.com/lotuc/pod-go/internal/payload"
	"github.com/lotuc/pod-go/internal/registry"
	"github.com/lotuc/pod-go/internal/transport"
	"github.com/lotuc/pod-go/internal/wire"
)

// Context is the process-scoped handle aggregating the transport, payload
// encoder, var registry, and user-owned components bag. Derefers and the
// dispatcher both hold a *Context.
type Context struct {
	// PodID, if set, names the namespace describe should list first,
	// inventing a stub entry for it if no namespace matches.
	PodID string

	Encoder   *payload.Encoder
	Transport transport.Transport
	Registry  *registry.Registry

	// Components is user-owned state shared across invocations (e.g. a
	// counter). The runtime never locks it; callers that mutate it from
	// multiple vars concurrently must synchronize it themselves.
	Components any

	// Cleanup, if non-nil, runs at most once, when the dispatcher loop ends
	// (shutdown op, unknown op, EOF, or read error). Its presence also makes
	// describe advertise the "shutdown" op.
	Cleanup func()

	// DrainTimeout is not read by the runtime: whatever its value, the
	// dispatcher returns on shutdown without waiting for outstanding
	// invocation goroutines.
	DrainTimeout time.Duration

	cleanupOnce sync.Once
	cancel      context.CancelFunc
	lifecycle   context.Context

	writeMu sync.Mutex
}

// NewContext builds a Context. encoder, tr, and reg must be non-nil.
func NewContext(podID string, encoder *payload.Encoder, tr transport.Transport, reg *registry.Registry, components any, cleanup func()) *Context {
	lifecycle, cancel := context.WithCancel(context.Background())
	return &Context{
		PodID:       podID,
		Encoder:     encoder,
		Transport:   tr,
		Registry:    reg,
		Components:  components,
		Cleanup:     cleanup,
		cancel:      cancel,
		lifecycle:   lifecycle,
	}
}

// Done returns a channel closed once the context's cleanup has run, so that
// a Components value implementing a cancellation-aware interface can observe
// shutdown without the runtime joining worker goroutines.
func (c *Context) Done() <-chan struct{} { return c.lifecycle.Done() }

// runCleanup invokes Cleanup at most once and cancels the lifecycle context.
func (c *Context) runCleanup() {
	c.cleanupOnce.Do(func() {
		if c.Cleanup != nil {
			c.Cleanup()
		}
		c.cancel()
	})
}

// sendFrame is the single path every outbound frame travels, so invariant 3
// (no interleaved writes) holds regardless of whether the dispatcher or a
// worker goroutine is the caller. transport.Transport already serializes
// concurrent writers; the extra mutex here additionally orders the
// encode-then-write pair as one unit for callers building frames from
// multiple fields.
func (c *Context) sendFrame(f wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Transport.WriteFrame(f)
}
