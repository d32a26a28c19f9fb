// Package transport provides the byte-level transports a pod can be driven
// over: stdio (the default) and a TCP socket advertised via a port file.
// Both serialize concurrent writers behind a mutex so frames are never
// interleaved on the wire.
package transport

import (
	"bufio"
	"io"
	"sync"

	"github.com/lotuc/pod-go/internal/wire"
)

// Transport reads and writes whole bencode frames. Implementations must
// serialize concurrent WriteFrame calls.
type Transport interface {
	ReadFrame() (wire.Frame, error)
	WriteFrame(wire.Frame) error
}

// rwTransport is the shape Stdio is built on: a buffered reader, a raw
// writer, and a write mutex. TCP keeps its own equivalent fields.
type rwTransport struct {
	mu     sync.Mutex
	reader *bufio.Reader
	writer io.Writer
}

func (t *rwTransport) ReadFrame() (wire.Frame, error) {
	return wire.DecodeFrame(t.reader)
}

func (t *rwTransport) WriteFrame(f wire.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wire.EncodeFrame(t.writer, f)
}
