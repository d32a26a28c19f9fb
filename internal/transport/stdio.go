package transport

import (
	"bufio"
	"io"
)

// Stdio is the default transport: frames are read from stdin and written to
// stdout. A write mutex serializes the dispatcher goroutine and any number
// of worker goroutines emitting callback frames concurrently.
type Stdio struct {
	rwTransport
}

// NewStdio builds a Stdio transport over the given reader/writer, normally
// os.Stdin and os.Stdout.
func NewStdio(in io.Reader, out io.Writer) *Stdio {
	return &Stdio{rwTransport{reader: bufio.NewReader(in), writer: out}}
}
