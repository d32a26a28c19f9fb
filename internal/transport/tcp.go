package transport

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/lotuc/pod-go/internal/wire"
)

// TCP is the socket transport selected when BABASHKA_POD_TRANSPORT=socket.
// On construction it binds a port (ephemeral unless preferredPort is
// nonzero) and advertises it to the host via a ".babashka-pod-<pid>.port"
// file in workDir. The first ReadFrame/WriteFrame call blocks until the
// host connects; every call after that reuses the single accepted
// connection.
type TCP struct {
	listener net.Listener
	portFile string

	acceptOnce sync.Once
	acceptErr  error
	conn       net.Conn
	reader     *bufio.Reader

	writeMu sync.Mutex
}

// NewTCP binds a TCP listener and writes the port file. preferredPort of 0
// lets the OS choose a port.
func NewTCP(preferredPort int, workDir string) (*TCP, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferredPort))
	if err != nil {
		return nil, errors.Wrap(err, "transport: tcp listen")
	}

	port := l.Addr().(*net.TCPAddr).Port
	portFile := filepath.Join(workDir, fmt.Sprintf(".babashka-pod-%d.port", os.Getpid()))
	if err := os.WriteFile(portFile, []byte(strconv.Itoa(port)+"\n"), 0o644); err != nil {
		l.Close()
		return nil, errors.Wrap(err, "transport: write port file")
	}

	return &TCP{listener: l, portFile: portFile}, nil
}

// Port returns the bound port. Safe to call any time after NewTCP returns.
func (t *TCP) Port() int {
	return t.listener.Addr().(*net.TCPAddr).Port
}

func (t *TCP) ensureConn() error {
	t.acceptOnce.Do(func() {
		conn, err := t.listener.Accept()
		if err != nil {
			t.acceptErr = errors.Wrap(err, "transport: tcp accept")
			return
		}
		t.conn = conn
		t.reader = bufio.NewReader(conn)
	})
	return t.acceptErr
}

func (t *TCP) ReadFrame() (wire.Frame, error) {
	if err := t.ensureConn(); err != nil {
		return nil, err
	}
	return wire.DecodeFrame(t.reader)
}

func (t *TCP) WriteFrame(f wire.Frame) error {
	if err := t.ensureConn(); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return wire.EncodeFrame(t.conn, f)
}

// Close closes the connection and listener and removes the port file. It is
// the caller's responsibility to invoke this from the process's cleanup path
// (normal shutdown or a signal handler) since this package does not
// register its own at-exit hook.
func (t *TCP) Close() error {
	os.Remove(t.portFile)
	if t.conn != nil {
		t.conn.Close()
	}
	return t.listener.Close()
}
