// Package jsonrpc implements the optional JSON-RPC 2.0 front door described
// in spec §4.D: it translates JSON-RPC requests into native bencode-protocol
// frames on the read side, and native response frames into JSON-RPC
// responses/notifications on the write side. It implements
// transport.Transport, so the dispatcher (§4.G) drives it exactly like the
// Stdio or TCP transports — it never knows JSON-RPC is involved.
//
// The wire underneath JSON-RPC is newline-delimited JSON, carried over the
// same stdio/TCP byte streams the native transports use. This mirrors the
// reference implementation's AdaptedBencodeTransport, which wraps a
// JsonRpcTransport: the adapter here wraps a raw line-oriented reader/writer
// rather than replacing transport.Transport's contract.
package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/lotuc/pod-go/internal/payload"
	"github.com/lotuc/pod-go/internal/transport"
	"github.com/lotuc/pod-go/internal/wire"
)

const (
	methodDescribe     = "lotuc.babashka.pods/describe"
	methodShutdown     = "lotuc.babashka.pods/shutdown"
	methodLoadNS       = "lotuc.babashka.pods/load-ns"
	methodNotification = "lotuc.babashka.pods/notification"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

var nullID = json.RawMessage("null")

// Adapter implements transport.Transport by translating JSON-RPC 2.0 over a
// newline-delimited JSON stream into native frames and back.
type Adapter struct {
	reader *bufio.Reader
	writer io.Writer
	enc    *payload.Encoder

	writeMu sync.Mutex

	queueMu sync.Mutex
	queue   [][]byte // pending items from a batch request, not yet returned by ReadFrame

	idMu        sync.Mutex
	idByFrameID map[string]json.RawMessage

	notifCounter atomic.Int64
}

var _ transport.Transport = (*Adapter)(nil)

// New wraps r/w (normally stdin/stdout, or a TCP connection) as a
// transport.Transport speaking JSON-RPC 2.0.
func New(r io.Reader, w io.Writer, enc *payload.Encoder) *Adapter {
	return &Adapter{
		reader:      bufio.NewReader(r),
		writer:      w,
		enc:         enc,
		idByFrameID: map[string]json.RawMessage{},
	}
}

// ReadFrame reads the next JSON-RPC request (unpacking batch arrays one item
// at a time) and translates it into a native op frame.
func (a *Adapter) ReadFrame() (wire.Frame, error) {
	raw, err := a.nextRequest()
	if err != nil {
		return nil, err
	}
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode request: %w", err)
	}
	return a.translateRequest(req)
}

func (a *Adapter) nextRequest() ([]byte, error) {
	a.queueMu.Lock()
	if len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = a.queue[1:]
		a.queueMu.Unlock()
		return next, nil
	}
	a.queueMu.Unlock()

	line, err := a.reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	line = bytes.TrimSpace(line)

	if len(line) > 0 && line[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(line, &batch); err != nil {
			return nil, fmt.Errorf("jsonrpc: decode batch: %w", err)
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("jsonrpc: empty batch request")
		}
		a.queueMu.Lock()
		for _, item := range batch[1:] {
			a.queue = append(a.queue, []byte(item))
		}
		a.queueMu.Unlock()
		return []byte(batch[0]), nil
	}
	return line, nil
}

// translateRequest maps a decoded JSON-RPC request to a native op frame per
// the table in §4.D. Every invoke/load-ns frame gets an id; if the request
// carried none, one is synthesized as "notification-<N>" and the original
// (possibly absent) id is remembered so the eventual response still
// correlates.
func (a *Adapter) translateRequest(req rpcRequest) (wire.Frame, error) {
	frameID := a.frameID(req.ID)

	switch req.Method {
	case methodDescribe:
		return wire.Frame{"op": "describe"}, nil
	case methodShutdown:
		return wire.Frame{"op": "shutdown"}, nil
	case methodLoadNS:
		var ns string
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &ns); err != nil {
				return nil, fmt.Errorf("jsonrpc: load-ns params must be a string: %w", err)
			}
		}
		a.rememberID(frameID, req.ID)
		return wire.Frame{"op": "load-ns", "id": frameID, "ns": ns}, nil
	default:
		args := a.enc.EmptyList()
		if len(req.Params) > 0 {
			args = string(req.Params)
		}
		a.rememberID(frameID, req.ID)
		return wire.Frame{"op": "invoke", "id": frameID, "var": req.Method, "args": args}, nil
	}
}

func (a *Adapter) frameID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Sprintf("notification-%d", a.notifCounter.Add(1))
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func (a *Adapter) rememberID(frameID string, raw json.RawMessage) {
	if len(raw) == 0 {
		raw = nullID
	}
	a.idMu.Lock()
	a.idByFrameID[frameID] = raw
	a.idMu.Unlock()
}

func (a *Adapter) takeID(frameID string) json.RawMessage {
	a.idMu.Lock()
	defer a.idMu.Unlock()
	raw, ok := a.idByFrameID[frameID]
	if !ok {
		return nullID
	}
	delete(a.idByFrameID, frameID)
	return raw
}

// WriteFrame translates a native outbound frame into a JSON-RPC response or
// notification per the mapping in §4.D, and writes it as one newline-
// terminated JSON line.
func (a *Adapter) WriteFrame(f wire.Frame) error {
	if _, ok := f["namespaces"]; ok {
		return a.writeNotification(map[string]any{
			"type":       "describe",
			"format":     f["format"],
			"ops":        f["ops"],
			"namespaces": f["namespaces"],
		})
	}
	if out, ok := f["out"]; ok {
		return a.writeNotification(map[string]any{"type": "stdout", "id": f["id"], "value": out})
	}
	if errOut, ok := f["err"]; ok {
		return a.writeNotification(map[string]any{"type": "stderr", "id": f["id"], "value": errOut})
	}
	if status, ok := f["status"].([]string); ok {
		return a.writeInvokeFrame(f, status)
	}
	if _, ok := f["name"]; ok {
		// load-ns reply: {id, name, vars}
		id, _ := f["id"].(string)
		return a.writeResponse(a.takeID(id), map[string]any{"name": f["name"], "vars": f["vars"]}, nil)
	}
	return fmt.Errorf("jsonrpc: unrecognized native frame shape: %v", f)
}

func (a *Adapter) writeInvokeFrame(f wire.Frame, status []string) error {
	id, _ := f["id"].(string)

	done, isError := false, false
	for _, s := range status {
		if s == "done" {
			done = true
		}
		if s == "error" {
			isError = true
		}
	}

	if !done {
		var result any
		if v, ok := f["value"].(string); ok {
			_ = a.enc.Decode(v, &result)
		}
		return a.writeNotification(map[string]any{"type": "partial", "id": id, "result": result})
	}

	origID := a.takeID(id)
	if isError {
		exMessage, _ := f["ex-message"].(string)
		var exData any
		if v, ok := f["ex-data"].(string); ok {
			_ = a.enc.Decode(v, &exData)
		}
		return a.writeResponse(origID, nil, &rpcError{
			Code:    -32000,
			Message: exMessage,
			Data:    map[string]any{"ex-message": exMessage, "ex-data": exData},
		})
	}

	var result any
	if v, ok := f["value"].(string); ok {
		_ = a.enc.Decode(v, &result)
	}
	return a.writeResponse(origID, result, nil)
}

func (a *Adapter) writeResponse(id json.RawMessage, result any, errObj *rpcError) error {
	if errObj == nil && result == nil {
		// A success without a value still carries "result": null.
		result = json.RawMessage("null")
	}
	return a.writeLine(rpcResponse{JSONRPC: "2.0", ID: id, Result: result, Error: errObj})
}

func (a *Adapter) writeNotification(params any) error {
	return a.writeLine(rpcNotification{JSONRPC: "2.0", Method: methodNotification, Params: params})
}

func (a *Adapter) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := a.writer.Write(b); err != nil {
		return err
	}
	_, err = a.writer.Write([]byte{'\n'})
	return err
}
