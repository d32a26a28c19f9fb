package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotuc/pod-go/internal/payload"
	"github.com/lotuc/pod-go/internal/wire"
)

func TestTranslateRequestDescribe(t *testing.T) {
	a := New(strings.NewReader(""), &strings.Builder{}, payload.New())
	f, err := a.translateRequest(rpcRequest{Method: methodDescribe, ID: json.RawMessage(`1`)})
	require.NoError(t, err)
	assert.Equal(t, "describe", f["op"])
}

func TestTranslateRequestShutdown(t *testing.T) {
	a := New(strings.NewReader(""), &strings.Builder{}, payload.New())
	f, err := a.translateRequest(rpcRequest{Method: methodShutdown})
	require.NoError(t, err)
	assert.Equal(t, "shutdown", f["op"])
}

func TestTranslateRequestLoadNS(t *testing.T) {
	a := New(strings.NewReader(""), &strings.Builder{}, payload.New())
	f, err := a.translateRequest(rpcRequest{
		Method: methodLoadNS,
		ID:     json.RawMessage(`7`),
		Params: json.RawMessage(`"my-ns"`),
	})
	require.NoError(t, err)
	assert.Equal(t, "load-ns", f["op"])
	assert.Equal(t, "my-ns", f["ns"])
	assert.NotEmpty(t, f["id"])
}

func TestTranslateRequestInvokeUsesMethodAsVarAndParamsAsArgs(t *testing.T) {
	a := New(strings.NewReader(""), &strings.Builder{}, payload.New())
	f, err := a.translateRequest(rpcRequest{
		Method: "test-pod/add-sync",
		ID:     json.RawMessage(`42`),
		Params: json.RawMessage(`[1,2,3]`),
	})
	require.NoError(t, err)
	assert.Equal(t, "invoke", f["op"])
	assert.Equal(t, "test-pod/add-sync", f["var"])
	assert.Equal(t, "[1,2,3]", f["args"])
}

func TestTranslateRequestMissingIDSynthesizesNotificationID(t *testing.T) {
	a := New(strings.NewReader(""), &strings.Builder{}, payload.New())
	f, err := a.translateRequest(rpcRequest{Method: "test-pod/echo", Params: json.RawMessage(`[]`)})
	require.NoError(t, err)
	assert.Contains(t, f["id"].(string), "notification-")
}

func TestReadFrameUnpacksBatch(t *testing.T) {
	in := `[{"jsonrpc":"2.0","id":1,"method":"test-pod/a","params":[]},` +
		`{"jsonrpc":"2.0","id":2,"method":"test-pod/b","params":[]}]` + "\n"
	a := New(strings.NewReader(in), &strings.Builder{}, payload.New())

	f1, err := a.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "test-pod/a", f1["var"])

	f2, err := a.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "test-pod/b", f2["var"])
}

func TestWriteFrameSuccessResponseCorrelatesOriginalID(t *testing.T) {
	var out strings.Builder
	a := New(strings.NewReader(""), &out, payload.New())
	a.rememberID("1", json.RawMessage(`99`))

	err := a.WriteFrame(wire.Frame{"id": "1", "value": "6", "status": []string{"done"}})
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &resp))
	assert.Equal(t, json.RawMessage(`99`), resp.ID)
	assert.Nil(t, resp.Error)
	assert.InDelta(t, 6, resp.Result, 0)
}

func TestWriteFrameErrorResponse(t *testing.T) {
	var out strings.Builder
	a := New(strings.NewReader(""), &out, payload.New())
	a.rememberID("1", json.RawMessage(`"abc"`))

	err := a.WriteFrame(wire.Frame{
		"id": "1", "ex-message": "boom", "ex-data": `{"x":1}`,
		"status": []string{"done", "error"},
	})
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &resp))
	assert.Equal(t, json.RawMessage(`"abc"`), resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", resp.Error.Message)
}

func TestWriteFramePartialIsNotification(t *testing.T) {
	var out strings.Builder
	a := New(strings.NewReader(""), &out, payload.New())

	err := a.WriteFrame(wire.Frame{"id": "1", "value": "0", "status": []string{}})
	require.NoError(t, err)

	var n rpcNotification
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &n))
	assert.Equal(t, methodNotification, n.Method)
	params := n.Params.(map[string]any)
	assert.Equal(t, "partial", params["type"])
}

func TestWriteFrameStdoutIsNotification(t *testing.T) {
	var out strings.Builder
	a := New(strings.NewReader(""), &out, payload.New())

	err := a.WriteFrame(wire.Frame{"id": "1", "out": "hello"})
	require.NoError(t, err)

	var n rpcNotification
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &n))
	params := n.Params.(map[string]any)
	assert.Equal(t, "stdout", params["type"])
	assert.Equal(t, "hello", params["value"])
}

func TestWriteFrameDescribeIsNotification(t *testing.T) {
	var out strings.Builder
	a := New(strings.NewReader(""), &out, payload.New())

	err := a.WriteFrame(wire.Frame{"format": "json", "ops": wire.Frame{}, "namespaces": []any{}})
	require.NoError(t, err)

	var n rpcNotification
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &n))
	params := n.Params.(map[string]any)
	assert.Equal(t, "describe", params["type"])
}
