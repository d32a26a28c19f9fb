// Package payload implements the JSON payload format carried inside bencode
// frame string fields (args, value, ex-data). Frame encoding (bencode) and
// payload encoding (JSON) are orthogonal layers.
package payload

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var std = jsoniter.ConfigCompatibleWithStandardLibrary

// Encoder is the payload codec a Context advertises to the host via the
// describe frame's "format" field.
type Encoder struct{}

// New returns the JSON payload encoder.
func New() *Encoder { return &Encoder{} }

// Format is the name advertised in the describe frame.
func (*Encoder) Format() string { return "json" }

// Encode serializes v as a JSON payload string.
func (*Encoder) Encode(v any) (string, error) {
	b, err := std.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a JSON payload string into out.
func (*Encoder) Decode(s string, out any) error {
	if s == "" {
		s = "null"
	}
	return std.Unmarshal([]byte(s), out)
}

// DecodeArgs parses the "args" payload string into a slice of values. A
// missing/empty args string decodes to an empty slice, matching the
// dispatcher's "empty list if missing" rule.
func (e *Encoder) DecodeArgs(s string) ([]any, error) {
	if strings.TrimSpace(s) == "" {
		return []any{}, nil
	}
	var args []any
	if err := e.Decode(s, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// EncodeStatus encodes a status vector (e.g. []string{"done", "error"}).
func (*Encoder) EncodeStatus(status []string) (string, error) {
	b, err := std.Marshal(status)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsDict reports whether s decodes to a JSON object.
func (e *Encoder) IsDict(s string) bool {
	var m map[string]any
	return e.Decode(s, &m) == nil && m != nil
}

// EmptyDict returns the JSON encoding of an empty object.
func (*Encoder) EmptyDict() string { return "{}" }

// EmptyList returns the JSON encoding of an empty list.
func (*Encoder) EmptyList() string { return "[]" }

// MakeDict encodes a single-key JSON object {key: v}.
func (e *Encoder) MakeDict(key string, v any) (string, error) {
	return e.Encode(map[string]any{key: v})
}

// PendingSnapshot is the shape returned by the built-in pendings var: a
// mapping from invocation id to its recorded args and start timestamp.
type PendingSnapshot struct {
	Args      []any `json:"args"`
	StartedMS int64 `json:"start-ts"`
}

// EncodePendings encodes the pending-invocation introspection payload.
func (e *Encoder) EncodePendings(snapshots map[string]PendingSnapshot) (string, error) {
	return e.Encode(snapshots)
}
