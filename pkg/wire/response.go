package wire

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ormasoftchile/cukewire/pkg/step"
)

const (
	okText     = "OK"
	failPrefix = "FAIL:"
)

// Response is one of OK, OK with a JSON payload, or a failure.
type Response struct {
	payload string
	failure *Failure
}

// OK is the plain success response.
func OK() Response { return Response{} }

// Payload is a success response carrying raw JSON, written without a prefix.
func Payload(data string) Response { return Response{payload: data} }

// Fail wraps a failure.
func Fail(f *Failure) Response { return Response{failure: f} }

// Failure returns the failure, or nil for successful responses.
func (r Response) Failure() *Failure { return r.failure }

// String encodes the response as a protocol line without the newline.
func (r Response) String() string {
	switch {
	case r.failure != nil:
		return failPrefix + encodeFailure(r.failure)
	case r.payload != "":
		return r.payload
	default:
		return okText
	}
}

type failureBody struct {
	Message   string `json:"message"`
	Exception string `json:"exception,omitempty"`
	Backtrace string `json:"backtrace,omitempty"`
}

func encodeFailure(f *Failure) string {
	body := failureBody{Message: f.Message}
	if f.Kind == InvocationError {
		body.Exception = f.Exception
		body.Backtrace = f.Backtrace
	}
	return marshal(body)
}

type listEntry struct {
	Pattern string `json:"pattern"`
	ID      string `json:"id"`
}

// Format renders step definitions as the list response: a JSON array of
// {"pattern", "id"} objects in the given order.
func Format(defs []*step.Definition) string {
	entries := make([]listEntry, len(defs))
	for i, d := range defs {
		entries[i] = listEntry{Pattern: d.Pattern(), ID: d.ID()}
	}
	return marshal(entries)
}

// marshal encodes without HTML escaping so patterns round-trip verbatim.
// Values are plain strings and slices of them, which always encode.
func marshal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
	return strings.TrimSuffix(buf.String(), "\n")
}
