// Package wire implements the line-oriented protocol spoken with the test
// orchestrator: request grammar, response encoding, the step list format and
// a line pump for stdio-style transports.
package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// ListCommand requests the step definition list.
	ListCommand = "list_step_definitions"
	// InvokePrefix precedes the JSON payload of an invoke request.
	InvokePrefix = "invoke:"
)

// Request is either ListRequest or InvokeRequest.
type Request interface {
	isRequest()
}

// ListRequest asks for every step definition.
type ListRequest struct{}

// InvokeRequest asks for one step definition to be executed. A malformed
// args value does not fail ParseRequest; it is reported by Arguments, so the
// step lookup can run first.
type InvokeRequest struct {
	ID      string
	Args    []string
	argsErr error
}

// Arguments returns Args, or the MalformedJson failure for a bad args value.
func (r InvokeRequest) Arguments() ([]string, error) {
	if r.argsErr != nil {
		return nil, r.argsErr
	}
	return r.Args, nil
}

func (ListRequest) isRequest()   {}
func (InvokeRequest) isRequest() {}

// ParseRequest parses one protocol line. Errors are always *Failure.
func ParseRequest(raw string) (Request, error) {
	switch {
	case raw == ListCommand:
		return ListRequest{}, nil
	case strings.HasPrefix(raw, InvokePrefix):
		return parseInvoke(raw)
	default:
		return nil, Failf(UnrecognizedRequest, "Invalid request '%s'", raw)
	}
}

func parseInvoke(raw string) (Request, error) {
	body := []byte(strings.TrimPrefix(raw, InvokePrefix))

	var doc json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		relaxed, ok := relaxJSON(body)
		if !ok {
			return nil, malformed(raw, err.Error())
		}
		doc = relaxed
	}
	if !bytes.HasPrefix(bytes.TrimSpace(doc), []byte("{")) {
		return nil, malformed(raw, "payload must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, malformed(raw, err.Error())
	}

	idRaw, ok := fields["id"]
	if !ok || isNull(idRaw) {
		return nil, Failf(MissingField, "Missing 'id' in request")
	}
	var id string
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return nil, malformed(raw, "'id' must be a string")
	}

	args, err := parseArgs(raw, fields["args"])
	if err != nil {
		return InvokeRequest{ID: id, argsErr: err}, nil
	}
	return InvokeRequest{ID: id, Args: args}, nil
}

// parseArgs accepts strings as-is and numbers or booleans by their literal
// text. Absent or null means no arguments.
func parseArgs(raw string, data json.RawMessage) ([]string, error) {
	if len(data) == 0 || isNull(data) {
		return []string{}, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, malformed(raw, "'args' must be an array")
	}

	args := make([]string, len(elems))
	for i, e := range elems {
		e = bytes.TrimSpace(e)
		switch {
		case len(e) > 0 && e[0] == '"':
			if err := json.Unmarshal(e, &args[i]); err != nil {
				return nil, malformed(raw, err.Error())
			}
		case len(e) > 0 && (e[0] == '-' || (e[0] >= '0' && e[0] <= '9')):
			args[i] = string(e)
		case string(e) == "true" || string(e) == "false":
			args[i] = string(e)
		default:
			return nil, malformed(raw, "'args' elements must be strings, numbers or booleans")
		}
	}
	return args, nil
}

func isNull(data json.RawMessage) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

func malformed(raw, detail string) *Failure {
	return Failf(MalformedJSON, "Invalid json in request '%s': %s", raw, detail)
}
