package wire

import "fmt"

// Kind classifies a failed request. Kinds are comparable with errors.Is:
//
//	errors.Is(err, wire.ArityMismatch)
type Kind int

const (
	UnrecognizedRequest Kind = iota + 1
	MalformedJSON
	MissingField
	UnknownStep
	ArityMismatch
	CoercionError
	InvocationError
)

var kindNames = map[Kind]string{
	UnrecognizedRequest: "UnrecognizedRequest",
	MalformedJSON:       "MalformedJson",
	MissingField:        "MissingField",
	UnknownStep:         "UnknownStep",
	ArityMismatch:       "ArityMismatch",
	CoercionError:       "CoercionError",
	InvocationError:     "InvocationError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error lets a Kind act as a sentinel.
func (k Kind) Error() string { return k.String() }

// Failure is a request that could not be served. Exception and Backtrace are
// only populated, and only encoded, for InvocationError.
type Failure struct {
	Kind      Kind
	Message   string
	Exception string
	Backtrace string
	Err       error
}

// Failf builds a failure of the given kind.
func Failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Is matches the failure's Kind.
func (f *Failure) Is(target error) bool {
	if f == nil {
		return false
	}
	k, ok := target.(Kind)
	return ok && k == f.Kind
}
