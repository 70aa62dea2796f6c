// Package coerce converts textual step arguments into the typed values a step
// definition declares.
package coerce

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ormasoftchile/cukewire/pkg/step"
)

// ErrUnsupportedType is wrapped by errors for parameter types that have no
// registered conversion.
var ErrUnsupportedType = errors.New("unsupported parameter type")

// Func converts one raw argument.
type Func func(raw string) (any, error)

// Error reports a failed conversion of one positional argument.
type Error struct {
	Index int
	Type  step.ParamType
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot convert argument %d %q to %s: %v", e.Index, e.Value, e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Coercer holds the conversion table. It is immutable once built and safe for
// concurrent use.
type Coercer struct {
	funcs map[step.ParamType]Func
}

// Option customizes a Coercer.
type Option func(*Coercer)

// WithType registers (or replaces) the conversion for t.
func WithType(t step.ParamType, fn Func) Option {
	return func(c *Coercer) {
		c.funcs[t] = fn
	}
}

// New returns a coercer for the built-in types plus any registered by opts.
func New(opts ...Option) *Coercer {
	c := &Coercer{funcs: map[step.ParamType]Func{
		step.String: toString,
		step.Int:    toInt,
		step.Float:  toFloat,
	}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Coerce converts one raw value to type t.
func (c *Coercer) Coerce(raw string, t step.ParamType) (any, error) {
	fn, ok := c.funcs[t]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedType, t)
	}
	return fn(raw)
}

// CoerceAll converts raw positionally against types, left to right, and
// stops at the first failure. Lengths must already agree.
func (c *Coercer) CoerceAll(raw []string, types []step.ParamType) ([]any, error) {
	if len(raw) != len(types) {
		return nil, fmt.Errorf("coerce: %d value(s) for %d type(s)", len(raw), len(types))
	}
	out := make([]any, len(raw))
	for i, r := range raw {
		v, err := c.Coerce(r, types[i])
		if err != nil {
			return nil, &Error{Index: i, Type: types[i], Value: r, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

func toString(raw string) (any, error) { return raw, nil }

func toInt(raw string) (any, error) {
	return strconv.Atoi(raw)
}

var decimalFloat = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?$`)

// toFloat accepts plain decimal notation only; strconv alone would also take
// "Inf", "NaN" and hex floats.
func toFloat(raw string) (any, error) {
	if !decimalFloat.MatchString(raw) {
		return nil, &strconv.NumError{Func: "ParseFloat", Num: raw, Err: strconv.ErrSyntax}
	}
	return strconv.ParseFloat(raw, 64)
}
