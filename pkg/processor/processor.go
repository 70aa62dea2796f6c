// Package processor turns raw protocol requests into step invocations and
// protocol responses.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/ormasoftchile/cukewire/pkg/catalog"
	"github.com/ormasoftchile/cukewire/pkg/coerce"
	"github.com/ormasoftchile/cukewire/pkg/step"
	"github.com/ormasoftchile/cukewire/pkg/wire"
)

// Processor serves list and invoke requests against a fixed catalog.
// It keeps no per-request state and is safe for concurrent use as long as
// the step callables themselves are.
type Processor struct {
	catalog *catalog.Catalog
	coercer *coerce.Coercer
	logger  *log.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCoercer replaces the default argument coercer.
func WithCoercer(c *coerce.Coercer) Option {
	return func(p *Processor) {
		if c != nil {
			p.coercer = c
		}
	}
}

// New returns a processor over cat.
func New(cat *catalog.Catalog, opts ...Option) *Processor {
	p := &Processor{
		catalog: cat,
		coercer: coerce.New(),
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromLoader builds the catalog with l and returns a processor over it.
func NewFromLoader(ctx context.Context, l catalog.Loader, opts ...Option) (*Processor, error) {
	cat, err := catalog.Build(ctx, l)
	if err != nil {
		return nil, err
	}
	return New(cat, opts...), nil
}

// Catalog returns the catalog being served.
func (p *Processor) Catalog() *catalog.Catalog { return p.catalog }

// Process handles one raw request and returns the encoded response line.
func (p *Processor) Process(raw string) string {
	return p.Handle(raw).String()
}

// Handle handles one raw request. Every failure, including a panicking step,
// comes back as a failure response.
func (p *Processor) Handle(raw string) wire.Response {
	req, err := wire.ParseRequest(raw)
	if err != nil {
		return p.fail(err)
	}

	switch r := req.(type) {
	case wire.ListRequest:
		p.logger.Debug("list step definitions", "count", p.catalog.Len())
		return wire.Payload(wire.Format(p.catalog.Definitions()))
	case wire.InvokeRequest:
		if err := p.invoke(r); err != nil {
			return p.fail(err)
		}
		p.logger.Debug("step passed", "id", r.ID)
		return wire.OK()
	default:
		return p.fail(wire.Failf(wire.UnrecognizedRequest, "Invalid request '%s'", raw))
	}
}

func (p *Processor) invoke(r wire.InvokeRequest) error {
	def, ok := p.catalog.Lookup(r.ID)
	if !ok {
		return wire.Failf(wire.UnknownStep, "Could not find step with id '%s'", r.ID)
	}

	raw, err := r.Arguments()
	if err != nil {
		return err
	}
	if len(raw) != def.Arity() {
		return wire.Failf(wire.ArityMismatch, "Expected %d argument(s); got %d", def.Arity(), len(raw))
	}

	args, err := p.coercer.CoerceAll(raw, def.ParamTypes())
	if err != nil {
		return &wire.Failure{Kind: wire.CoercionError, Message: err.Error(), Err: err}
	}

	p.logger.Debug("invoking step", "id", r.ID, "name", def.Name(), "args", len(args))
	if err := def.Invoke(args); err != nil {
		var ie *step.InvocationError
		if !errors.As(err, &ie) {
			ie = &step.InvocationError{Category: fmt.Sprintf("%T", err), Message: err.Error(), Backtrace: def.Name(), Err: err}
		}
		return &wire.Failure{
			Kind:      wire.InvocationError,
			Message:   ie.Message,
			Exception: ie.Category,
			Backtrace: ie.Backtrace,
			Err:       ie,
		}
	}
	return nil
}

func (p *Processor) fail(err error) wire.Response {
	var f *wire.Failure
	if !errors.As(err, &f) {
		f = &wire.Failure{Kind: wire.UnrecognizedRequest, Message: err.Error(), Err: err}
	}
	p.logger.Debug("request failed", "kind", f.Kind, "message", f.Message)
	return wire.Fail(f)
}
