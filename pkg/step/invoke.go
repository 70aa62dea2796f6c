package step

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
)

// PanicCategory is the category reported for a callable that panicked.
const PanicCategory = "panic"

// InvocationError describes a failure raised by a step's callable.
type InvocationError struct {
	Category  string // error category shown to the caller
	Message   string
	Backtrace string // never empty
	Err       error
}

func (e *InvocationError) Error() string { return e.Message }

func (e *InvocationError) Unwrap() error { return e.Err }

// Categorizer lets step errors name their own category on the wire.
type Categorizer interface {
	Category() string
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Invoke calls the step's callable with already coerced arguments. Arity is
// not checked here. Any error or panic from the callable is returned as an
// *InvocationError.
func (d *Definition) Invoke(args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = &InvocationError{
				Category:  PanicCategory,
				Message:   cause.Error(),
				Backtrace: strings.TrimSpace(string(debug.Stack())),
				Err:       cause,
			}
		}
	}()

	if ferr := d.fn(args); ferr != nil {
		return newInvocationError(ferr)
	}
	return nil
}

func newInvocationError(err error) *InvocationError {
	var ie *InvocationError
	if stderrors.As(err, &ie) {
		return ie
	}
	return &InvocationError{
		Category:  category(err),
		Message:   err.Error(),
		Backtrace: backtrace(err),
		Err:       err,
	}
}

func category(err error) string {
	var c Categorizer
	if stderrors.As(err, &c) {
		if name := c.Category(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", errors.Cause(err))
}

// backtrace prefers the stack recorded when the error was created and falls
// back to the stack at the invocation boundary.
func backtrace(err error) string {
	var st stackTracer
	if !stderrors.As(err, &st) {
		st = errors.WithStack(err).(stackTracer)
	}
	return strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
}
