package step

import (
	"fmt"
	"reflect"
	"runtime"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()

	kindTypes = map[reflect.Kind]ParamType{
		reflect.String:  String,
		reflect.Int:     Int,
		reflect.Float64: Float,
	}
)

// FromFunc builds a definition from an ordinary Go function. Parameters of
// type string, int and float64 map to String, Int and Float. The function may
// return nothing or a single error. The name is the function's fully
// qualified name, so the same function and pattern always share an identifier.
func FromFunc(pattern string, fn any) (*Definition, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("step %q: expected a func, got %T", pattern, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("step %q: variadic funcs are not supported", pattern)
	}

	name := runtime.FuncForPC(v.Pointer()).Name()

	params := make([]ParamType, t.NumIn())
	for i := range params {
		pt, ok := kindTypes[t.In(i).Kind()]
		if !ok || t.In(i).PkgPath() != "" {
			return nil, fmt.Errorf("step %s: unsupported parameter type %s at position %d", name, t.In(i), i)
		}
		params[i] = pt
	}

	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
	default:
		return nil, fmt.Errorf("step %s: func must return nothing or error", name)
	}

	call := func(args []any) error {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			in[i] = reflect.ValueOf(a)
		}
		out := v.Call(in)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
	return New(name, pattern, params, call)
}
