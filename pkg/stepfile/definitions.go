package stepfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/cukewire/pkg/step"
)

// AssertionError is returned when a step's run expression evaluates to false.
type AssertionError struct {
	Step    string
	Message string
}

func (e *AssertionError) Error() string    { return e.Message }
func (e *AssertionError) Category() string { return "AssertionError" }

// EvalError is returned when a run expression fails at runtime.
type EvalError struct {
	Step string
	Err  error
}

func (e *EvalError) Error() string    { return fmt.Sprintf("evaluate step %s: %v", e.Step, e.Err) }
func (e *EvalError) Unwrap() error    { return e.Err }
func (e *EvalError) Category() string { return "EvalError" }

// Definitions turns a validated file into step definitions, in file order.
// Each definition is named "<meta.name>.<step.name>".
func Definitions(sf *File) ([]*step.Definition, error) {
	defs := make([]*step.Definition, 0, len(sf.Steps))
	for i, s := range sf.Steps {
		d, err := definition(sf.Meta.Name, s)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func definition(prefix string, s Step) (*step.Definition, error) {
	name := prefix + "." + s.Name

	types := make([]step.ParamType, len(s.Params))
	for i, p := range s.Params {
		t, ok := paramTypes[p.Type]
		if !ok {
			return nil, fmt.Errorf("step %s: unknown parameter type %q", name, p.Type)
		}
		types[i] = t
	}

	var program *vm.Program
	if s.Run != "" {
		var err error
		if program, err = compileRun(s); err != nil {
			return nil, fmt.Errorf("step %s: %w", name, err)
		}
	}

	failMsg := s.Fail
	if failMsg == "" {
		failMsg = fmt.Sprintf("step %s failed: %s", name, s.Run)
	}

	params := s.Params
	run := func(args []any) error {
		if program == nil {
			return nil
		}
		env := map[string]any{argsVar: args}
		for i, p := range params {
			env[p.Name] = args[i]
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return &EvalError{Step: name, Err: err}
		}
		if ok, _ := out.(bool); !ok {
			return &AssertionError{Step: name, Message: failMsg}
		}
		return nil
	}
	return step.New(name, s.Pattern, types, run)
}

// Loader reads step files and directories of step files. Directories are
// scanned (non-recursively) for *.steps.yaml in lexical order.
type Loader struct {
	Paths []string
}

// Load validates and loads every configured path in order. A step name
// (meta.name plus step name) may be defined by one file only.
func (l Loader) Load(ctx context.Context) ([]*step.Definition, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}

	var defs []*step.Definition
	origin := make(map[string]string)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sf, verrs := ValidateFile(path)
		if HasErrors(verrs) {
			return nil, fmt.Errorf("%s: %w", path, joinErrors(verrs))
		}
		fileDefs, err := Definitions(sf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, d := range fileDefs {
			if first, ok := origin[d.Name()]; ok {
				return nil, fmt.Errorf("%s: step %s is already defined in %s", path, d.Name(), first)
			}
			origin[d.Name()] = path
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

func (l Loader) files() ([]string, error) {
	var files []string
	for _, p := range l.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat step path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		for _, e := range entries {
			if !e.IsDir() && IsStepFile(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	return files, nil
}

func joinErrors(verrs []*ValidationError) error {
	var errs []error
	for _, e := range verrs {
		if e.Severity == "error" {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

// IsStepFile reports whether name looks like a step file.
func IsStepFile(name string) bool {
	return strings.HasSuffix(name, FileSuffix)
}
