package stepfile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/cukewire/pkg/step"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // e.g. "steps[0].params[1].type"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile runs the validation pipeline on a step file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (patterns, parameters, expressions)
func ValidateFile(path string) (*File, []*ValidationError) {
	sf, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	errs := Validate(sf)
	if len(errs) > 0 {
		return sf, errs
	}
	return sf, nil
}

// Validate runs the semantic and domain phases on an already decoded file.
func Validate(sf *File) []*ValidationError {
	var errs []*ValidationError
	errs = append(errs, validateSemantic(sf)...)
	errs = append(errs, ValidateDomain(sf)...)
	return errs
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}
}

// validateSemantic validates the file against the generated JSON Schema.
func validateSemantic(sf *File) []*ValidationError {
	data, err := json.Marshal(sf)
	if err != nil {
		return semanticError("marshal for schema validation: %v", err)
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("steps-v0.json", schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile("steps-v0.json")
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semanticError("unmarshal document: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semanticError("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

var paramTypes = map[string]step.ParamType{
	"string": step.String,
	"int":    step.Int,
	"float":  step.Float,
}

// ValidateDomain performs the domain phase. An empty result means valid.
func ValidateDomain(sf *File) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}

	if sf.APIVersion != APIVersion {
		add("apiVersion", "unrecognized apiVersion %q, expected %q", sf.APIVersion, APIVersion)
	}
	if strings.TrimSpace(sf.Meta.Name) == "" {
		add("meta.name", "step file requires a name")
	}
	if len(sf.Steps) == 0 {
		add("steps", "step file must declare at least one step")
	}

	seen := make(map[string]int)
	for i, s := range sf.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if s.Name == "" {
			add(path+".name", "step requires a name")
		} else if prev, ok := seen[s.Name]; ok {
			add(path+".name", "duplicate step name %q (first at steps[%d])", s.Name, prev)
		} else {
			seen[s.Name] = i
		}

		re, err := step.CompilePattern(s.Pattern)
		if err != nil {
			add(path+".pattern", "invalid regex pattern %q: %v", s.Pattern, err)
		} else if groups := len(re.GetGroupNumbers()) - 1; groups != len(s.Params) {
			add(path+".params", "pattern has %d capture group(s) but %d param(s) are declared", groups, len(s.Params))
		}

		paramsOK := true
		names := make(map[string]bool)
		for j, p := range s.Params {
			ppath := fmt.Sprintf("%s.params[%d]", path, j)
			if _, ok := paramTypes[p.Type]; !ok {
				add(ppath+".type", "unknown parameter type %q: must be string, int, or float", p.Type)
				paramsOK = false
			}
			switch {
			case p.Name == "":
				add(ppath+".name", "parameter requires a name")
				paramsOK = false
			case p.Name == argsVar:
				add(ppath+".name", "parameter name %q is reserved", argsVar)
				paramsOK = false
			case names[p.Name]:
				add(ppath+".name", "duplicate parameter name %q", p.Name)
				paramsOK = false
			}
			names[p.Name] = true
		}

		if s.Run != "" && paramsOK {
			if _, err := compileRun(s); err != nil {
				add(path+".run", "%v", err)
			}
		}
		if s.Fail != "" && s.Run == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".fail",
				Message:  fmt.Sprintf("step %q has a fail message but no run expression; it always passes", s.Name),
				Severity: "warning",
			})
		}
	}
	return errs
}

// argsVar exposes the positional arguments to run expressions.
const argsVar = "args"

// typeEnv builds an expression environment with zero values of the declared
// parameter types, used for compile-time type checking.
func typeEnv(s Step) map[string]any {
	env := map[string]any{argsVar: []any{}}
	for _, p := range s.Params {
		switch paramTypes[p.Type] {
		case step.Int:
			env[p.Name] = 0
		case step.Float:
			env[p.Name] = 0.0
		default:
			env[p.Name] = ""
		}
	}
	return env
}

func compileRun(s Step) (*vm.Program, error) {
	program, err := expr.Compile(s.Run, expr.Env(typeEnv(s)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile run expression %q: %w", s.Run, err)
	}
	return program, nil
}
