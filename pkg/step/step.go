// Package step defines step definitions: regular-expression patterns bound to
// callables that the wire protocol can list and invoke by identifier.
package step

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
)

// ParamType names the semantic type a step parameter expects.
type ParamType string

// Built-in parameter types. Additional types can be registered with a coercer.
const (
	String ParamType = "string"
	Int    ParamType = "int"
	Float  ParamType = "float"
)

// Func is the callable behind a step definition. It receives arguments already
// coerced to the declared parameter types, in declaration order.
type Func func(args []any) error

// idNamespace scopes the name-based UUIDs used as step identifiers.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ormasoftchile/cukewire/step"))

// Definition is an immutable step definition.
type Definition struct {
	name     string
	source   string
	anchored *regexp2.Regexp
	params   []ParamType
	fn       Func
	id       string
}

// New builds a step definition. The identifier is derived from name, params
// and pattern, so the same triple always yields the same identifier.
func New(name, pattern string, params []ParamType, fn Func) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("step definition requires a name")
	}
	if fn == nil {
		return nil, fmt.Errorf("step %q: nil func", name)
	}
	if _, err := CompilePattern(pattern); err != nil {
		return nil, fmt.Errorf("step %q: compile pattern: %w", name, err)
	}
	anchored, err := CompilePattern(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("step %q: compile anchored pattern: %w", name, err)
	}
	for i, p := range params {
		if p == "" {
			return nil, fmt.Errorf("step %q: parameter %d has no type", name, i)
		}
	}

	d := &Definition{
		name:     name,
		source:   pattern,
		anchored: anchored,
		params:   append([]ParamType(nil), params...),
		fn:       fn,
	}
	d.id = identifier(name, d.params, pattern)
	return d, nil
}

// CompilePattern compiles a step pattern with .NET regular expression
// semantics, so lookaround, backreferences and atomic groups are available.
func CompilePattern(pattern string) (*regexp2.Regexp, error) {
	return regexp2.Compile(pattern, regexp2.None)
}

// Must is like New but panics on error. Meant for package-level registration.
func Must(d *Definition, err error) *Definition {
	if err != nil {
		panic(err)
	}
	return d
}

func identifier(name string, params []ParamType, pattern string) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = string(p)
	}
	key := name + "\x00" + strings.Join(types, ",") + "\x00" + pattern
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// ID returns the stable identifier.
func (d *Definition) ID() string { return d.id }

// Name returns the fully qualified name of the underlying callable.
func (d *Definition) Name() string { return d.name }

// Pattern returns the source text of the pattern.
func (d *Definition) Pattern() string { return d.source }

// Arity returns the number of declared parameters.
func (d *Definition) Arity() int { return len(d.params) }

// ParamTypes returns a copy of the declared parameter types.
func (d *Definition) ParamTypes() []ParamType {
	return append([]ParamType(nil), d.params...)
}

// Matches reports whether the pattern matches the whole of text.
func (d *Definition) Matches(text string) bool {
	ok, err := d.anchored.MatchString(text)
	return err == nil && ok
}

// CaptureGroups returns the capture groups of a full match, left to right.
// It returns nil when text does not match.
func (d *Definition) CaptureGroups(text string) []string {
	m, err := d.anchored.FindStringMatch(text)
	if err != nil || m == nil {
		return nil
	}
	groups := m.Groups()[1:]
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.String()
	}
	return out
}

// Equal reports whether two definitions share an identifier.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.id == other.id
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s /%s/", d.name, d.source)
}
