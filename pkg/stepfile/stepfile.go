// Package stepfile loads step definitions declared in YAML files. Each step
// pairs a pattern with typed parameters and an expr-lang condition that is
// evaluated when the step is invoked.
package stepfile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// APIVersion is the only supported apiVersion.
const APIVersion = "steps/v0"

// FileSuffix marks step files inside a directory.
const FileSuffix = ".steps.yaml"

// File is the top-level structure of a step file.
type File struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion" jsonschema:"enum=steps/v0"`
	Meta       Meta   `yaml:"meta" json:"meta"`
	Steps      []Step `yaml:"steps" json:"steps" jsonschema:"minItems=1"`
}

// Meta names the step file. The name prefixes every step name.
type Meta struct {
	Name        string `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Step declares one step definition.
type Step struct {
	Name    string  `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Pattern string  `yaml:"pattern" json:"pattern"`
	Params  []Param `yaml:"params,omitempty" json:"params,omitempty"`
	// Run is a boolean expr-lang expression over the parameters. Empty always passes.
	Run string `yaml:"run,omitempty" json:"run,omitempty"`
	// Fail is the message reported when Run evaluates to false.
	Fail string `yaml:"fail,omitempty" json:"fail,omitempty"`
}

// Param is a named, typed step parameter bound to one capture group.
type Param struct {
	Name string `yaml:"name" json:"name" jsonschema:"pattern=^[A-Za-z_][A-Za-z0-9_]*$"`
	Type string `yaml:"type" json:"type" jsonschema:"enum=string,enum=int,enum=float"`
}

// LoadFile parses a step file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open step file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a step file, rejecting unknown fields.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sf File
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("decode step file: %w", err)
	}
	return &sf, nil
}
