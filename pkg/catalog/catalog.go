// Package catalog holds the read-only, insertion-ordered set of step
// definitions a process serves, and the Loader boundary that produces it.
package catalog

import (
	"fmt"

	"github.com/ormasoftchile/cukewire/pkg/step"
)

// Catalog is an ordered set of step definitions indexed by identifier.
// It is never mutated after New returns, so lookups need no locking.
type Catalog struct {
	defs []*step.Definition
	byID map[string]*step.Definition
}

// Match is a definition whose pattern matched some text.
type Match struct {
	Definition *step.Definition
	Args       []string
}

// New builds a catalog in the given order. A definition whose identifier is
// already present is skipped; the first occurrence keeps its position.
func New(defs ...*step.Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]*step.Definition, 0, len(defs)),
		byID: make(map[string]*step.Definition, len(defs)),
	}
	for i, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("catalog: definition %d is nil", i)
		}
		if _, dup := c.byID[d.ID()]; dup {
			continue
		}
		c.byID[d.ID()] = d
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// Definitions returns the definitions in insertion order.
func (c *Catalog) Definitions() []*step.Definition {
	return append([]*step.Definition(nil), c.defs...)
}

// Lookup finds a definition by identifier.
func (c *Catalog) Lookup(id string) (*step.Definition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Contains reports whether an equal definition is present.
func (c *Catalog) Contains(d *step.Definition) bool {
	if d == nil {
		return false
	}
	_, ok := c.byID[d.ID()]
	return ok
}

// Match returns every definition whose pattern matches text, in catalog order.
func (c *Catalog) Match(text string) []Match {
	var out []Match
	for _, d := range c.defs {
		if args := d.CaptureGroups(text); args != nil {
			out = append(out, Match{Definition: d, Args: args})
		}
	}
	return out
}
