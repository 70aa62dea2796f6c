package catalog

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/cukewire/pkg/step"
)

// Loader enumerates step definitions from some external source. How the
// source is discovered is the loader's business.
type Loader interface {
	Load(ctx context.Context) ([]*step.Definition, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]*step.Definition, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) ([]*step.Definition, error) { return f(ctx) }

// Static returns a loader over a fixed list.
func Static(defs ...*step.Definition) Loader {
	return LoaderFunc(func(context.Context) ([]*step.Definition, error) {
		return append([]*step.Definition(nil), defs...), nil
	})
}

// Multi concatenates loaders in order. The first failure aborts.
func Multi(loaders ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context) ([]*step.Definition, error) {
		var all []*step.Definition
		for i, l := range loaders {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			defs, err := l.Load(ctx)
			if err != nil {
				return nil, fmt.Errorf("loader %d: %w", i, err)
			}
			all = append(all, defs...)
		}
		return all, nil
	})
}

// Build runs a loader and returns the resulting catalog.
func Build(ctx context.Context, l Loader) (*Catalog, error) {
	defs, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load step definitions: %w", err)
	}
	return New(defs...)
}
