// Package scan implements the lazy prefix walk that resolves a
// dimension-partitioned object-store namespace into concrete partition paths.
//
// These types are internal and not part of the public sluice API. The walker
// exposes listed facts only; condition semantics live in the public package.
package scan

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Level describes one dimension level of the walk.
type Level struct {
	// Name is the dimension name, used in error messages.
	Name string

	// Keep filters candidate values at this level. A nil Keep keeps every
	// listed value (wildcard). Keep sees the raw path component without
	// the trailing slash.
	Keep func(value string) bool
}

// Path is one fully resolved partition path.
type Path struct {
	// Prefix is the object-key prefix for this path, trailing slash included.
	Prefix string

	// Values holds the resolved value for each level, in level order.
	Values []string
}

// Lister lists the immediate child prefixes under a prefix, each with a
// trailing slash, in lexicographic order.
type Lister interface {
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
}

// Walk lazily expands the namespace under root, one level per entry in
// levels. A subtree whose value is rejected by its level's Keep is pruned
// without being listed further. The sequence is finite, yields paths in
// lexicographic order, and is not restartable once consumed.
//
// The walk stops on the first listing error or context cancellation,
// yielding the error as the final element.
func Walk(ctx context.Context, l Lister, root string, levels []Level) iter.Seq2[Path, error] {
	return func(yield func(Path, error) bool) {
		var walk func(prefix string, values []string, depth int) bool
		walk = func(prefix string, values []string, depth int) bool {
			if err := ctx.Err(); err != nil {
				yield(Path{}, err)
				return false
			}

			if depth == len(levels) {
				return yield(Path{Prefix: prefix, Values: slices.Clone(values)}, nil)
			}

			children, err := l.ListPrefixes(ctx, prefix)
			if err != nil {
				yield(Path{}, fmt.Errorf("list %q for dimension %q: %w", prefix, levels[depth].Name, err))
				return false
			}

			keep := levels[depth].Keep
			for _, child := range children {
				value := lastComponent(child)
				if keep != nil && !keep(value) {
					continue
				}
				if !walk(child, append(values, value), depth+1) {
					return false
				}
			}
			return true
		}

		walk(root, nil, 0)
	}
}

// lastComponent extracts the final path component of a prefix, without the
// trailing slash.
func lastComponent(prefix string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
