package sluice

import (
	"context"
	"fmt"
	"iter"

	"github.com/justapithecus/sluice/internal/scan"
)

// Partitions lazily resolves the dataset's partition paths by walking the
// remote namespace one dimension level at a time. Bound dimensions prune
// subtrees whose value their condition rejects; unbound dimensions expand to
// every listed child. The sequence is finite, yields paths in lexicographic
// order, and is not restartable once consumed.
//
// A dimension level with zero surviving children simply contributes no
// paths; an empty sequence is a normal result, not an error.
func (d *Dataset) Partitions(ctx context.Context) iter.Seq2[Partition, error] {
	levels := make([]scan.Level, len(d.schema))
	for i, name := range d.schema {
		level := scan.Level{Name: name}
		if cond, bound := d.conditions[name]; bound {
			level.Keep = cond.Match
		}
		levels[i] = level
	}

	walk := scan.Walk(ctx, d.store, d.rootPrefix(), levels)
	return func(yield func(Partition, error) bool) {
		for p, err := range walk {
			if err != nil {
				yield(Partition{}, fmt.Errorf("sluice: %w", err))
				return
			}
			if !yield(Partition{Prefix: p.Prefix, Values: p.Values}, nil) {
				return
			}
		}
	}
}

// resolvePartitions drains the partition walk into a slice, so sampling can
// see the full resolved set.
func (d *Dataset) resolvePartitions(ctx context.Context) ([]Partition, error) {
	var partitions []Partition
	for p, err := range d.Partitions(ctx) {
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}
