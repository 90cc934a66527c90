package sluice

import (
	"math/rand/v2"
	"slices"
)

// -----------------------------------------------------------------------------
// Partition Sampling
// -----------------------------------------------------------------------------

// Partition sampling trades representativeness for speed: partitions vary
// wildly in size and record mix, so a sampled scan is good for prototyping,
// not for population estimates. Records logs a warning when a fraction below
// one is in effect.

// newSampleRand builds the RNG for one records run. Without an explicit
// seed the generator is seeded from the global source, so repeated runs over
// the same dimension space draw different subsets.
func newSampleRand(seed uint64, seeded bool) *rand.Rand {
	if !seeded {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, 0))
}

// samplePartitions keeps floor(fraction * len(partitions)) partitions chosen
// uniformly without replacement. The kept partitions stay in discovery
// order. fraction must already be validated to (0, 1]; 1 returns the input
// unchanged.
func samplePartitions(partitions []Partition, fraction float64, rng *rand.Rand) []Partition {
	if fraction >= 1 {
		return partitions
	}

	k := int(fraction * float64(len(partitions)))
	if k <= 0 {
		return nil
	}

	picked := rng.Perm(len(partitions))[:k]
	slices.Sort(picked)

	kept := make([]Partition, k)
	for i, idx := range picked {
		kept[i] = partitions[idx]
	}
	return kept
}
