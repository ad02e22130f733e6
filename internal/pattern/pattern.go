// Package pattern decides the order in which test files are visited
package pattern

import (
	"fmt"
	"math/rand/v2"

	"github.com/jessegalley/readbench/internal/entropy"
)

// pcgStream is mixed into the second PCG word so a single 64 bit seed
// still fills both halves of the generator state
const pcgStream = 0xda3e39cb94b95bdb

// Pattern is a permutation of the file indices 1..N
type Pattern struct {
	order []int
}

// Generate builds a uniformly shuffled permutation of 1..n, seeded from src.
// n == 0 yields an empty pattern.
func Generate(n int, src entropy.Source) (Pattern, error) {
	if n < 0 {
		return Pattern{}, fmt.Errorf("invalid file count %d", n)
	}
	if n == 0 {
		return Pattern{}, nil
	}

	seed, err := src.NextPermutationSeed()
	if err != nil {
		return Pattern{}, fmt.Errorf("failed to seed access pattern: %w", err)
	}

	rng := rand.New(rand.NewPCG(seed, seed^pcgStream))
	order := rng.Perm(n)
	for i := range order {
		order[i]++
	}

	return Pattern{order: order}, nil
}

// Len returns N
func (p Pattern) Len() int {
	return len(p.order)
}

// At returns the file index visited on iteration i. Iterations wrap
// around the permutation, so i may exceed N.
func (p Pattern) At(i int) int {
	return p.order[i%len(p.order)]
}

// Order returns a copy of the permutation
func (p Pattern) Order() []int {
	out := make([]int, len(p.order))
	copy(out, p.order)
	return out
}
