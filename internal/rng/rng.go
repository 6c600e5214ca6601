// Package rng provides the single random source threaded through an annealing run.
//
// A Source is not safe for concurrent use. Parallel restarts derive one
// independent stream per goroutine with Derive.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/rand"
)

// Source supplies uniform integers, shuffles and uniform reals from one PCG stream.
type Source struct {
	r    *rand.Rand
	seed uint64
}

// New creates a reproducible source. The same seed always yields the same stream.
func New(seed uint64) *Source {
	return &Source{
		r:    rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// NewEntropy creates a source seeded from the operating system entropy pool.
func NewEntropy() (*Source, error) {
	seed, err := EntropySeed()
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// FromSeed returns New(seed), or an entropy-seeded source when seed is 0.
func FromSeed(seed uint64) (*Source, error) {
	if seed == 0 {
		return NewEntropy()
	}
	return New(seed), nil
}

// EntropySeed reads a 64-bit seed from crypto/rand.
func EntropySeed() (uint64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read entropy seed: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Seed returns the seed this source was created with.
func (s *Source) Seed() uint64 {
	return s.seed
}

// IntRange returns a uniform integer in the inclusive range [lo, hi].
// When lo == hi no draw is consumed.
func (s *Source) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.r.Intn(hi-lo+1)
}

// Float64 returns a uniform real in [0, 1).
func (s *Source) Float64() float64 {
	return s.r.Float64()
}

// Shuffle permutes a uniformly in place (Fisher-Yates).
func (s *Source) Shuffle(a []int) {
	s.r.Shuffle(len(a), func(i, j int) {
		a[i], a[j] = a[j], a[i]
	})
}

// Derive returns an independent stream for the given stream id.
// The child seed mixes the parent seed and the stream id with a SplitMix64
// finalizer, so derivation does not advance the parent.
func (s *Source) Derive(stream uint64) *Source {
	return New(deriveSeed(s.seed, stream))
}

func deriveSeed(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
