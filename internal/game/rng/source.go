// Package rng provides the randomness abstraction used by the arena
// simulation: spawn points, AI targets, gun orientations and obstacle layout.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"
)

// Source is the randomness provider for the simulation.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Float64 returns a random float64 in [0, 1).
	Float64() float64
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// lockedSource wraps a math/rand/v2 generator with a mutex.
//
// Invariant: all access to r happens with mu held.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeeded returns a deterministic Source. Two sources built from the same
// seed yield the same sequence.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewSeeded(seed int64) Source {
	s := uint64(seed)
	return &lockedSource{r: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))}
}

// NewCryptoSeeded returns a Source seeded from crypto/rand.
//
// Panics with "rng: crypto/rand failure: <err>" if crypto/rand fails.
func NewCryptoSeeded() Source {
	var buf [16]byte
	if _, err := crand.Read(buf[:]); err != nil {
		panic("rng: crypto/rand failure: " + err.Error())
	}
	return &lockedSource{r: rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(buf[:8]),
		binary.LittleEndian.Uint64(buf[8:]),
	))}
}

// New returns NewSeeded(seed) for a non-zero seed and NewCryptoSeeded otherwise.
func New(seed int64) Source {
	if seed == 0 {
		return NewCryptoSeeded()
	}
	return NewSeeded(seed)
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Intn returns a random int in [0, n).
//
// Precondition: n > 0. Panics with "rng: Intn called with n <= 0" if n <= 0.
func (s *lockedSource) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Range returns a uniformly distributed value in [lo, hi).
//
// Precondition: lo <= hi.
func Range(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Angle returns a uniformly distributed angle in [0, 2π).
func Angle(src Source) float64 {
	return src.Float64() * 2 * math.Pi
}

// Chance reports true with probability p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}
