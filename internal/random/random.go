// Package random provides deterministic per-worker random sources derived
// from a shared master generator.
package random

import (
	"math/rand"
	"sync"
	"time"
)

// Master is the shared generator that seeds per-worker sources. It is safe
// for concurrent use.
type Master struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewMaster creates a master generator. A zero seed selects a time-based seed.
func NewMaster(seed int64) *Master {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Master{rnd: rand.New(rand.NewSource(seed))}
}

// Derive returns a new Source seeded from the next master value.
func (m *Master) Derive() *Source {
	m.mu.Lock()
	seed := m.rnd.Int63()
	m.mu.Unlock()
	return NewSource(seed)
}

// Source is a worker-owned generator. It is not safe for concurrent use.
type Source struct {
	seed int64
	rnd  *rand.Rand
}

// NewSource creates a Source with a fixed seed.
func NewSource(seed int64) *Source {
	return &Source{seed: seed, rnd: rand.New(rand.NewSource(seed))}
}

// Seed reports the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Int returns a non-negative pseudo-random int over the generator's full range.
func (s *Source) Int() int {
	return s.rnd.Int()
}

// Intn returns a pseudo-random int in [0,n). It returns 0 when n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.rnd.Intn(n)
}
