// Package random provides a uniformly-random SchedulingStrategy: the
// reference implementation of the pluggable strategy contract (spec.md §6).
package random

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/strategy"
)

// Strategy picks uniformly among the enabled operations at every
// scheduling point. Its per-iteration seed is derived deterministically
// from a base seed and the iteration number, so a run with the same base
// seed always explores the same sequence of iterations.
type Strategy struct {
	baseSeed uint64
	rng      *rand.Rand
}

// New creates a Strategy seeded from baseSeed.
func New(baseSeed uint64) *Strategy {
	s := &Strategy{baseSeed: baseSeed}
	s.InitializeNextIteration(0)
	return s
}

// InitializeNextIteration reseeds the strategy deterministically from the
// base seed and the iteration number by hash-then-truncate: SHA-256 of the
// base seed followed by the iteration number, first 8 bytes taken as the
// seed.
func (s *Strategy) InitializeNextIteration(iteration uint32) {
	h := sha256.New()
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], s.baseSeed)
	binary.BigEndian.PutUint32(buf[8:], iteration)
	h.Write(buf[:])
	sum := h.Sum(nil)
	seed := int64(binary.BigEndian.Uint64(sum[:8])) // #nosec G115 -- deterministic seeding, not security
	s.rng = rand.New(rand.NewSource(seed))          // #nosec G404 -- deterministic RNG for replay, not security
}

// Next picks uniformly among enabled.
func (s *Strategy) Next(enabled []*operation.ControlledOperation, _ strategy.Context) (uint64, error) {
	if len(enabled) == 0 {
		return 0, fmt.Errorf("random: Next called with no enabled operations")
	}
	return enabled[s.rng.Intn(len(enabled))].ID(), nil
}

// Description identifies the strategy for logs and coverage export.
func (s *Strategy) Description() string {
	return fmt.Sprintf("random(seed=%d)", s.baseSeed)
}

var _ strategy.SchedulingStrategy = (*Strategy)(nil)
