// Package reduce implements the shared-state reduction policy that tells
// the driver which enabled operations are redundant to interleave at a
// given scheduling point (spec.md §4.4).
package reduce

import (
	"sync"

	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/scheduling"
)

// IScheduleReducer decides, given the current scheduling point and the set
// of enabled operations, which of them are safe to prune from the choice
// set without losing coverage of distinct program behaviors.
type IScheduleReducer interface {
	// Reduce returns the subset of ops that the reduction rules permit
	// choosing among. Never returns an empty slice if ops is non-empty.
	Reduce(ops []*operation.ControlledOperation, current *operation.ControlledOperation) []*operation.ControlledOperation

	// InitializeNextIteration is called by the driver at the start of every
	// new iteration. For SharedStateReducer this is a no-op: accumulated
	// read/write knowledge must persist across iterations (spec.md §4.4).
	InitializeNextIteration(iteration uint32)
}

// SharedStateReducer implements spec.md §4.4: operations whose only
// externally visible action is a read of shared state known to have never
// been written (so far across all iterations) are treated as commutative
// with every other enabled operation, and collapsed to the read-only subset.
//
// read_accesses and write_accesses persist across iterations by design —
// InitializeNextIteration is a no-op.
type SharedStateReducer struct {
	mu sync.Mutex

	readAccesses  map[string]struct{}
	writeAccesses map[string]struct{}
}

// NewSharedStateReducer creates a SharedStateReducer with empty access sets.
func NewSharedStateReducer() *SharedStateReducer {
	return &SharedStateReducer{
		readAccesses:  make(map[string]struct{}),
		writeAccesses: make(map[string]struct{}),
	}
}

// InitializeNextIteration is a no-op: accumulated knowledge must persist
// (spec.md §4.4).
func (r *SharedStateReducer) InitializeNextIteration(uint32) {}

// Reduce implements spec.md §4.4 steps 1–6.
func (r *SharedStateReducer) Reduce(ops []*operation.ControlledOperation, current *operation.ControlledOperation) []*operation.ControlledOperation {
	// Step 1: operations at a non-read/write scheduling point are never
	// reduced by this reducer. An Interleave or Yield point anywhere in ops
	// takes precedence (step 4), so they are only returned alone without one.
	var nrw []*operation.ControlledOperation
	var reads, writes []*operation.ControlledOperation
	explicitInterleave := false
	for _, o := range ops {
		point := o.LastSchedulingPoint()
		if scheduling.IsInterleaveOrYield(point) {
			explicitInterleave = true
		}
		if !scheduling.IsReadOrWrite(point) {
			nrw = append(nrw, o)
			continue
		}
		if point == scheduling.Read {
			reads = append(reads, o)
		} else {
			writes = append(writes, o)
		}
	}
	if len(nrw) > 0 && !explicitInterleave {
		return nrw
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Step 3: fold this step's reads/writes into the persistent sets.
	for _, o := range reads {
		if key := o.LastAccessedSharedState(); key != nil {
			r.readAccesses[*key] = struct{}{}
		}
	}
	for _, o := range writes {
		if key := o.LastAccessedSharedState(); key != nil {
			r.writeAccesses[*key] = struct{}{}
		}
	}

	// Step 4: explicit interleaving disables reduction outright.
	if explicitInterleave {
		return ops
	}

	// Step 5: reads whose key has never been observed at a Write point.
	var readOnly []*operation.ControlledOperation
	for _, o := range reads {
		key := o.LastAccessedSharedState()
		if key == nil {
			continue
		}
		cmp := o.LastAccessedSharedStateComparer()
		if cmp == nil {
			cmp = operation.DefaultEquivalence
		}
		if !r.anyWrittenKeyEquals(*key, cmp) {
			readOnly = append(readOnly, o)
		}
	}

	// Step 6.
	if len(readOnly) > 0 {
		return readOnly
	}
	return ops
}

func (r *SharedStateReducer) anyWrittenKeyEquals(key string, cmp operation.Equivalence) bool {
	if _, ok := r.writeAccesses[key]; ok {
		return true
	}
	for w := range r.writeAccesses {
		if cmp.Equal(key, w) {
			return true
		}
	}
	return false
}
