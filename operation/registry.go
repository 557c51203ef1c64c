package operation

import "sync"

// Registry owns every ControlledOperation created during one iteration. The
// driver is its only user: it reads from it via Enabled/Get/All and passes
// the operations on to the reducer and execution graph (spec.md §2
// component 1).
type Registry struct {
	mu       sync.RWMutex
	ops      map[uint64]*ControlledOperation
	order    []uint64 // insertion order, for deterministic iteration
	nextID   uint64
	nextSeq  uint64
}

// NewRegistry creates an empty registry for one iteration.
func NewRegistry() *Registry {
	return &Registry{
		ops: make(map[uint64]*ControlledOperation),
	}
}

// CreateRoot allocates and registers the iteration's root operation.
func (r *Registry) CreateRoot() *ControlledOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	seq := r.nextSeq
	r.nextSeq++

	op := New(id, RootParentID, seq, true)
	r.ops[id] = op
	r.order = append(r.order, id)
	return op
}

// Create allocates and registers a non-root operation spawned by parentID.
func (r *Registry) Create(parentID uint64) *ControlledOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	seq := r.nextSeq
	r.nextSeq++

	op := New(id, parentID, seq, false)
	r.ops[id] = op
	r.order = append(r.order, id)
	return op
}

// Get returns the operation with the given id, or nil if it does not exist.
func (r *Registry) Get(id uint64) *ControlledOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[id]
}

// All returns every registered operation, in creation order.
func (r *Registry) All() []*ControlledOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ControlledOperation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.ops[id])
	}
	return out
}

// Enabled returns every operation currently in Enabled status, in creation order.
func (r *Registry) Enabled() []*ControlledOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ControlledOperation
	for _, id := range r.order {
		op := r.ops[id]
		if op.Status() == Enabled {
			out = append(out, op)
		}
	}
	return out
}

// AllCompleted reports whether every registered operation is Completed.
func (r *Registry) AllCompleted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.ops[id].Status() != Completed {
			return false
		}
	}
	return true
}

// AnyBlocked reports whether at least one registered operation is Blocked.
func (r *Registry) AnyBlocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.ops[id].Status() == Blocked {
			return true
		}
	}
	return false
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
