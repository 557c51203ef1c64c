package reduce_test

import (
	"testing"

	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/reduce"
	"github.com/NicoJuicy/coyote/scheduling"
)

func pointAt(reg *operation.Registry, parent uint64, point scheduling.Type, key *string) *operation.ControlledOperation {
	var op *operation.ControlledOperation
	if parent == operation.RootParentID {
		op = reg.CreateRoot()
	} else {
		op = reg.Create(parent)
	}
	op.SetStatus(operation.Enabled)
	op.RecordSchedulingPoint(point, key, nil, "site", 0)
	return op
}

func TestSharedStateReducer_NonReadWritePointsAreNeverReduced(t *testing.T) {
	r := reduce.NewSharedStateReducer()
	reg := operation.NewRegistry()

	key := "x"
	a := pointAt(reg, operation.RootParentID, scheduling.Default, nil)
	b := pointAt(reg, operation.RootParentID, scheduling.Read, &key)

	got := r.Reduce([]*operation.ControlledOperation{a, b}, a)
	if len(got) != 1 || got[0].ID() != a.ID() {
		t.Errorf("Reduce() = %v, want only the non-read/write op", ids(got))
	}
}

func TestSharedStateReducer_ReadOnlyKeysAreReducedTogether(t *testing.T) {
	r := reduce.NewSharedStateReducer()
	reg := operation.NewRegistry()

	key := "x"
	a := pointAt(reg, operation.RootParentID, scheduling.Read, &key)
	b := pointAt(reg, operation.RootParentID, scheduling.Read, &key)
	c := pointAt(reg, operation.RootParentID, scheduling.Read, &key)

	got := r.Reduce([]*operation.ControlledOperation{a, b, c}, a)
	if len(got) != 3 {
		t.Fatalf("Reduce() = %v, want all 3 (never written, all read-only)", ids(got))
	}
}

func TestSharedStateReducer_WrittenKeyDisablesReadOnlyReduction(t *testing.T) {
	r := reduce.NewSharedStateReducer()
	reg := operation.NewRegistry()

	key := "x"
	writer := pointAt(reg, operation.RootParentID, scheduling.Write, &key)
	r.Reduce([]*operation.ControlledOperation{writer}, writer)

	reg2 := operation.NewRegistry()
	otherKey := "y"
	a := pointAt(reg2, operation.RootParentID, scheduling.Read, &key)
	b := pointAt(reg2, operation.RootParentID, scheduling.Read, &key)
	c := pointAt(reg2, operation.RootParentID, scheduling.Read, &otherKey)

	// A singleton Reduce call (len(ops) == 1) must still fold the write into
	// write_accesses; only c's key was never written, so only c is read-only.
	got := r.Reduce([]*operation.ControlledOperation{a, b, c}, a)
	if len(got) != 1 || got[0].ID() != c.ID() {
		t.Errorf("Reduce() = %v, want only the read of %q (singleton write of %q must still be recorded)", ids(got), otherKey, key)
	}
}

func TestSharedStateReducer_InterleaveDisablesReduction(t *testing.T) {
	r := reduce.NewSharedStateReducer()
	reg := operation.NewRegistry()

	key := "x"
	a := pointAt(reg, operation.RootParentID, scheduling.Read, &key)
	b := pointAt(reg, operation.RootParentID, scheduling.Interleave, nil)

	got := r.Reduce([]*operation.ControlledOperation{a, b}, a)
	if len(got) != 2 {
		t.Errorf("Reduce() = %v, want both ops unchanged (Interleave present)", ids(got))
	}
}

func TestSharedStateReducer_InitializeNextIterationPreservesAccessSets(t *testing.T) {
	r := reduce.NewSharedStateReducer()
	reg := operation.NewRegistry()

	key := "x"
	writer := pointAt(reg, operation.RootParentID, scheduling.Write, &key)
	r.Reduce([]*operation.ControlledOperation{writer}, writer)

	r.InitializeNextIteration(1)

	reg2 := operation.NewRegistry()
	otherKey := "y"
	a := pointAt(reg2, operation.RootParentID, scheduling.Read, &key)
	b := pointAt(reg2, operation.RootParentID, scheduling.Read, &key)
	c := pointAt(reg2, operation.RootParentID, scheduling.Read, &otherKey)
	got := r.Reduce([]*operation.ControlledOperation{a, b, c}, a)
	if len(got) != 1 || got[0].ID() != c.ID() {
		t.Errorf("Reduce() = %v, want only the read of %q (write knowledge of %q must survive InitializeNextIteration)", ids(got), otherKey, key)
	}
}

func ids(ops []*operation.ControlledOperation) []uint64 {
	out := make([]uint64, len(ops))
	for i, o := range ops {
		out[i] = o.ID()
	}
	return out
}
