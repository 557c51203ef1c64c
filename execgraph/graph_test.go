package execgraph_test

import (
	"testing"

	"github.com/NicoJuicy/coyote/execgraph"
	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/scheduling"
)

func record(op *operation.ControlledOperation, callSite string) {
	op.RecordSchedulingPoint(scheduling.Default, nil, nil, callSite, 0)
}

// S1: a fresh root operation that hits a scheduling point with no newly
// visited call sites must synthesize a single "Test"-rooted node rather
// than produce an empty burst.
func TestGraph_Add_RootEmptyBurstFallsBackToSentinel(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()

	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	first, ok := g.FirstNodeForOp(root.ID())
	if !ok {
		t.Fatal("expected a node for root")
	}
	if first.CallSite != "Test" {
		t.Errorf("CallSite = %q, want \"Test\"", first.CallSite)
	}
	if g.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want 1", g.NodeCount())
	}
}

// S4: a single operation visiting ["A","B","A","C"] in one burst must
// produce four nodes joined by Invocation edges, with frequencies
// {A:2, B:1, C:1}.
func TestGraph_Add_SingleBurstFrequencies(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()

	for _, site := range []string{"A", "B", "A", "C"} {
		record(root, site)
	}
	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if g.NodeCount() != 4 {
		t.Fatalf("NodeCount() = %d, want 4", g.NodeCount())
	}
	edges := g.Edges()
	if len(edges) != 3 {
		t.Fatalf("len(Edges()) = %d, want 3", len(edges))
	}
	for _, e := range edges {
		if e.Category != execgraph.Invocation {
			t.Errorf("edge category = %v, want Invocation", e.Category)
		}
	}

	want := map[string]uint64{"A": 2, "B": 1, "C": 1}
	for site, freq := range want {
		if got := g.CallSiteFrequency(root.ID(), site); got != freq {
			t.Errorf("CallSiteFrequency(%q) = %d, want %d", site, got, freq)
		}
	}
}

// S5: a child operation's first node must attach to its parent's last node
// via a Creation edge.
func TestGraph_Add_ChildAttachesWithCreationEdge(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()
	record(root, "spawn")
	if err := g.Add(root); err != nil {
		t.Fatalf("Add(root) error = %v", err)
	}
	parentLast, _ := g.LastNodeForOp(root.ID())

	child := reg.Create(root.ID())
	record(child, "childSite")
	if err := g.Add(child); err != nil {
		t.Fatalf("Add(child) error = %v", err)
	}

	childFirst, ok := g.FirstNodeForOp(child.ID())
	if !ok {
		t.Fatal("expected a node for child")
	}

	found := false
	for _, e := range g.Edges() {
		if e.Category == execgraph.Creation && e.Source == parentLast.Index && e.Target == childFirst.Index {
			found = true
		}
	}
	if !found {
		t.Error("expected a Creation edge from parent's last node to child's first node")
	}
}

// A second Add for the same operation across two calls is joined by a Step
// edge, not an Invocation edge.
func TestGraph_Add_SubsequentBurstUsesStepEdge(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()

	record(root, "A")
	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	firstLast, _ := g.LastNodeForOp(root.ID())

	record(root, "B")
	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	secondFirst, _ := g.FirstNodeForOp(root.ID())
	_ = secondFirst

	var stepEdges int
	for _, e := range g.Edges() {
		if e.Category == execgraph.Step {
			stepEdges++
			if e.Source != firstLast.Index {
				t.Errorf("Step edge source = %v, want %v", e.Source, firstLast.Index)
			}
		}
	}
	if stepEdges != 1 {
		t.Errorf("stepEdges = %d, want 1", stepEdges)
	}
}

// Coverage map persists across Clear while per-iteration state resets.
func TestGraph_Clear_PreservesCoverageMap(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()

	record(root, "A")
	record(root, "B")
	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !g.HasCoverageEdge("A", "B") {
		t.Fatal("expected coverage edge A->B before Clear")
	}

	g.Clear()

	if g.NodeCount() != 0 {
		t.Errorf("NodeCount() after Clear = %d, want 0", g.NodeCount())
	}
	if _, ok := g.FirstNodeForOp(root.ID()); ok {
		t.Error("FirstNodeForOp should be empty after Clear")
	}
	if !g.HasCoverageEdge("A", "B") {
		t.Error("coverage map must survive Clear")
	}
}

// A child operation whose parent has no recorded node is a fatal invariant
// violation.
func TestGraph_Add_MissingParentNodeIsInvariantError(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()
	child := reg.Create(root.ID())
	record(child, "childSite")

	// root was never added, so it has no last node registered.
	err := g.Add(child)
	if err == nil {
		t.Fatal("expected an InvariantError")
	}
	if _, ok := err.(*execgraph.InvariantError); !ok {
		t.Errorf("err type = %T, want *execgraph.InvariantError", err)
	}
}

func TestGraph_LowestAndHighestCallSiteFrequency_TieBreakLexicographic(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()

	for _, site := range []string{"B", "A", "C"} {
		record(root, site)
	}
	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	lowest, ok := g.LowestCallSiteFrequencyForOperation(root.ID())
	if !ok || lowest != "A" {
		t.Errorf("LowestCallSiteFrequencyForOperation() = %q, want %q", lowest, "A")
	}
	highest, ok := g.HighestCallSiteFrequencyForOperation(root.ID())
	if !ok || highest != "A" {
		t.Errorf("HighestCallSiteFrequencyForOperation() = %q, want %q", highest, "A")
	}
}

func TestGraph_Snapshot_IsDetached(t *testing.T) {
	g := execgraph.New()
	reg := operation.NewRegistry()
	root := reg.CreateRoot()
	record(root, "A")
	if err := g.Add(root); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	snap := g.Snapshot()
	g.Clear()

	if snap.NodeCount() != 1 {
		t.Errorf("snapshot NodeCount() = %d, want 1 (unaffected by Clear on original)", snap.NodeCount())
	}
}
