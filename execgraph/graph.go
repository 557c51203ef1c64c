// Package execgraph implements the execution graph recorder: an append-only
// DAG over operations × call-sites that records per-operation call-site
// frequencies for one iteration (reset by Clear) and a coverage map that
// survives Clear (spec.md §3, §4.3). Nodes and edges live in a flat arena, referenced by index rather
// than by pointer, so the graph has no cyclic back-references and is
// trivial to snapshot or serialize (spec.md §9 design note).
package execgraph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/NicoJuicy/coyote/operation"
)

// EdgeCategory classifies why an edge was added (spec.md §3).
type EdgeCategory int

const (
	// Creation connects a spawning operation's last node to the first node
	// of a newly observed operation.
	Creation EdgeCategory = iota
	// Invocation connects two consecutive nodes of the same operation
	// produced within the same Add call (a burst of newly visited call sites).
	Invocation
	// Step connects the previous last node of an operation to the first
	// node of a newly added burst for that operation, across Add calls.
	Step
)

// String renders the category for logs.
func (c EdgeCategory) String() string {
	switch c {
	case Creation:
		return "Creation"
	case Invocation:
		return "Invocation"
	case Step:
		return "Step"
	default:
		return "Unknown"
	}
}

// NodeIndex identifies a Node within a Graph's arena.
type NodeIndex int32

// NoNode is the sentinel NodeIndex meaning "no node".
const NoNode NodeIndex = -1

// EdgeIndex identifies an Edge within a Graph's arena.
type EdgeIndex int32

// NoEdge is the sentinel EdgeIndex meaning "no edge".
const NoEdge EdgeIndex = -1

// Node is one recorded (operation, call-site) event.
type Node struct {
	Index               NodeIndex
	Operation           uint64
	SequenceID          uint64
	CallSite            string
	HashedProgramState  int32
	InEdge               EdgeIndex // advisory; see spec.md §9 — authoritative structure is OutEdges
	OutEdges             []EdgeIndex
}

// Edge connects two nodes.
type Edge struct {
	Source   NodeIndex
	Target   NodeIndex
	Category EdgeCategory
}

// InvariantError reports a graph invariant violation (e.g. a parent
// operation's last node could not be found when one was expected). Per
// spec.md §7, this is fatal to the run.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return "execution graph invariant violated: " + e.Message }

// Graph is the execution graph recorder (spec.md §3, §4.3).
//
// nodes/edges and the per-operation maps are ephemeral: they are cleared at
// the end of every iteration by Clear. coverageMap survives Clear and
// persists for the lifetime of the Graph.
type Graph struct {
	mu sync.Mutex

	nodes []Node
	edges []Edge

	firstNodeForOp           map[uint64]NodeIndex
	lastNodeForOp            map[uint64]NodeIndex
	lastVisitedCallSiteIndex map[uint64]int
	callSiteFrequencies      map[uint64]map[string]uint64

	coverageMap map[string]map[string]struct{}
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		firstNodeForOp:           make(map[uint64]NodeIndex),
		lastNodeForOp:            make(map[uint64]NodeIndex),
		lastVisitedCallSiteIndex: make(map[uint64]int),
		callSiteFrequencies:      make(map[uint64]map[string]uint64),
		coverageMap:              make(map[string]map[string]struct{}),
	}
}

// rootSentinelCallSite is used as the synthesized call site for a root
// operation's first, empty burst (spec.md §4.3 step 3, scenario S1).
const rootSentinelCallSite = "Test"

// Add records op's most recent scheduling point, implementing spec.md
// §4.3 steps 1–7. It must be called by the driver exactly once per
// scheduling point, after the operation's visited-call-site list has
// already been extended to include the new point's call site.
func (g *Graph) Add(op *operation.ControlledOperation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	opID := op.ID()

	// Step 1: ensure a frequency map exists for op.
	if _, ok := g.callSiteFrequencies[opID]; !ok {
		g.callSiteFrequencies[opID] = make(map[string]uint64)
	}

	visited := op.VisitedCallSites()
	lastIdx := g.lastVisitedCallSiteIndex[opID] // zero value 0 is correct default

	var burstSites []string
	consumedNewSites := false
	if lastIdx < len(visited) {
		burstSites = append(burstSites, visited[lastIdx:]...)
		consumedNewSites = true
	} else {
		// Step 3: empty burst — synthesize one fallback node.
		site, err := g.fallbackCallSite(op, visited)
		if err != nil {
			return err
		}
		burstSites = []string{site}
	}

	// Build burst nodes, connecting consecutive nodes with Invocation edges.
	firstBurstIdx := NoNode
	var prevIdx NodeIndex = NoNode
	for _, site := range burstSites {
		idx := NodeIndex(len(g.nodes))
		g.nodes = append(g.nodes, Node{
			Index:              idx,
			Operation:          opID,
			SequenceID:         op.SequenceID(),
			CallSite:           site,
			HashedProgramState: op.LastHashedProgramState(),
			InEdge:             NoEdge,
		})
		if firstBurstIdx == NoNode {
			firstBurstIdx = idx
		}
		if prevIdx != NoNode {
			g.addEdge(prevIdx, idx, Invocation)
		}
		prevIdx = idx
	}
	lastBurstIdx := prevIdx

	// Step 4: attach the burst to the prior graph, if any.
	firstSighting := false
	if len(g.nodes) > 0 {
		if _, known := g.lastNodeForOp[opID]; !known {
			firstSighting = true
			if !op.IsRoot() {
				parentLast, ok := g.lastNodeForOp[op.ParentID()]
				if !ok {
					return &InvariantError{Message: fmt.Sprintf(
						"operation %d has no registered parent node for parent %d", opID, op.ParentID())}
				}
				g.addEdge(parentLast, firstBurstIdx, Creation)
			}
			// Root's genesis burst has no attaching edge.
		} else {
			prior := g.lastNodeForOp[opID]
			g.addEdge(prior, firstBurstIdx, Step)
		}
	}

	// Step 5: update identity maps.
	if firstSighting {
		g.firstNodeForOp[opID] = firstBurstIdx
	}
	g.lastNodeForOp[opID] = lastBurstIdx
	if consumedNewSites {
		g.lastVisitedCallSiteIndex[opID] = len(visited)
	}

	// Step 7: frequency bookkeeping for every node added this call.
	for _, site := range burstSites {
		g.callSiteFrequencies[opID][site]++
	}

	return nil
}

// fallbackCallSite computes the synthesized call site for an empty burst
// (spec.md §4.3 step 3).
func (g *Graph) fallbackCallSite(op *operation.ControlledOperation, visited []string) (string, error) {
	if len(visited) > 0 {
		return visited[len(visited)-1], nil
	}
	if op.IsRoot() {
		return rootSentinelCallSite, nil
	}
	parentLast, ok := g.lastNodeForOp[op.ParentID()]
	if !ok {
		return "", &InvariantError{Message: fmt.Sprintf(
			"operation %d has no visited call sites and no parent node to fall back to", op.ID())}
	}
	return g.nodes[parentLast].CallSite, nil
}

// addEdge appends an edge, wires it into the source's OutEdges and the
// target's InEdge (last-writer-wins, spec.md §9), and updates the coverage
// map per spec.md §4.3 step 6.
func (g *Graph) addEdge(source, target NodeIndex, category EdgeCategory) EdgeIndex {
	idx := EdgeIndex(len(g.edges))
	g.edges = append(g.edges, Edge{Source: source, Target: target, Category: category})

	g.nodes[source].OutEdges = append(g.nodes[source].OutEdges, idx)
	g.nodes[target].InEdge = idx

	srcSite := g.nodes[source].CallSite
	dstSite := g.nodes[target].CallSite
	if category == Creation || category == Invocation || srcSite != dstSite {
		g.recordCoverage(srcSite, dstSite)
	}
	return idx
}

func (g *Graph) recordCoverage(from, to string) {
	set, ok := g.coverageMap[from]
	if !ok {
		set = make(map[string]struct{})
		g.coverageMap[from] = set
	}
	set[to] = struct{}{}
}

// FirstNodeForOp returns the first recorded node for opID and true, or the
// zero Node and false if opID has no recorded nodes this iteration.
func (g *Graph) FirstNodeForOp(opID uint64) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.firstNodeForOp[opID]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// LastNodeForOp returns the most recently recorded node for opID and true,
// or the zero Node and false if opID has no recorded nodes this iteration.
func (g *Graph) LastNodeForOp(opID uint64) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.lastNodeForOp[opID]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// CallSiteFrequency returns how many times callSite has been recorded for
// opID this iteration, or 0 if never.
func (g *Graph) CallSiteFrequency(opID uint64, callSite string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callSiteFrequencies[opID][callSite]
}

// LowestCallSiteFrequencyForOperation returns the call site with the
// smallest recorded frequency for opID. Ties break lexicographically
// ascending on the call site string (spec.md §9 Open Question, pinned per
// DESIGN.md).
func (g *Graph) LowestCallSiteFrequencyForOperation(opID uint64) (string, bool) {
	return g.extremeCallSiteFrequency(opID, false)
}

// HighestCallSiteFrequencyForOperation returns the call site with the
// largest recorded frequency for opID. Ties break lexicographically
// ascending on the call site string (spec.md §9 Open Question, pinned per
// DESIGN.md).
func (g *Graph) HighestCallSiteFrequencyForOperation(opID uint64) (string, bool) {
	return g.extremeCallSiteFrequency(opID, true)
}

func (g *Graph) extremeCallSiteFrequency(opID uint64, highest bool) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	freqs := g.callSiteFrequencies[opID]
	if len(freqs) == 0 {
		return "", false
	}

	sites := make([]string, 0, len(freqs))
	for site := range freqs {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	best := sites[0]
	for _, site := range sites[1:] {
		if highest && freqs[site] > freqs[best] {
			best = site
		} else if !highest && freqs[site] < freqs[best] {
			best = site
		}
	}
	return best, true
}

// CoverageEdges returns every call-site transition recorded so far across
// the whole test run (the coverage map), as a sorted-for-determinism view:
// target call sites for a given source are returned sorted ascending.
func (g *Graph) CoverageEdges() map[string][]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string][]string, len(g.coverageMap))
	for src, targets := range g.coverageMap {
		list := make([]string, 0, len(targets))
		for dst := range targets {
			list = append(list, dst)
		}
		sort.Strings(list)
		out[src] = list
	}
	return out
}

// HasCoverageEdge reports whether the transition from→to has ever been recorded.
func (g *Graph) HasCoverageEdge(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.coverageMap[from][to]
	return ok
}

// NodeCount returns the number of nodes recorded so far this iteration.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Nodes returns a copy of every node recorded so far this iteration, in
// the total order Add calls were made.
func (g *Graph) Nodes() []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns a copy of every edge recorded so far this iteration.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Clear resets every per-iteration field. coverageMap is left untouched: it
// accumulates for the duration of the whole test run (spec.md §3 lifecycle).
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = nil
	g.edges = nil
	g.firstNodeForOp = make(map[uint64]NodeIndex)
	g.lastNodeForOp = make(map[uint64]NodeIndex)
	g.lastVisitedCallSiteIndex = make(map[uint64]int)
	g.callSiteFrequencies = make(map[uint64]map[string]uint64)
}

// Snapshot returns a deep, detached copy of the graph's current state,
// including the persistent coverage map. Callers must only invoke this
// while the driver is quiescent between scheduling points (spec.md §5);
// the returned Graph shares no memory with g and can be inspected freely.
func (g *Graph) Snapshot() *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	cp := New()
	cp.nodes = make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		cp.nodes[i] = n
		cp.nodes[i].OutEdges = append([]EdgeIndex(nil), n.OutEdges...)
	}
	cp.edges = append([]Edge(nil), g.edges...)
	for k, v := range g.firstNodeForOp {
		cp.firstNodeForOp[k] = v
	}
	for k, v := range g.lastNodeForOp {
		cp.lastNodeForOp[k] = v
	}
	for k, v := range g.lastVisitedCallSiteIndex {
		cp.lastVisitedCallSiteIndex[k] = v
	}
	for opID, freqs := range g.callSiteFrequencies {
		m := make(map[string]uint64, len(freqs))
		for site, n := range freqs {
			m[site] = n
		}
		cp.callSiteFrequencies[opID] = m
	}
	for src, targets := range g.coverageMap {
		set := make(map[string]struct{}, len(targets))
		for dst := range targets {
			set[dst] = struct{}{}
		}
		cp.coverageMap[src] = set
	}
	return cp
}
