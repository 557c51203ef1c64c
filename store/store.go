// Package store provides optional persistence sinks for exported coverage
// reports.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/NicoJuicy/coyote/execgraph"
)

// ErrNotFound is returned when a requested iteration ID has no stored report.
var ErrNotFound = errors.New("not found")

// CoverageReport is a persisted, read-only view of one iteration's execution
// graph: call-site frequencies per operation and the coverage edges observed
// between call sites. cmd/coyote builds one per iteration from that
// iteration's IterationResult.Graph.
type CoverageReport struct {
	// IterationID identifies which iteration produced this report.
	IterationID uint32

	// CapturedAt records when the report was built.
	CapturedAt time.Time

	// NodeCount is the number of nodes in the graph at capture time.
	NodeCount int

	// CallSiteFrequencies maps operation ID to call site to the number of
	// times that site was visited by that operation.
	CallSiteFrequencies map[uint64]map[string]uint64

	// CoverageEdges maps a call site to the set of call sites reached from
	// it, across all operations and every iteration the graph has recorded
	// up to capture time (one iteration for a graph the driver returns).
	CoverageEdges map[string][]string
}

// NewCoverageReport builds a CoverageReport from a graph snapshot.
func NewCoverageReport(iterationID uint32, capturedAt time.Time, g *execgraph.Graph) CoverageReport {
	freq := make(map[uint64]map[string]uint64)
	for _, n := range g.Nodes() {
		opFreq, ok := freq[n.Operation]
		if !ok {
			opFreq = make(map[string]uint64)
			freq[n.Operation] = opFreq
		}
		if _, seen := opFreq[n.CallSite]; !seen {
			opFreq[n.CallSite] = g.CallSiteFrequency(n.Operation, n.CallSite)
		}
	}
	return CoverageReport{
		IterationID:         iterationID,
		CapturedAt:          capturedAt,
		NodeCount:           g.NodeCount(),
		CallSiteFrequencies: freq,
		CoverageEdges:       g.CoverageEdges(),
	}
}

// CoverageStore persists CoverageReports across iterations so coverage can be
// inspected, compared, or aggregated after a run completes.
//
// Implementations:
//   - MemoryCoverageStore: in-process, for tests and interactive inspection.
//   - SQLiteCoverageStore: single-file, zero-setup local persistence.
//   - MySQLCoverageStore: shared/CI persistence.
//
// The driver never calls a CoverageStore; cmd/coyote calls Export after
// each iteration and reports a failure without stopping the run.
type CoverageStore interface {
	// Export persists report, overwriting any existing report for the same
	// IterationID.
	Export(ctx context.Context, report CoverageReport) error

	// LoadReport retrieves a previously exported report.
	// Returns ErrNotFound if iterationID has no report.
	LoadReport(ctx context.Context, iterationID uint32) (CoverageReport, error)

	// Reports returns up to limit exported reports ordered by IterationID
	// ascending. limit <= 0 means no limit.
	Reports(ctx context.Context, limit int) ([]CoverageReport, error)
}
