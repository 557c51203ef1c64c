package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/NicoJuicy/coyote/execgraph"
	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/scheduling"
	"github.com/NicoJuicy/coyote/store"
)

func newOpAt(registry *operation.Registry, parent uint64, site string) *operation.ControlledOperation {
	var op *operation.ControlledOperation
	if parent == operation.RootParentID {
		op = registry.CreateRoot()
	} else {
		op = registry.Create(parent)
	}
	op.SetStatus(operation.Enabled)
	op.RecordSchedulingPoint(scheduling.Default, nil, nil, site, 0)
	return op
}

func TestNewCoverageReport_SummarizesGraph(t *testing.T) {
	registry := operation.NewRegistry()
	g := execgraph.New()

	root := newOpAt(registry, operation.RootParentID, "Test")
	if err := g.Add(root); err != nil {
		t.Fatalf("Add(root) error = %v", err)
	}

	child := newOpAt(registry, root.ID(), "worker.go:10")
	if err := g.Add(child); err != nil {
		t.Fatalf("Add(child) error = %v", err)
	}

	captured := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report := store.NewCoverageReport(3, captured, g)

	if report.IterationID != 3 {
		t.Errorf("IterationID = %d, want 3", report.IterationID)
	}
	if !report.CapturedAt.Equal(captured) {
		t.Errorf("CapturedAt = %v, want %v", report.CapturedAt, captured)
	}
	if report.NodeCount != g.NodeCount() {
		t.Errorf("NodeCount = %d, want %d", report.NodeCount, g.NodeCount())
	}
	if _, ok := report.CallSiteFrequencies[child.ID()]["worker.go:10"]; !ok {
		t.Error("expected child operation's call site in CallSiteFrequencies")
	}
}

func TestMemoryCoverageStore_ExportAndLoad(t *testing.T) {
	s := store.NewMemoryCoverageStore()
	ctx := context.Background()

	report := store.CoverageReport{IterationID: 1, NodeCount: 4}
	if err := s.Export(ctx, report); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	got, err := s.LoadReport(ctx, 1)
	if err != nil {
		t.Fatalf("LoadReport() error = %v", err)
	}
	if got.NodeCount != 4 {
		t.Errorf("NodeCount = %d, want 4", got.NodeCount)
	}
}

func TestMemoryCoverageStore_LoadReportMissingReturnsErrNotFound(t *testing.T) {
	s := store.NewMemoryCoverageStore()
	_, err := s.LoadReport(context.Background(), 99)
	if err != store.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryCoverageStore_ExportOverwritesSameIteration(t *testing.T) {
	s := store.NewMemoryCoverageStore()
	ctx := context.Background()

	_ = s.Export(ctx, store.CoverageReport{IterationID: 1, NodeCount: 1})
	_ = s.Export(ctx, store.CoverageReport{IterationID: 1, NodeCount: 2})

	got, err := s.LoadReport(ctx, 1)
	if err != nil {
		t.Fatalf("LoadReport() error = %v", err)
	}
	if got.NodeCount != 2 {
		t.Errorf("NodeCount = %d, want 2 (latest export)", got.NodeCount)
	}
}

func TestMemoryCoverageStore_ReportsOrderedAndLimited(t *testing.T) {
	s := store.NewMemoryCoverageStore()
	ctx := context.Background()
	for _, id := range []uint32{3, 1, 2} {
		_ = s.Export(ctx, store.CoverageReport{IterationID: id})
	}

	all, err := s.Reports(ctx, 0)
	if err != nil {
		t.Fatalf("Reports() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	for i, want := range []uint32{1, 2, 3} {
		if all[i].IterationID != want {
			t.Errorf("all[%d].IterationID = %d, want %d", i, all[i].IterationID, want)
		}
	}

	limited, err := s.Reports(ctx, 2)
	if err != nil {
		t.Fatalf("Reports(limit=2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}
