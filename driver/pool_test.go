package driver_test

import (
	"context"
	"sync"
	"testing"

	"github.com/NicoJuicy/coyote/config"
	"github.com/NicoJuicy/coyote/driver"
	"github.com/NicoJuicy/coyote/reduce"
)

func TestPool_RunIDsAreDistinctPerPool(t *testing.T) {
	cfg := config.Default()
	a := driver.NewPool(newTestDriver(), cfg)
	b := driver.NewPool(newTestDriver(), cfg)
	if a.RunID() == b.RunID() {
		t.Error("two Pools minted the same RunID")
	}
}

func TestPool_RunSequentialCollectsAllResults(t *testing.T) {
	d := newTestDriver()
	cfg, err := config.New(config.WithIterationCount(5))
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	p := driver.NewPool(d, cfg)

	var seen []uint64
	var mu sync.Mutex
	results, err := p.Run(context.Background(), 1, func(ctx context.Context, rt *driver.Runtime) error {
		mu.Lock()
		seen = append(seen, rt.OperationID())
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	for i, r := range results {
		if r.Status != driver.StatusSuccess {
			t.Errorf("results[%d].Status = %v, want StatusSuccess", i, r.Status)
		}
	}
	if len(seen) != 5 {
		t.Errorf("len(seen) = %d, want 5 (body ran once per iteration)", len(seen))
	}
}

func TestPool_RunConcurrentAllSucceed(t *testing.T) {
	d := newTestDriver()
	cfg, err := config.New(config.WithIterationCount(8))
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	p := driver.NewPool(d, cfg)

	results, err := p.Run(context.Background(), 4, func(ctx context.Context, rt *driver.Runtime) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 8 {
		t.Fatalf("len(results) = %d, want 8", len(results))
	}
	for i, r := range results {
		if r.Status != driver.StatusSuccess {
			t.Errorf("results[%d].Status = %v, want StatusSuccess", i, r.Status)
		}
	}
}

func TestPool_StopsDispatchOnSchedulerMisuse(t *testing.T) {
	d := driver.New(outOfSetStrategy{}, reduce.NewSharedStateReducer(), nil, nil)
	cfg, err := config.New(config.WithIterationCount(10))
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	p := driver.NewPool(d, cfg)

	results, err := p.Run(context.Background(), 1, func(ctx context.Context, rt *driver.Runtime) error {
		return rt.SchedulingPoint(0, nil, nil, "main.go:1", 0)
	})
	if err == nil {
		t.Fatal("Run() error = nil, want non-nil after a StatusSchedulerMisuse iteration")
	}

	// Sequential dispatch (workers=1) must stop at the first misuse: later
	// slots stay at their zero IterationResult.
	sawMisuse := false
	for _, r := range results {
		if r.Status == driver.StatusSchedulerMisuse {
			sawMisuse = true
		}
	}
	if !sawMisuse {
		t.Error("no iteration reported StatusSchedulerMisuse")
	}
	for i, r := range results[1:] {
		if r.Graph != nil {
			t.Errorf("results[%d] was dispatched after the misuse in results[0]", i+1)
		}
	}
}
