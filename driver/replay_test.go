package driver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/NicoJuicy/coyote/config"
	"github.com/NicoJuicy/coyote/driver"
	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/reduce"
	"github.com/NicoJuicy/coyote/scheduling"
	"github.com/NicoJuicy/coyote/strategy"
)

// bodyWithRace records which of two spawned operations reaches a shared
// write first, so its own output tells us whether the replay reproduced
// the same interleaving as the run the schedule was captured from.
func bodyWithRace(order *[]string) driver.TestBody {
	return func(ctx context.Context, rt *driver.Runtime) error {
		done := make(chan struct{}, 2)
		rt.Spawn(func(ctx context.Context, crt *driver.Runtime) error {
			if err := crt.SchedulingPoint(scheduling.Write, ptr("x"), nil, "a.go:1", 0); err != nil {
				return err
			}
			*order = append(*order, "a")
			done <- struct{}{}
			return nil
		})
		rt.Spawn(func(ctx context.Context, crt *driver.Runtime) error {
			if err := crt.SchedulingPoint(scheduling.Write, ptr("x"), nil, "b.go:1", 0); err != nil {
				return err
			}
			*order = append(*order, "b")
			done <- struct{}{}
			return nil
		})
		return rt.SchedulingPoint(scheduling.Default, nil, nil, "main.go:1", 0)
	}
}

// recordingStrategy picks like firstEnabledStrategy and records every id it
// returns from Next: that sequence, one id per scheduling decision, is the
// schedule Replay consumes.
type recordingStrategy struct {
	firstEnabledStrategy
	picked []uint64
}

func (s *recordingStrategy) Next(enabled []*operation.ControlledOperation, ctx strategy.Context) (uint64, error) {
	id, err := s.firstEnabledStrategy.Next(enabled, ctx)
	if err == nil {
		s.picked = append(s.picked, id)
	}
	return id, err
}

func TestReplay_ReproducesCapturedSchedule(t *testing.T) {
	rec := &recordingStrategy{}
	d := driver.New(rec, reduce.NewSharedStateReducer(), nil, nil)
	cfg := config.Default()

	var firstOrder []string
	first := d.RunIteration(context.Background(), cfg, 0, bodyWithRace(&firstOrder))
	if first.Status != driver.StatusSuccess {
		t.Fatalf("initial run Status = %v, want StatusSuccess (err=%v)", first.Status, first.Err)
	}
	schedule := rec.picked

	var replayOrder []string
	replayed := driver.Replay(context.Background(), cfg, schedule, nil, nil, bodyWithRace(&replayOrder))
	if replayed.Status != driver.StatusSuccess {
		t.Fatalf("replay Status = %v, want StatusSuccess (err=%v)", replayed.Status, replayed.Err)
	}

	if len(firstOrder) != len(replayOrder) {
		t.Fatalf("firstOrder = %v, replayOrder = %v, want equal length", firstOrder, replayOrder)
	}
	for i := range firstOrder {
		if firstOrder[i] != replayOrder[i] {
			t.Errorf("order[%d] = %q, want %q (replay diverged)", i, replayOrder[i], firstOrder[i])
		}
	}
}

func TestReplay_MismatchIsSchedulerMisuse(t *testing.T) {
	cfg := config.Default()

	// A schedule naming an operation id that will never exist in a
	// single-root iteration (the root is always id 1).
	schedule := []uint64{42}

	result := driver.Replay(context.Background(), cfg, schedule, nil, nil, func(ctx context.Context, rt *driver.Runtime) error {
		return rt.SchedulingPoint(scheduling.Default, nil, nil, "main.go:1", 0)
	})

	if result.Status != driver.StatusSchedulerMisuse {
		t.Fatalf("Status = %v, want StatusSchedulerMisuse (err=%v)", result.Status, result.Err)
	}
	if !errors.Is(result.Err, driver.ErrReplayMismatch) {
		t.Errorf("Err = %v, want wrapping ErrReplayMismatch", result.Err)
	}
}
