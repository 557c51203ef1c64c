package driver

import (
	"context"
	"fmt"

	"github.com/NicoJuicy/coyote/config"
	"github.com/NicoJuicy/coyote/emit"
	"github.com/NicoJuicy/coyote/metrics"
	"github.com/NicoJuicy/coyote/operation"
	"github.com/NicoJuicy/coyote/reduce"
	"github.com/NicoJuicy/coyote/strategy"
)

// replayStrategy forces the driver down a schedule captured from a prior
// iteration instead of consulting a real SchedulingStrategy. It returns
// schedule[i] on the i-th call to Next and fails with ErrReplayMismatch if
// that operation isn't among the operations enabled at that step, which
// means the body's behavior diverged from the run the schedule was
// captured from.
type replayStrategy struct {
	schedule []uint64
	step     int
}

func (s *replayStrategy) Next(enabled []*operation.ControlledOperation, _ strategy.Context) (uint64, error) {
	if s.step >= len(s.schedule) {
		return 0, fmt.Errorf("replay schedule exhausted after %d steps", s.step)
	}
	want := s.schedule[s.step]
	s.step++
	if !inSet(enabled, want) {
		return 0, fmt.Errorf("%w: operation %d at step %d", ErrReplayMismatch, want, s.step-1)
	}
	return want, nil
}

func (s *replayStrategy) InitializeNextIteration(uint32) { s.step = 0 }

func (s *replayStrategy) Description() string {
	return fmt.Sprintf("replay(%d steps)", len(s.schedule))
}

var _ strategy.SchedulingStrategy = (*replayStrategy)(nil)

// identityReducer passes every enabled operation through unreduced. Replay
// uses it in place of the run's own reducer: a schedule is captured as raw
// operation ids, and reduction (which narrows the enabled set using
// persisted read/write history that may differ between runs) would risk
// removing the very id the schedule names before replayStrategy ever sees
// it.
type identityReducer struct{}

func (identityReducer) Reduce(enabled []*operation.ControlledOperation, _ *operation.ControlledOperation) []*operation.ControlledOperation {
	return enabled
}

func (identityReducer) InitializeNextIteration(uint32) {}

var _ reduce.IScheduleReducer = identityReducer{}

// Replay re-runs body forcing operation selection to follow schedule
// exactly, reproducing a previously captured interleaving (spec.md §9
// "Open Question: replay determinism," supplemented per the teacher's
// recorded-I/O replay in graph/replay.go — adapted here from replaying
// recorded I/O to replaying a recorded schedule). schedule is the sequence
// of operation ids a strategy returned from Next during a prior iteration,
// one entry per scheduling decision. The driver asks for a decision after
// every scheduling point, completion and block, and grants the root its
// first turn without one, so the node order of an IterationResult.Graph is
// not such a sequence; the driver itself does not record the decisions.
//
// A mismatch — the body took a different path and the recorded operation
// id is no longer enabled at its recorded step — surfaces as
// StatusSchedulerMisuse with an error wrapping ErrReplayMismatch, since
// a non-reproducing schedule means the bug is not deterministically
// reproducible under this harness, not that the harness itself is broken.
func Replay(ctx context.Context, cfg config.Configuration, schedule []uint64, emitter emit.Emitter, m *metrics.Metrics, body TestBody) IterationResult {
	d := &Driver{
		Strategy: &replayStrategy{schedule: schedule},
		Reducer:  identityReducer{},
		Emitter:  emitter,
		Metrics:  m,
	}
	return d.RunIteration(ctx, cfg, 0, body)
}
