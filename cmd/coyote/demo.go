package main

import (
	"context"
	"fmt"

	"github.com/NicoJuicy/coyote/driver"
	"github.com/NicoJuicy/coyote/scheduling"
)

// demoLostUpdateBody builds a fresh instance of the classic racy-counter
// program each time it runs: two workers read a shared counter, increment
// their local copy, and write it back with no synchronization between the
// read and the write. Most schedules interleave them cleanly and the final
// counter is correct; some schedules interleave the two workers between
// their read and their write and lose an increment. The last worker to
// finish checks the invariant and reports a bug if it was violated.
func demoLostUpdateBody() driver.TestBody {
	const workerCount = 2

	return func(ctx context.Context, rt *driver.Runtime) error {
		state := &struct {
			counter  int
			finished int
		}{}

		counterKey := "counter"
		finishedKey := "finished"

		for i := 0; i < workerCount; i++ {
			i := i
			rt.Spawn(func(ctx context.Context, crt *driver.Runtime) error {
				if err := crt.SchedulingPoint(scheduling.Read, &counterKey, nil, fmt.Sprintf("demo.go:worker%d:read", i), 0); err != nil {
					return err
				}
				observed := state.counter

				if err := crt.SchedulingPoint(scheduling.Write, &counterKey, nil, fmt.Sprintf("demo.go:worker%d:write", i), 0); err != nil {
					return err
				}
				state.counter = observed + 1

				if err := crt.SchedulingPoint(scheduling.Write, &finishedKey, nil, fmt.Sprintf("demo.go:worker%d:done", i), 0); err != nil {
					return err
				}
				state.finished++

				if state.finished == workerCount && state.counter != workerCount {
					return fmt.Errorf("lost update: counter = %d, want %d", state.counter, workerCount)
				}
				return nil
			})
		}

		return nil
	}
}
