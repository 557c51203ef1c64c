package driver

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/NicoJuicy/coyote/config"
)

// Pool runs cfg.IterationCount iterations of the same TestBody, feeding the
// Driver's reducer and strategy persisted knowledge forward from one
// iteration to the next (spec.md §2: "the iteration driver wires them
// together," taken across a full run rather than a single iteration).
type Pool struct {
	driver *Driver
	cfg    config.Configuration
	runID  uuid.UUID
}

// NewPool pairs a Driver with the Configuration it runs iterations under.
// Every Pool mints its own run identifier, letting logs and exported
// coverage reports from the same batch of iterations be correlated.
func NewPool(d *Driver, cfg config.Configuration) *Pool {
	return &Pool{driver: d, cfg: cfg, runID: uuid.New()}
}

// RunID identifies this batch of iterations.
func (p *Pool) RunID() uuid.UUID { return p.runID }

// Run executes cfg.IterationCount iterations of body, running up to workers
// of them concurrently (workers < 1 is treated as 1, i.e. sequential).
// Iteration i's result is returned at results[i].
//
// Dispatch stops once an iteration reports StatusSchedulerMisuse, since that
// condition is fatal to the whole run (spec.md §7); iterations already
// in flight when this is observed still run to completion, so with
// workers > 1 a few iterations beyond the first misuse may still appear in
// the returned slice.
func (p *Pool) Run(ctx context.Context, workers int, body TestBody) ([]IterationResult, error) {
	if workers < 1 {
		workers = 1
	}
	n := int(p.cfg.IterationCount)
	results := make([]IterationResult, n)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var misuseErr error

	for i := 0; i < n; i++ {
		sem <- struct{}{}
		mu.Lock()
		stop := misuseErr != nil
		mu.Unlock()
		if stop {
			<-sem
			break
		}

		wg.Add(1)
		go func(iteration uint32) {
			defer wg.Done()
			defer func() { <-sem }()

			result := p.driver.RunIteration(ctx, p.cfg, iteration, body)
			results[iteration] = result

			if result.Status == StatusSchedulerMisuse {
				mu.Lock()
				if misuseErr == nil {
					misuseErr = result.Err
				}
				mu.Unlock()
			}
		}(uint32(i))
	}
	wg.Wait()

	return results, misuseErr
}
