package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/NicoJuicy/coyote/config"
	"github.com/NicoJuicy/coyote/driver"
	"github.com/NicoJuicy/coyote/emit"
	"github.com/NicoJuicy/coyote/metrics"
	"github.com/NicoJuicy/coyote/reduce"
	"github.com/NicoJuicy/coyote/store"
	"github.com/NicoJuicy/coyote/strategy"
	"github.com/NicoJuicy/coyote/strategy/random"
)

func runCmd() *cobra.Command {
	var (
		configPath string
		iterations uint32
		maxSteps   uint32
		timeout    time.Duration
		seed       uint64
		strat      string
		workers    int
		jsonLogs   bool
		sqlitePath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo lost-update program under the scheduler",
		Long: `run explores a small racy counter program: two concurrently-reasoned-about
workers each read the counter, increment a local copy, and write it back
without synchronization. Iterations whose schedule interleaves the two
workers between their read and their write lose an increment; run reports
those as bugs found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Configuration
			var err error
			if configPath != "" {
				cfg, err = config.LoadYAML(configPath)
			} else {
				cfg, err = config.New(
					config.WithIterationCount(iterations),
					config.WithMaxSchedulingSteps(maxSteps),
					config.WithTimeout(timeout),
					config.WithSeed(seed),
					config.WithStrategyKind(strat),
				)
			}
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			var sched strategy.SchedulingStrategy
			switch cfg.StrategyKind {
			case "random":
				sched = random.New(cfg.Seed)
			default:
				return fmt.Errorf("unknown strategy kind %q", cfg.StrategyKind)
			}

			emitter := emit.NewLogEmitter(os.Stdout, jsonLogs)
			m := metrics.New(prometheus.NewRegistry())

			var coverage store.CoverageStore
			if sqlitePath != "" {
				s, err := store.NewSQLiteCoverageStore(sqlitePath)
				if err != nil {
					return fmt.Errorf("open coverage store: %w", err)
				}
				defer s.Close()
				coverage = s
			}

			d := driver.New(sched, reduce.NewSharedStateReducer(), emitter, m)
			p := driver.NewPool(d, cfg)

			fmt.Fprintf(os.Stdout, "run %s: %d iterations, strategy=%s, seed=%d\n", p.RunID(), cfg.IterationCount, cfg.StrategyKind, cfg.Seed)

			results, poolErr := p.Run(cmd.Context(), workers, demoLostUpdateBody())

			var succeeded, bugsFound, deadlocks, timeouts, misuses int
			for i, r := range results {
				switch r.Status {
				case driver.StatusSuccess:
					succeeded++
				case driver.StatusBugFound:
					bugsFound++
					fmt.Fprintf(os.Stdout, "iteration %d: bug found: %v\n", i, r.Err)
				case driver.StatusDeadlock:
					deadlocks++
				case driver.StatusTimeout:
					timeouts++
				case driver.StatusSchedulerMisuse:
					misuses++
				}

				if coverage != nil && r.Graph != nil {
					report := store.NewCoverageReport(uint32(i), time.Now(), r.Graph)
					if err := coverage.Export(cmd.Context(), report); err != nil {
						fmt.Fprintf(os.Stderr, "export coverage for iteration %d: %v\n", i, err)
					}
				}
			}

			fmt.Fprintf(os.Stdout, "done: %d succeeded, %d bugs found, %d deadlocks, %d timeouts, %d scheduler misuses\n",
				succeeded, bugsFound, deadlocks, timeouts, misuses)

			return poolErr
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML configuration file (overrides the flags below)")
	cmd.Flags().Uint32Var(&iterations, "iterations", config.Default().IterationCount, "number of iterations to run")
	cmd.Flags().Uint32Var(&maxSteps, "max-steps", config.Default().MaxSchedulingSteps, "scheduling steps before an iteration is aborted as non-terminating")
	cmd.Flags().DurationVar(&timeout, "timeout", config.Default().Timeout, "per-iteration wall-clock deadline")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "base seed for the scheduling strategy")
	cmd.Flags().StringVar(&strat, "strategy", config.Default().StrategyKind, "scheduling strategy (random)")
	cmd.Flags().IntVar(&workers, "workers", 1, "iterations to run concurrently")
	cmd.Flags().BoolVar(&jsonLogs, "json", false, "emit newline-delimited JSON logs instead of text")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "export per-iteration coverage reports to this SQLite file")

	return cmd
}
