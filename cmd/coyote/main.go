// Command coyote is a thin host binary for the scheduler core: it loads a
// Configuration, runs a demo instrumented program through a driver.Pool, and
// reports the outcome of every iteration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "coyote",
		Short: "Systematic concurrency testing scheduler",
		Long: `coyote drives an instrumented program through many controlled
schedules, looking for interleavings that violate an invariant, deadlock, or
fail to terminate.`,
		Version: version,
	}

	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "coyote: %v\n", err)
		os.Exit(1)
	}
}
