package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gridcalc/internal/engine"
)

const version = "0.1.0"

var (
	iterative     bool
	maxIterations int
	maxChange     float64
)

func main() {
	root := &cobra.Command{
		Use:     "gridcalc",
		Short:   "Spreadsheet formula engine",
		Version: version,
		Long: `gridcalc evaluates spreadsheet formulas.

Commands:
  eval    Evaluate a single formula and print the result.
  run     Execute a script of cell edits and recalc commands.
  repl    Start an interactive session.
  report  Show which formulas in a script fell back to the AST walker.`,
	}
	root.PersistentFlags().BoolVar(&iterative, "iterative", false, "Enable iterative calculation for circular references")
	root.PersistentFlags().IntVar(&maxIterations, "max-iterations", 100, "Iteration cap for iterative calculation")
	root.PersistentFlags().Float64Var(&maxChange, "max-change", 0.001, "Convergence threshold for iterative calculation")

	root.AddCommand(evalCmd(), runCmd(), replCmd(), reportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newEngine() *engine.Engine {
	return engine.New(engine.Config{
		Iterative:     iterative,
		MaxIterations: maxIterations,
		MaxChange:     maxChange,
	})
}
