package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gridcalc/internal/cell"
	"gridcalc/internal/engine"
	"gridcalc/internal/repl"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a script of cell edits and recalcs",
		Long: `Execute a script against a fresh workbook. One statement per line:

  A1=1+2          set a literal or formula (prefix with = for formulas)
  Sheet2!B3=hi    set a cell on another sheet
  A1=             clear a cell
  sheet Name      add a sheet if it does not exist
  print A1        print the displayed value of a cell
  recalc          recalculate and print the resulting deltas

Blank lines and lines starting with # are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return runScript(newEngine(), f, cmd.OutOrStdout())
		},
	}
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return repl.Start(newEngine(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runScript executes statements in order and stops at the first error.
func runScript(e *engine.Engine, r io.Reader, out io.Writer) error {
	s := &repl.Session{Engine: e, Out: out}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		stmt := strings.TrimSpace(sc.Text())
		if stmt == "" || strings.HasPrefix(stmt, "#") {
			continue
		}
		if err := s.Exec(stmt); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func refAt(row, col uint32) string {
	return cell.ColumnName(col) + strconv.FormatUint(uint64(row)+1, 10)
}
