package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "report <script>",
		Short: "List formulas from a script that did not lower to bytecode",
		Long: `Execute a script, then list every formula cell the compiler could
not lower to bytecode, together with the reason it fell back to the
AST walker.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			e := newEngine()
			if err := runScript(e, f, io.Discard); err != nil {
				return err
			}
			entries := e.BytecodeReport(limit)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all formulas lowered to bytecode")
				return nil
			}
			for _, en := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s!%s\t%s\n", en.Sheet, en.Ref, en.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to print (0 for all)")
	return cmd
}
