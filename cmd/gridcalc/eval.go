package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gridcalc/internal/engine"
)

func evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <formula>",
		Short: "Evaluate a formula and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formula := args[0]
			if !strings.HasPrefix(formula, "=") {
				formula = "=" + formula
			}
			e := newEngine()
			if err := e.SetCellFormula("Sheet1", "A1", formula); err != nil {
				return err
			}
			if _, err := e.Recalculate(context.Background()); err != nil {
				return err
			}
			return printResult(cmd, e)
		},
	}
}

// printResult prints A1, or the whole spill rect when the formula spilled.
func printResult(cmd *cobra.Command, e *engine.Engine) error {
	rect, ok, err := e.SpillRangeAt("Sheet1", "A1")
	if err != nil {
		return err
	}
	if !ok {
		v, err := e.GetCellValue("Sheet1", "A1")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), engine.DisplayText(v))
		return nil
	}
	for r := rect.StartRow; r <= rect.EndRow; r++ {
		row := make([]string, 0, rect.Cols())
		for c := rect.StartCol; c <= rect.EndCol; c++ {
			v, err := e.GetCellValue("Sheet1", refAt(r, c))
			if err != nil {
				return err
			}
			row = append(row, engine.DisplayText(v))
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(row, "\t"))
	}
	return nil
}
