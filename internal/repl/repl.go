// internal/repl/repl.go
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"gridcalc/internal/engine"
)

// Session executes workbook statements against one engine.
type Session struct {
	Engine *engine.Engine
	Out    io.Writer
}

// Exec runs a single statement:
//
//	A1=1+2          set a literal or formula (prefix the value with = for formulas)
//	Sheet2!B3=hi    set a cell on another sheet
//	A1=             clear a cell
//	sheet Name      add a sheet if it does not exist
//	print A1        print the displayed value of a cell
//	recalc          recalculate and print the resulting deltas
func (s *Session) Exec(stmt string) error {
	switch {
	case stmt == "recalc":
		deltas, err := s.Engine.Recalculate(context.Background())
		if err != nil {
			return err
		}
		for _, d := range deltas {
			fmt.Fprintf(s.Out, "%s!%s = %s\n", d.Sheet, d.Ref, engine.DisplayText(d.Value))
		}
		return nil
	case strings.HasPrefix(stmt, "sheet "):
		name := strings.TrimSpace(strings.TrimPrefix(stmt, "sheet "))
		if _, ok := s.Engine.SheetID(name); ok {
			return nil
		}
		return s.Engine.AddSheet(name)
	case strings.HasPrefix(stmt, "print "):
		sheet, ref := splitTarget(strings.TrimSpace(strings.TrimPrefix(stmt, "print ")))
		v, err := s.Engine.GetCellValue(sheet, ref)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.Out, engine.DisplayText(v))
		return nil
	}
	target, input, ok := strings.Cut(stmt, "=")
	if !ok {
		return fmt.Errorf("expected NAME=VALUE or a command, got %q", stmt)
	}
	sheet, ref := splitTarget(strings.TrimSpace(target))
	input = strings.TrimSpace(input)
	if input == "" {
		return s.Engine.ClearCell(sheet, ref)
	}
	return s.Engine.SetCell(sheet, ref, input)
}

// splitTarget separates an optional Sheet! prefix from a cell reference.
// An empty sheet means the first sheet in tab order.
func splitTarget(target string) (sheet, ref string) {
	if i := strings.LastIndexByte(target, '!'); i >= 0 {
		return strings.Trim(target[:i], "'"), target[i+1:]
	}
	return "", target
}

// Start runs an interactive loop until EOF or an exit command.
// Statement errors are reported and the loop continues.
func Start(e *engine.Engine, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "gridcalc | type 'exit' to quit")
	s := &Session{Engine: e, Out: out}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, ">>> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := s.Exec(line); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}
