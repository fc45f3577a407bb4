// internal/workbook/workbook_test.go
package workbook

import (
	"strings"
	"testing"

	"gridcalc/internal/cell"
	gcerrors "gridcalc/internal/errors"
	"gridcalc/internal/eval"
	"gridcalc/internal/value"
)

func TestSheetNameValidation(t *testing.T) {
	bad := []string{
		"",
		"a:b",
		"a/b",
		"a\\b",
		"what?",
		"x*y",
		"[book]",
		"'leading",
		"trailing'",
		strings.Repeat("x", 32),
	}
	for _, name := range bad {
		if err := ValidateSheetName(name); err == nil {
			t.Errorf("ValidateSheetName(%q) accepted", name)
		}
	}
	good := []string{"Sheet1", "My Data", strings.Repeat("x", 31), "it's fine", "Résumé"}
	for _, name := range good {
		if err := ValidateSheetName(name); err != nil {
			t.Errorf("ValidateSheetName(%q): %v", name, err)
		}
	}
}

func TestSheetNameCaseInsensitive(t *testing.T) {
	wb := New()
	if _, err := wb.AddSheet("Data"); err != nil {
		t.Fatal(err)
	}
	if _, err := wb.AddSheet("DATA"); err == nil {
		t.Fatal("case-folded duplicate accepted")
	}
	if _, ok := wb.SheetByName("data"); !ok {
		t.Fatal("case-insensitive lookup failed")
	}
}

func TestTabOrderAndSpan(t *testing.T) {
	wb := New()
	wb.AddSheet("Q1")
	wb.AddSheet("Q2")
	wb.AddSheet("Q3")

	ids, ok := wb.Span("Q1", "Q3")
	if !ok || len(ids) != 3 {
		t.Fatalf("Span = %v, %v", ids, ok)
	}
	// reversed endpoints give the same span
	rev, _ := wb.Span("Q3", "Q1")
	if len(rev) != 3 || rev[0] != ids[0] {
		t.Fatalf("reversed span = %v", rev)
	}
	if _, ok := wb.Span("Q1", "Q9"); ok {
		t.Fatal("span over a missing sheet should fail")
	}
}

func TestRenameKeepsID(t *testing.T) {
	wb := New()
	s, _ := wb.AddSheet("Old")
	id := s.ID
	if err := wb.RenameSheet("old", "New"); err != nil {
		t.Fatal(err)
	}
	got, ok := wb.SheetByName("new")
	if !ok || got.ID != id {
		t.Fatalf("rename lost the sheet: %v %v", got, ok)
	}
	if _, ok := wb.SheetByName("Old"); ok {
		t.Fatal("old name still resolves")
	}
	if err := wb.RenameSheet("New", "Sheet1"); err == nil {
		t.Fatal("rename onto an existing name accepted")
	}
}

func TestDeleteSheet(t *testing.T) {
	wb := New()
	wb.AddSheet("Extra")
	if _, err := wb.DeleteSheet("extra"); err != nil {
		t.Fatal(err)
	}
	if _, ok := wb.SheetByName("Extra"); ok {
		t.Fatal("deleted sheet still resolves")
	}
	if _, err := wb.DeleteSheet("Sheet1"); err == nil {
		t.Fatal("deleting the only sheet accepted")
	}
}

func TestDimensionsBumpGeneration(t *testing.T) {
	wb := New()
	s := wb.First()
	gen := s.Gen
	if err := s.SetDims(100, 10); err != nil {
		t.Fatal(err)
	}
	if s.Gen != gen+1 {
		t.Fatalf("gen = %d, want %d", s.Gen, gen+1)
	}
	// same dimensions are a no-op
	if err := s.SetDims(100, 10); err != nil {
		t.Fatal(err)
	}
	if s.Gen != gen+1 {
		t.Fatal("no-op resize bumped the generation")
	}
	if err := s.SetDims(0, 10); err == nil || !gcerrors.IsType(err, gcerrors.DimensionError) {
		t.Fatalf("zero rows accepted: %v", err)
	}
}

func TestCellStorage(t *testing.T) {
	wb := New()
	s := wb.First()
	s.SetCell(4, 2, &Cell{Input: "7", Literal: value.Number(7), Value: value.Number(7)})
	c, ok := s.Cell(4, 2)
	if !ok || c.Input != "7" {
		t.Fatalf("Cell = %v, %v", c, ok)
	}
	if c.IsFormula() {
		t.Fatal("literal cell reports formula")
	}
	ur := s.UsedRange()
	if ur.StartRow != 4 || ur.EndRow != 4 || ur.StartCol != 2 || ur.EndCol != 2 {
		t.Fatalf("used range = %v", ur)
	}
	s.ClearCell(4, 2)
	if _, ok := s.Cell(4, 2); ok {
		t.Fatal("cleared cell still stored")
	}
}

func TestDefinedNameShadowing(t *testing.T) {
	wb := New()
	data, _ := wb.AddSheet("Data")
	wb.DefineName(&DefinedName{Name: "Rate", Source: "0.1"})
	wb.DefineName(&DefinedName{Name: "rate", Source: "0.2", Scoped: true, Sheet: data.ID})

	dn, ok := wb.LookupName("RATE", wb.First().ID)
	if !ok || dn.Source != "0.1" {
		t.Fatalf("workbook scope = %v, %v", dn, ok)
	}
	dn, ok = wb.LookupName("RATE", data.ID)
	if !ok || dn.Source != "0.2" {
		t.Fatalf("sheet scope should shadow: %v, %v", dn, ok)
	}

	// redefinition replaces within the same scope
	wb.DefineName(&DefinedName{Name: "Rate", Source: "0.3"})
	dn, _ = wb.LookupName("Rate", wb.First().ID)
	if dn.Source != "0.3" {
		t.Fatalf("redefinition kept old body: %v", dn)
	}
}

func TestScopedNamesDropWithSheet(t *testing.T) {
	wb := New()
	data, _ := wb.AddSheet("Data")
	wb.DefineName(&DefinedName{Name: "Local", Source: "1", Scoped: true, Sheet: data.ID})
	wb.DeleteSheet("Data")
	if _, ok := wb.LookupName("Local", wb.First().ID); ok {
		t.Fatal("scoped name survived its sheet")
	}
}

func TestTables(t *testing.T) {
	wb := New()
	id := wb.First().ID
	tbl := &eval.Table{
		Name:    "Sales",
		Sheet:   id,
		Range:   cell.Range{Sheet: id, StartRow: 0, StartCol: 0, EndRow: 3, EndCol: 2},
		Headers: true,
		Columns: []string{"Region", "Units", "Price"},
	}
	if err := wb.SetTable(tbl); err != nil {
		t.Fatal(err)
	}
	if _, ok := wb.TableByName("sales"); !ok {
		t.Fatal("case-insensitive table lookup failed")
	}
	if _, ok := wb.TableAt(cell.Address{Sheet: id, Row: 2, Col: 1}); !ok {
		t.Fatal("TableAt missed an interior cell")
	}
	if _, ok := wb.TableAt(cell.Address{Sheet: id, Row: 9, Col: 9}); ok {
		t.Fatal("TableAt matched outside the extent")
	}
	wb.DropTable("SALES")
	if _, ok := wb.TableByName("Sales"); ok {
		t.Fatal("dropped table still resolves")
	}
}
