// internal/formatter/formatter_test.go
package formatter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"gridcalc/internal/parser"
)

func TestFormat(t *testing.T) {
	cases := []struct{ in, want string }{
		{"=1+2*3", "1+2*3"},
		{"=(1+2)*3", "(1+2)*3"},
		{"=2^3^2", "2^3^2"},
		{"=-A1^2", "-A1^2"},
		{"=A1%", "A1%"},
		{"=A1:B2", "A1:B2"},
		{"=$A$1:B$2", "$A$1:B$2"},
		{"=A:A", "A:A"},
		{"=3:5", "3:5"},
		{"=Sheet2!A1", "Sheet2!A1"},
		{"='My Data'!A1:B2", "'My Data'!A1:B2"},
		{"=Sheet1:Sheet3!A1", "Sheet1:Sheet3!A1"},
		{"=SUM(A1:A10,B1)", "SUM(A1:A10,B1)"},
		{"=IF(A1>0,\"yes\",\"no\")", "IF(A1>0,\"yes\",\"no\")"},
		{"=\"a\"\"b\"&C1", "\"a\"\"b\"&C1"},
		{"={1,2;3,4}", "{1,2;3,4}"},
		{"=(A1:A2,B1:B2)", "(A1:A2,B1:B2)"},
		{"=A1#", "A1#"},
		{"=@A1:A10", "@A1:A10"},
		{"=TRUE", "TRUE"},
		{"=#REF!", "#REF!"},
		{"=Table1[Units]", "Table1[Units]"},
		{"=Table1[[#Data],[Units]]", "Table1[Units]"},
		{"=Table1[[#Headers],[Units]]", "Table1[[#Headers],[Units]]"},
		{"=Table1[[Units]:[Price]]", "Table1[[Units]:[Price]]"},
		{"=Table1[@Units]", "Table1[@Units]"},
		{"=LAMBDA(x,x+1)(5)", "LAMBDA(x,x+1)(5)"},
		{"=MyName*2", "MyName*2"},
		{"=1-2-3", "1-2-3"},
		{"=1-(2-3)", "1-(2-3)"},
	}
	for _, tc := range cases {
		expr, err := parser.Parse(tc.in)
		if err != nil {
			t.Errorf("parse %q: %v", tc.in, err)
			continue
		}
		if got := Format(expr); got != tc.want {
			t.Errorf("Format(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	formulas := []string{
		"=SUM(IF(A1:A10>5,B1:B10,0))",
		"=INDEX(Data!A:C,MATCH(E1,Data!A:A,0),2)",
		"=LET(x,A1*2,y,x+1,x*y)",
		"=-(A1+A2)%",
		"=1<=2",
		"=A1<>\"\"",
		"=SUM(Sheet1:Sheet3!B2:C4)",
		"=IF(A1,,3)",
	}
	for _, f := range formulas {
		first, err := parser.Parse(f)
		if err != nil {
			t.Fatalf("parse %q: %v", f, err)
		}
		text := Formula(first)
		second, err := parser.Parse(text)
		if err != nil {
			t.Fatalf("reparse %q (from %q): %v", text, f, err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("%q did not round-trip via %q:\n%s", f, text, diff)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Sheet1", "Sheet1"},
		{"My Data", "'My Data'"},
		{"A1", "'A1'"},
		{"R1C1", "'R1C1'"},
		{"TRUE", "'TRUE'"},
		{"it's", "'it''s'"},
		{"2024", "'2024'"},
		{"Résumé", "Résumé"},
	}
	for _, tc := range cases {
		if got := QuoteSheet(tc.in); got != tc.want {
			t.Errorf("QuoteSheet(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
