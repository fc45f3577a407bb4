// internal/parser/parser.go
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"gridcalc/internal/cell"
	"gridcalc/internal/errors"
	"gridcalc/internal/lexer"
	"gridcalc/internal/value"
)

// Binary operator precedence, lowest first. ':' and range union are
// handled structurally; unary minus binds tighter than '^' (Excel:
// -2^2 is 4).
var precedence = map[lexer.TokenType]int{
	lexer.TokenEqual:    1, // =
	lexer.TokenNotEqual: 1, // <>
	lexer.TokenLT:       1, // <
	lexer.TokenGT:       1, // >
	lexer.TokenLE:       1, // <=
	lexer.TokenGE:       1, // >=
	lexer.TokenAmp:      2, // &
	lexer.TokenPlus:     3, // +
	lexer.TokenMinus:    3, // -
	lexer.TokenStar:     4, // *
	lexer.TokenSlash:    4, // /
	lexer.TokenCaret:    5, // ^
}

// Options control reference style and separators.
type Options struct {
	R1C1         bool
	Anchor       cell.Address // caller cell; resolves relative R1C1 refs
	DecimalComma bool         // ',' decimal separator, ';' argument separator
}

type Parser struct {
	tokens  []lexer.Token
	current int
	source  string
	opts    Options
}

// Parse parses a formula (with or without the leading '=') into an AST.
func Parse(formula string) (Expr, error) {
	return ParseWith(formula, Options{})
}

// ParseWith parses with explicit options.
func ParseWith(formula string, opts Options) (expr Expr, err error) {
	body := strings.TrimPrefix(formula, "=")
	sc := lexer.NewScannerLocale(body, opts.DecimalComma)
	p := &Parser{tokens: sc.ScanTokens(), source: body, opts: opts}

	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(*errors.EngineError); ok {
				expr, err = nil, ee
				return
			}
			panic(r)
		}
	}()

	if p.isAtEnd() {
		p.fail("empty formula")
	}
	expr = p.expression()
	if !p.isAtEnd() {
		p.fail("unexpected trailing input")
	}
	return expr, nil
}

func (p *Parser) argSep() lexer.TokenType {
	if p.opts.DecimalComma {
		return lexer.TokenSemicolon
	}
	return lexer.TokenComma
}

// --- Expression parsing ---

func (p *Parser) expression() Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	for {
		tok := p.peek()
		prec, ok := precedence[tok.Type]
		if !ok || prec < minPrec {
			break
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		left = &Binary{Op: tok.Lexeme, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.check(lexer.TokenMinus) || p.check(lexer.TokenPlus) {
		op := p.advance().Lexeme
		operand := p.parseUnary()
		return &Unary{Op: op, Operand: operand}
	}
	if p.match(lexer.TokenAt) {
		operand := p.parseUnary()
		return &ImplicitIntersect{Operand: operand}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenPercent):
			expr = &Percent{Operand: expr}
		case p.check(lexer.TokenHash):
			p.advance()
			expr = &SpillRef{Operand: expr}
		case p.check(lexer.TokenColon) && isRefExpr(expr) && p.refAhead():
			p.advance()
			right := p.parsePostfix()
			expr = p.combineRange(expr, right)
		case p.check(lexer.TokenLParen) && canInvoke(expr):
			p.advance()
			args := p.arguments()
			expr = &Invoke{Callee: expr, Args: args}
		default:
			return expr
		}
	}
}

// refAhead reports whether the next token can begin a reference, so
// that ':' is only treated as the range operator between references.
func (p *Parser) refAhead() bool {
	switch p.peekNextType() {
	case lexer.TokenIdent, lexer.TokenSheetQuoted, lexer.TokenNumber:
		return true
	}
	return false
}

func isRefExpr(e Expr) bool {
	switch e.(type) {
	case *Ref, *Area, *Ref3D, *Name, *FuncCall, *SpillRef, *StructuredRef:
		return true
	}
	return false
}

func canInvoke(e Expr) bool {
	switch e.(type) {
	case *LambdaLit, *Invoke, *Name, *FuncCall:
		return true
	}
	return false
}

// combineRange folds "left : right" into an Area when both sides are
// plain cell refs on the same sheet; anything else stays a Binary ':'
// resolved by the evaluator (OFFSET(..):B2 and the like).
func (p *Parser) combineRange(left, right Expr) Expr {
	lr, lok := left.(*Ref)
	rr, rok := right.(*Ref)
	if lok && rok && (!rr.HasSheet || rr.Sheet == lr.Sheet) {
		a := &Area{
			Sheet:       lr.Sheet,
			HasSheet:    lr.HasSheet,
			StartRow:    lr.Row,
			StartCol:    lr.Col,
			EndRow:      rr.Row,
			EndCol:      rr.Col,
			AbsStartRow: lr.AbsRow,
			AbsStartCol: lr.AbsCol,
			AbsEndRow:   rr.AbsRow,
			AbsEndCol:   rr.AbsCol,
		}
		if a.StartRow > a.EndRow {
			a.StartRow, a.EndRow = a.EndRow, a.StartRow
			a.AbsStartRow, a.AbsEndRow = a.AbsEndRow, a.AbsStartRow
		}
		if a.StartCol > a.EndCol {
			a.StartCol, a.EndCol = a.EndCol, a.StartCol
			a.AbsStartCol, a.AbsEndCol = a.AbsEndCol, a.AbsStartCol
		}
		return a
	}
	return &Binary{Op: ":", Left: left, Right: right}
}

func (p *Parser) primary() Expr {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenNumber:
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.failAt(tok, "invalid number")
		}
		// whole-row reference: 1:1
		if p.check(lexer.TokenColon) && p.peekNextType() == lexer.TokenNumber && isWholeRowNumber(tok.Lexeme) {
			p.advance()
			endTok := p.advance()
			if !isWholeRowNumber(endTok.Lexeme) {
				p.failAt(endTok, "invalid row reference")
			}
			return p.wholeRowArea(tok.Lexeme, endTok.Lexeme, "", false)
		}
		return &NumberLit{Value: f}

	case lexer.TokenString:
		return &TextLit{Value: tok.Lexeme}

	case lexer.TokenErrorLit:
		kind, ok := value.ParseErrorKind(strings.ToUpper(tok.Lexeme))
		if !ok {
			p.failAt(tok, "unknown error literal")
		}
		return &ErrorLit{Kind: kind}

	case lexer.TokenLBrace:
		return p.arrayLiteral()

	case lexer.TokenLParen:
		return p.parenOrUnion()

	case lexer.TokenBracket:
		return p.bracketPrimary(tok)

	case lexer.TokenSheetQuoted:
		return p.sheetPrefixed(tok.Lexeme)

	case lexer.TokenIdent:
		return p.identPrimary(tok)

	default:
		p.failAt(tok, fmt.Sprintf("unexpected token '%s'", tok.Lexeme))
		return nil
	}
}

func isWholeRowNumber(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != "0"
}

func (p *Parser) wholeRowArea(first, last, sheet string, hasSheet bool) Expr {
	r1, _ := strconv.ParseUint(first, 10, 32)
	r2, _ := strconv.ParseUint(last, 10, 32)
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	return &Area{
		Sheet:    sheet,
		HasSheet: hasSheet,
		StartRow: uint32(r1 - 1),
		EndRow:   uint32(r2 - 1),
		StartCol: 0,
		EndCol:   cell.DefaultCols - 1,
		WholeRow: true,
	}
}

// parenOrUnion handles both grouping and the union form (A1:A2,B1:B2).
func (p *Parser) parenOrUnion() Expr {
	first := p.expression()
	if !p.check(p.argSep()) {
		p.consume(lexer.TokenRParen, "expected ')'")
		return first
	}
	items := []Expr{first}
	for p.match(p.argSep()) {
		items = append(items, p.expression())
	}
	p.consume(lexer.TokenRParen, "expected ')'")
	return &Union{Items: items}
}

func (p *Parser) arrayLiteral() Expr {
	colSep := lexer.TokenComma
	if p.opts.DecimalComma {
		colSep = lexer.TokenType("\\")
	}
	var elems []Expr
	rows, cols := 0, -1
	rowLen := 0
	flushRow := func(tok lexer.Token) {
		if cols == -1 {
			cols = rowLen
		} else if rowLen != cols {
			p.failAt(tok, "ragged array literal")
		}
		rows++
		rowLen = 0
	}
	for {
		elems = append(elems, p.expression())
		rowLen++
		switch {
		case p.match(colSep):
			continue
		case p.match(lexer.TokenSemicolon):
			flushRow(p.previous())
			continue
		case p.check(lexer.TokenRBrace):
			flushRow(p.peek())
			p.advance()
			return &ArrayLit{Rows: rows, Cols: cols, Elems: elems}
		default:
			p.failAt(p.peek(), "expected ',' ';' or '}' in array literal")
		}
	}
}

// bracketPrimary handles a leading '[' token: either an external book
// prefix ([Book1.xlsx]Sheet1!A1) or a table-less structured reference
// ([@Col], [Col]).
func (p *Parser) bracketPrimary(tok lexer.Token) Expr {
	if p.check(lexer.TokenIdent) || p.check(lexer.TokenSheetQuoted) {
		// external workbook prefix
		inner := p.primary()
		return &ExternalRef{Book: tok.Lexeme, Inner: inner}
	}
	sref := p.parseStructuredBody(tok, "")
	return sref
}

// sheetPrefixed parses the remainder after a quoted sheet name.
func (p *Parser) sheetPrefixed(sheet string) Expr {
	if p.check(lexer.TokenColon) && p.peekNextType() == lexer.TokenIdent {
		// quoted 3-D: 'First Sheet':Sheet3!A1
		p.advance()
		last := p.advance().Lexeme
		p.consume(lexer.TokenBang, "expected '!' after sheet range")
		return p.ref3D(sheet, last)
	}
	p.consume(lexer.TokenBang, "expected '!' after sheet name")
	return p.sheetRef(sheet)
}

// identPrimary disambiguates an identifier token: function call, cell
// or range reference, sheet prefix, boolean, R1C1 reference, or name.
func (p *Parser) identPrimary(tok lexer.Token) Expr {
	lex := tok.Lexeme

	// function call
	if p.check(lexer.TokenLParen) {
		name := strings.ToUpper(lex)
		p.advance()
		args := p.arguments()
		if name == "LAMBDA" {
			return p.lambdaFromCall(tok, args)
		}
		return &FuncCall{Name: name, Args: args}
	}

	// sheet prefix: Sheet1!... or Sheet1:Sheet3!...
	if p.check(lexer.TokenBang) {
		p.advance()
		return p.sheetRef(lex)
	}
	if p.check(lexer.TokenColon) && p.peekNextType() == lexer.TokenIdent && p.tokenAfterNextIs(lexer.TokenBang) {
		p.advance()
		last := p.advance().Lexeme
		p.consume(lexer.TokenBang, "expected '!' after sheet range")
		return p.ref3D(lex, last)
	}

	// Relative R1C1 offsets lex as bracket tokens, so this must run
	// before the structured-reference dispatch; tryR1C1 backtracks on
	// failure and a table named R... still parses below.
	if p.opts.R1C1 {
		if ref, ok := p.tryR1C1(lex); ok {
			return ref
		}
	}

	// structured reference: Table1[...]
	if p.check(lexer.TokenBracket) {
		body := p.advance()
		return p.parseStructuredBody(body, lex)
	}

	switch strings.ToUpper(lex) {
	case "TRUE":
		return &BoolLit{Value: true}
	case "FALSE":
		return &BoolLit{Value: false}
	}

	// whole-column reference: A:A, $A:$XFD
	if col, abs, ok := parseColumnOnly(lex); ok && p.check(lexer.TokenColon) {
		if endLex, ok2 := p.peekColumnOnly(); ok2 {
			p.advance()
			endTok := p.advance()
			endCol, endAbs, _ := parseColumnOnly(endTok.Lexeme)
			sc, ec := col, endCol
			sa, ea := abs, endAbs
			if sc > ec {
				sc, ec = ec, sc
				sa, ea = ea, sa
			}
			_ = endLex
			return &Area{
				StartCol:    sc,
				EndCol:      ec,
				StartRow:    0,
				EndRow:      cell.DefaultRows - 1,
				AbsStartCol: sa,
				AbsEndCol:   ea,
				WholeCol:    true,
			}
		}
	}

	// plain cell reference
	if ref, ok := parseCellIdent(lex); ok {
		return ref
	}

	return &Name{Name: lex}
}

// sheetRef parses the reference part after "Sheet!" (the sheet name is
// already consumed).
func (p *Parser) sheetRef(sheet string) Expr {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenIdent:
		lex := tok.Lexeme
		if p.opts.R1C1 {
			if ref, ok := p.tryR1C1(lex); ok {
				attachSheet(ref, sheet)
				return ref
			}
		}
		if col, abs, ok := parseColumnOnly(lex); ok && p.check(lexer.TokenColon) {
			if _, ok2 := p.peekColumnOnly(); ok2 {
				p.advance()
				endTok := p.advance()
				endCol, endAbs, _ := parseColumnOnly(endTok.Lexeme)
				sc, ec := col, endCol
				sa, ea := abs, endAbs
				if sc > ec {
					sc, ec = ec, sc
					sa, ea = ea, sa
				}
				return &Area{
					Sheet: sheet, HasSheet: true,
					StartCol: sc, EndCol: ec,
					StartRow: 0, EndRow: cell.DefaultRows - 1,
					AbsStartCol: sa, AbsEndCol: ea,
					WholeCol: true,
				}
			}
		}
		if ref, ok := parseCellIdent(lex); ok {
			ref.Sheet = sheet
			ref.HasSheet = true
			return ref
		}
		return &Name{Name: lex, Sheet: sheet, HasSheet: true}
	case lexer.TokenNumber:
		if isWholeRowNumber(tok.Lexeme) && p.check(lexer.TokenColon) && p.peekNextType() == lexer.TokenNumber {
			p.advance()
			endTok := p.advance()
			if !isWholeRowNumber(endTok.Lexeme) {
				p.failAt(endTok, "invalid row reference")
			}
			return p.wholeRowArea(tok.Lexeme, endTok.Lexeme, sheet, true)
		}
		p.failAt(tok, "invalid reference after sheet name")
	case lexer.TokenErrorLit:
		// Sheet1!#REF! after deletions
		if strings.EqualFold(tok.Lexeme, "#REF!") {
			return &ErrorLit{Kind: value.KindRef}
		}
		p.failAt(tok, "invalid reference after sheet name")
	default:
		p.failAt(tok, "expected reference after sheet name")
	}
	return nil
}

func attachSheet(e Expr, sheet string) {
	switch e := e.(type) {
	case *Ref:
		e.Sheet = sheet
		e.HasSheet = true
	case *Area:
		e.Sheet = sheet
		e.HasSheet = true
	}
}

// ref3D parses the area part of First:Last!A1 or First:Last!A1:B2.
func (p *Parser) ref3D(first, last string) Expr {
	tok := p.advance()
	if tok.Type != lexer.TokenIdent {
		p.failAt(tok, "expected cell reference after sheet range")
	}
	start, ok := parseCellIdent(tok.Lexeme)
	if !ok {
		p.failAt(tok, "invalid cell reference after sheet range")
	}
	end := start
	if p.check(lexer.TokenColon) && p.peekNextType() == lexer.TokenIdent {
		save := p.current
		p.advance()
		endTok := p.advance()
		if e, ok := parseCellIdent(endTok.Lexeme); ok {
			end = e
		} else {
			p.current = save
		}
	}
	r := &Ref3D{
		FirstSheet: first, LastSheet: last,
		StartRow: start.Row, StartCol: start.Col,
		EndRow: end.Row, EndCol: end.Col,
	}
	if r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	if r.StartCol > r.EndCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	return r
}

func (p *Parser) lambdaFromCall(tok lexer.Token, args []Expr) Expr {
	if len(args) < 1 {
		p.failAt(tok, "LAMBDA needs a body")
	}
	params := make([]string, 0, len(args)-1)
	for _, a := range args[:len(args)-1] {
		n, ok := a.(*Name)
		if !ok {
			p.failAt(tok, "LAMBDA parameters must be names")
		}
		params = append(params, n.Name)
	}
	return &LambdaLit{Params: params, Body: args[len(args)-1]}
}

// arguments parses a call argument list after '('. Omitted arguments
// ("IF(A1,,2)") are nil entries.
func (p *Parser) arguments() []Expr {
	sep := p.argSep()
	args := []Expr{}
	if p.match(lexer.TokenRParen) {
		return args
	}
	for {
		if p.check(sep) || p.check(lexer.TokenRParen) {
			args = append(args, nil)
		} else {
			args = append(args, p.expression())
		}
		if p.match(sep) {
			continue
		}
		p.consume(lexer.TokenRParen, "expected ')' after arguments")
		return args
	}
}

// --- Reference token parsing ---

// parseCellIdent reads an A1-style cell reference with optional '$'
// markers out of a single identifier token.
func parseCellIdent(s string) (*Ref, bool) {
	i := 0
	absCol := false
	if i < len(s) && s[i] == '$' {
		absCol = true
		i++
	}
	colStart := i
	for i < len(s) && isAsciiLetter(s[i]) {
		i++
	}
	if i == colStart || i-colStart > 3 {
		return nil, false
	}
	col, ok := cell.ParseColumn(s[colStart:i])
	if !ok {
		return nil, false
	}
	absRow := false
	if i < len(s) && s[i] == '$' {
		absRow = true
		i++
	}
	rowStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if rowStart == i || i != len(s) {
		return nil, false
	}
	row, err := strconv.ParseUint(s[rowStart:], 10, 32)
	if err != nil || row == 0 || row > cell.DefaultRows {
		return nil, false
	}
	return &Ref{Row: uint32(row - 1), Col: col, AbsRow: absRow, AbsCol: absCol}, true
}

// parseColumnOnly reads "$A" / "A" style column-only identifiers.
func parseColumnOnly(s string) (uint32, bool, bool) {
	abs := false
	if strings.HasPrefix(s, "$") {
		abs = true
		s = s[1:]
	}
	if s == "" || len(s) > 3 {
		return 0, false, false
	}
	for i := 0; i < len(s); i++ {
		if !isAsciiLetter(s[i]) {
			return 0, false, false
		}
	}
	col, ok := cell.ParseColumn(s)
	return col, abs, ok
}

func (p *Parser) peekColumnOnly() (string, bool) {
	if p.peekNextType() != lexer.TokenIdent {
		return "", false
	}
	lex := p.tokens[p.current+1].Lexeme
	_, _, ok := parseColumnOnly(lex)
	return lex, ok
}

// tryR1C1 parses an R1C1-style reference, consuming following bracket
// tokens for relative offsets (R[-1]C[2]).
func (p *Parser) tryR1C1(lex string) (*Ref, bool) {
	save := p.current
	assembled := lex
	for {
		if p.check(lexer.TokenBracket) {
			assembled += "[" + p.peek().Lexeme + "]"
			p.advance()
			continue
		}
		if p.check(lexer.TokenIdent) && !strings.Contains(strings.ToUpper(assembled), "C") &&
			strings.HasPrefix(strings.ToUpper(p.peek().Lexeme), "C") {
			assembled += p.advance().Lexeme
			continue
		}
		break
	}
	ref, ok := parseR1C1(assembled, p.opts.Anchor)
	if !ok {
		p.current = save
		return nil, false
	}
	return ref, true
}

// parseR1C1 parses "R3C5", "R[-1]C[2]", "RC5" against an anchor cell.
func parseR1C1(s string, anchor cell.Address) (*Ref, bool) {
	up := strings.ToUpper(s)
	if !strings.HasPrefix(up, "R") {
		return nil, false
	}
	rest := s[1:]
	row, absRow, rest, ok := r1c1Part(rest, int64(anchor.Row))
	if !ok {
		return nil, false
	}
	if len(rest) == 0 || (rest[0] != 'C' && rest[0] != 'c') {
		return nil, false
	}
	col, absCol, rest, ok := r1c1Part(rest[1:], int64(anchor.Col))
	if !ok || rest != "" {
		return nil, false
	}
	if row < 0 || col < 0 || row >= cell.DefaultRows || col >= cell.DefaultCols {
		return nil, false
	}
	return &Ref{Row: uint32(row), Col: uint32(col), AbsRow: absRow, AbsCol: absCol}, true
}

// r1c1Part parses the numeric part after R or C: absolute "3",
// relative "[−2]", or empty (same row/column as the anchor).
func r1c1Part(s string, anchor int64) (int64, bool, string, bool) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return 0, false, "", false
		}
		off, err := strconv.ParseInt(s[1:end], 10, 64)
		if err != nil {
			return 0, false, "", false
		}
		return anchor + off, false, s[end+1:], true
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		// bare R or C: anchor row/column, relative
		return anchor, false, s, true
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil || n == 0 {
		return 0, false, "", false
	}
	return n - 1, true, s[i:], true
}

func isAsciiLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// --- Structured reference bodies ---

// parseStructuredBody interprets the raw text captured between the
// outer brackets of a structured reference.
func (p *Parser) parseStructuredBody(tok lexer.Token, table string) Expr {
	sref := &StructuredRef{Table: table}
	body := tok.Lexeme

	if body == "" {
		sref.Items = []StructuredItem{ItemData}
		return sref
	}
	if strings.HasPrefix(body, "@") {
		sref.ThisRowAt = true
		sref.Items = append(sref.Items, ItemThisRow)
		rest := body[1:]
		if rest != "" {
			p.structuredColumns(tok, sref, rest)
		}
		return sref
	}

	for _, piece := range splitStructured(body) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		// column range [A]:[B]
		if first, last, ok := splitColRange(piece); ok {
			sref.Columns = append(sref.Columns, ColRange{First: unbracket(first), Last: unbracket(last)})
			continue
		}
		inner := unbracket(piece)
		if item, ok := structuredItem(inner); ok {
			sref.Items = append(sref.Items, item)
			continue
		}
		if strings.HasPrefix(inner, "@") {
			sref.ThisRowAt = true
			sref.Items = append(sref.Items, ItemThisRow)
			inner = strings.TrimPrefix(inner, "@")
			if inner == "" {
				continue
			}
		}
		sref.Columns = append(sref.Columns, ColRange{First: inner, Last: inner})
	}
	if len(sref.Items) == 0 {
		sref.Items = []StructuredItem{ItemData}
	}
	return sref
}

func (p *Parser) structuredColumns(tok lexer.Token, sref *StructuredRef, rest string) {
	if first, last, ok := splitColRange(rest); ok {
		sref.Columns = append(sref.Columns, ColRange{First: unbracket(first), Last: unbracket(last)})
		return
	}
	col := unbracket(rest)
	if col != "" {
		sref.Columns = append(sref.Columns, ColRange{First: col, Last: col})
	}
}

// splitStructured splits a structured body on top-level commas.
func splitStructured(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// splitColRange detects "[Col1]:[Col3]" at the top level of a piece.
func splitColRange(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ':':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

func unbracket(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

func structuredItem(s string) (StructuredItem, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "#HEADERS":
		return ItemHeaders, true
	case "#DATA":
		return ItemData, true
	case "#TOTALS":
		return ItemTotals, true
	case "#ALL":
		return ItemAll, true
	case "#THIS ROW":
		return ItemThisRow, true
	}
	return 0, false
}

// --- Utility methods ---

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.failAt(p.peek(), fmt.Sprintf("%s (got '%s')", msg, p.peek().Lexeme))
	return lexer.Token{}
}

func (p *Parser) check(t lexer.TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) peekNextType() lexer.TokenType {
	if p.current+1 >= len(p.tokens) {
		return lexer.TokenEOF
	}
	return p.tokens[p.current+1].Type
}

func (p *Parser) tokenAfterNextIs(t lexer.TokenType) bool {
	if p.current+2 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.current+2].Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.tokens[p.current-1]
}

func (p *Parser) previous() lexer.Token {
	return p.tokens[p.current-1]
}

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.current]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TokenEOF
}

func (p *Parser) fail(msg string) {
	p.failAt(p.peek(), msg)
}

func (p *Parser) failAt(tok lexer.Token, msg string) {
	panic(errors.NewParse(msg, p.source, tok.Pos))
}
