package lexer

import (
	"fmt"
	"strings"
)

type TokenType string

const (
	// Literals
	TokenNumber      TokenType = "NUMBER"
	TokenString      TokenType = "STRING"
	TokenIdent       TokenType = "IDENT"
	TokenSheetQuoted TokenType = "SHEET"
	TokenBracket     TokenType = "BRACKET"
	TokenErrorLit    TokenType = "ERROR"

	// Symbols
	TokenLParen    TokenType = "("
	TokenRParen    TokenType = ")"
	TokenLBrace    TokenType = "{"
	TokenRBrace    TokenType = "}"
	TokenPlus      TokenType = "+"
	TokenMinus     TokenType = "-"
	TokenStar      TokenType = "*"
	TokenSlash     TokenType = "/"
	TokenCaret     TokenType = "^"
	TokenAmp       TokenType = "&"
	TokenPercent   TokenType = "%"
	TokenEqual     TokenType = "="
	TokenNotEqual  TokenType = "<>"
	TokenLT        TokenType = "<"
	TokenGT        TokenType = ">"
	TokenLE        TokenType = "<="
	TokenGE        TokenType = ">="
	TokenColon     TokenType = ":"
	TokenComma     TokenType = ","
	TokenSemicolon TokenType = ";"
	TokenBang      TokenType = "!"
	TokenAt        TokenType = "@"
	TokenHash      TokenType = "#"
	TokenEOF       TokenType = "EOF"
)

type Token struct {
	Type   TokenType
	Lexeme string
	Pos    int // byte offset into the formula text
}

func (t Token) String() string {
	return fmt.Sprintf("[%s] '%s'", t.Type, t.Lexeme)
}

// Scanner tokenizes a formula body (text after the leading '=').
type Scanner struct {
	source       string
	tokens       []Token
	start        int
	current      int
	decimalComma bool
}

func NewScanner(source string) *Scanner {
	return &Scanner{source: source}
}

// NewScannerLocale builds a scanner that reads ',' as the decimal
// separator; arguments are then separated by ';'.
func NewScannerLocale(source string, decimalComma bool) *Scanner {
	return &Scanner{source: source, decimalComma: decimalComma}
}

func (s *Scanner) ScanTokens() []Token {
	for !s.isAtEnd() {
		s.skipSpace()
		s.start = s.current
		if s.isAtEnd() {
			break
		}
		s.scanToken()
	}
	s.tokens = append(s.tokens, Token{Type: TokenEOF, Lexeme: "", Pos: len(s.source)})
	return s.tokens
}

func (s *Scanner) scanToken() {
	c := s.advance()
	switch c {
	case '(':
		s.addToken(TokenLParen)
	case ')':
		s.addToken(TokenRParen)
	case '{':
		s.addToken(TokenLBrace)
	case '}':
		s.addToken(TokenRBrace)
	case '+':
		s.addToken(TokenPlus)
	case '-':
		s.addToken(TokenMinus)
	case '*':
		s.addToken(TokenStar)
	case '/':
		s.addToken(TokenSlash)
	case '^':
		s.addToken(TokenCaret)
	case '&':
		s.addToken(TokenAmp)
	case '%':
		s.addToken(TokenPercent)
	case '=':
		s.addToken(TokenEqual)
	case '<':
		if s.match('>') {
			s.addToken(TokenNotEqual)
		} else if s.match('=') {
			s.addToken(TokenLE)
		} else {
			s.addToken(TokenLT)
		}
	case '>':
		if s.match('=') {
			s.addToken(TokenGE)
		} else {
			s.addToken(TokenGT)
		}
	case ':':
		s.addToken(TokenColon)
	case ',':
		s.addToken(TokenComma)
	case ';':
		s.addToken(TokenSemicolon)
	case '!':
		s.addToken(TokenBang)
	case '@':
		s.addToken(TokenAt)
	case '"':
		s.string()
	case '\'':
		s.quotedSheet()
	case '[':
		s.bracket()
	case '#':
		s.hashOrError()
	default:
		if isDigit(c) || (c == '.' && isDigit(s.peek())) {
			s.number()
		} else if isIdentStart(c) {
			s.identifier()
		} else {
			s.addToken(TokenType(string(c)))
		}
	}
}

// string scans a double-quoted string; "" escapes a literal quote.
func (s *Scanner) string() {
	var sb strings.Builder
	for !s.isAtEnd() {
		c := s.advance()
		if c == '"' {
			if s.peek() == '"' {
				s.advance()
				sb.WriteByte('"')
				continue
			}
			s.tokens = append(s.tokens, Token{Type: TokenString, Lexeme: sb.String(), Pos: s.start})
			return
		}
		sb.WriteByte(c)
	}
	// unterminated; the parser rejects at EOF
	s.tokens = append(s.tokens, Token{Type: TokenString, Lexeme: sb.String(), Pos: s.start})
}

// quotedSheet scans a single-quoted sheet name; a doubled quote
// escapes a literal quote.
func (s *Scanner) quotedSheet() {
	var sb strings.Builder
	for !s.isAtEnd() {
		c := s.advance()
		if c == '\'' {
			if s.peek() == '\'' {
				s.advance()
				sb.WriteByte('\'')
				continue
			}
			s.tokens = append(s.tokens, Token{Type: TokenSheetQuoted, Lexeme: sb.String(), Pos: s.start})
			return
		}
		sb.WriteByte(c)
	}
	s.tokens = append(s.tokens, Token{Type: TokenSheetQuoted, Lexeme: sb.String(), Pos: s.start})
}

// bracket captures a bracketed body raw, balancing nested brackets.
// "]]" followed by more body text is an escaped literal ']'. Used for
// structured references, external book prefixes, and R1C1 offsets.
func (s *Scanner) bracket() {
	depth := 1
	var sb strings.Builder
	for !s.isAtEnd() {
		c := s.advance()
		switch c {
		case '[':
			depth++
			sb.WriteByte(c)
		case ']':
			if depth == 1 && s.peek() == ']' && s.bracketEscapeAhead() {
				s.advance()
				sb.WriteByte(']')
				continue
			}
			depth--
			if depth == 0 {
				s.tokens = append(s.tokens, Token{Type: TokenBracket, Lexeme: sb.String(), Pos: s.start})
				return
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	s.tokens = append(s.tokens, Token{Type: TokenBracket, Lexeme: sb.String(), Pos: s.start})
}

// bracketEscapeAhead distinguishes "]]" as an escape from a nested
// close followed by the outer close: the escape form continues with
// body text.
func (s *Scanner) bracketEscapeAhead() bool {
	if s.current+1 >= len(s.source) {
		return false
	}
	next := s.source[s.current+1]
	return next != ',' && next != ')' && next != ' ' && next != ']' && !isOperatorByte(next)
}

func isOperatorByte(c byte) bool {
	switch c {
	case '+', '-', '*', '/', '^', '&', '%', '=', '<', '>', ':', '!', '#', '@':
		return true
	}
	return false
}

// hashOrError scans '#' either as an error literal (#DIV/0!, #N/A, ...)
// or as the spill postfix operator.
func (s *Scanner) hashOrError() {
	for _, lit := range []string{
		"#GETTING_DATA", "#DIV/0!", "#VALUE!", "#SPILL!", "#NULL!",
		"#NAME?", "#CALC!", "#NUM!", "#REF!", "#N/A",
	} {
		if s.hasPrefixAt(s.start, lit) {
			s.current = s.start + len(lit)
			s.tokens = append(s.tokens, Token{Type: TokenErrorLit, Lexeme: lit, Pos: s.start})
			return
		}
	}
	s.addToken(TokenHash)
}

func (s *Scanner) hasPrefixAt(off int, prefix string) bool {
	if off+len(prefix) > len(s.source) {
		return false
	}
	return strings.EqualFold(s.source[off:off+len(prefix)], prefix)
}

func (s *Scanner) number() {
	dec := byte('.')
	if s.decimalComma {
		dec = ','
	}
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == dec && isDigit(s.peekNext()) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	if s.peek() == 'e' || s.peek() == 'E' {
		save := s.current
		s.advance()
		if s.peek() == '+' || s.peek() == '-' {
			s.advance()
		}
		if isDigit(s.peek()) {
			for isDigit(s.peek()) {
				s.advance()
			}
		} else {
			s.current = save
		}
	}
	lex := s.source[s.start:s.current]
	if s.decimalComma {
		lex = strings.Replace(lex, ",", ".", 1)
	}
	s.tokens = append(s.tokens, Token{Type: TokenNumber, Lexeme: lex, Pos: s.start})
}

// identifier scans names: cell references, function names, defined
// names. '$' participates so $A$1 stays one token; '.' allows names
// like PERCENTILE.INC.
func (s *Scanner) identifier() {
	for isIdentPart(s.peek()) {
		s.advance()
	}
	s.addToken(TokenIdent)
}

func (s *Scanner) addToken(t TokenType) {
	s.tokens = append(s.tokens, Token{Type: t, Lexeme: s.source[s.start:s.current], Pos: s.start})
}

func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.source[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) advance() byte {
	s.current++
	return s.source[s.current-1]
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return '\000'
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return '\000'
	}
	return s.source[s.current+1]
}

func (s *Scanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func (s *Scanner) skipSpace() {
	for !s.isAtEnd() {
		switch s.source[s.current] {
		case ' ', '\t', '\r', '\n':
			s.current++
		default:
			return
		}
	}
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '$' || c == '_' || c == '\\' ||
		('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
