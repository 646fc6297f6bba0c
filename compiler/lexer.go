package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer with indentation tracking
// ---------------------------------------------------------------------------

// Lexer tokenizes source code. Indentation changes at the start of logical
// lines become INDENT and DEDENT tokens; line breaks inside brackets are
// ignored.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	col       int  // current column (1-based)
	lineStart int  // offset of current line start

	indents     []int
	pending     []Token
	depth       int  // bracket nesting
	atLineStart bool // next token starts a logical line
	midLine     bool // a token was emitted since the last NEWLINE
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:       input,
		line:        1,
		col:         0,
		indents:     []int{0},
		atLineStart: true,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// Tokenize returns every token of input, ending with EOF or the first
// error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}
	if l.atLineStart && l.depth == 0 {
		if tok, ok := l.readIndentation(); ok {
			return tok
		}
	}
	l.skipSpace()
	pos := l.position()

	switch {
	case l.ch == 0:
		return l.finish(pos)

	case l.ch == '\n':
		l.readChar()
		if l.depth > 0 {
			return l.NextToken()
		}
		l.atLineStart = true
		l.midLine = false
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}
	}

	l.midLine = true
	switch {
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(pos)
	case l.ch == '\'' || l.ch == '"':
		return l.readString(pos)
	case isLetter(l.ch):
		return l.readIdentifier(pos)
	}
	return l.readOperator(pos)
}

// readIndentation measures the indentation of the next non-blank line and
// emits INDENT or DEDENT tokens when it changes.
func (l *Lexer) readIndentation() (Token, bool) {
	for {
		width := 0
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\f' {
			if l.ch == '\t' {
				width = (width/8 + 1) * 8
			} else if l.ch == ' ' {
				width++
			}
			l.readChar()
		}
		if l.ch == '#' {
			l.skipComment()
		}
		if l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '\n' {
			l.readChar()
			continue
		}
		if l.ch == 0 {
			return Token{}, false
		}
		l.atLineStart = false
		pos := l.position()
		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			return Token{Type: TokenIndent, Pos: pos}, true
		case width < top:
			for width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, Token{Type: TokenDedent, Pos: pos})
			}
			if width != l.indents[len(l.indents)-1] {
				l.pending = nil
				return Token{Type: TokenError, Literal: "unindent does not match any outer indentation level", Pos: pos}, true
			}
			tok := l.pending[0]
			l.pending = l.pending[1:]
			return tok, true
		}
		return Token{}, false
	}
}

// finish emits the closing NEWLINE and DEDENT tokens before EOF.
func (l *Lexer) finish(pos Position) Token {
	if l.midLine {
		l.midLine = false
		return Token{Type: TokenNewline, Pos: pos}
	}
	if len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		return Token{Type: TokenDedent, Pos: pos}
	}
	return Token{Type: TokenEOF, Pos: pos}
}

// skipSpace skips blanks, comments and explicit line continuations.
func (l *Lexer) skipSpace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f':
			l.readChar()
		case l.ch == '#':
			l.skipComment()
		case l.ch == '\\' && l.peekChar() == '\n':
			l.readChar()
			l.readChar()
		default:
			return
		}
	}
}

func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// readNumber reads an integer or float literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '0' && strings.ContainsRune("xXoObB", l.peekChar()) {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
	}
	typ := TokenInteger
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' {
		typ = TokenFloat
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			typ = TokenFloat
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "invalid float exponent", Pos: pos}
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	if isLetter(l.ch) {
		return Token{Type: TokenError, Literal: fmt.Sprintf("invalid decimal literal %q", l.input[start:l.pos+1]), Pos: pos}
	}
	return Token{Type: typ, Literal: l.input[start:l.pos], Pos: pos}
}

// readString reads a quoted string, decoding escapes. Triple-quoted
// strings may span lines.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	triple := strings.HasPrefix(l.input[l.pos:], strings.Repeat(string(quote), 3))
	if triple {
		l.readChar()
		l.readChar()
	}
	l.readChar()

	var sb strings.Builder
	for {
		switch {
		case l.ch == 0:
			return Token{Type: TokenError, Literal: "unterminated string literal", Pos: pos}
		case l.ch == '\n' && !triple:
			return Token{Type: TokenError, Literal: "unterminated string literal", Pos: pos}
		case l.ch == quote:
			if !triple {
				l.readChar()
				return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
			}
			if strings.HasPrefix(l.input[l.pos:], strings.Repeat(string(quote), 3)) {
				l.readChar()
				l.readChar()
				l.readChar()
				return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
			}
			sb.WriteRune(l.ch)
			l.readChar()
		case l.ch == '\\':
			l.readChar()
			if err := l.readEscape(&sb); err != "" {
				return Token{Type: TokenError, Literal: err, Pos: pos}
			}
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

func (l *Lexer) readEscape(sb *strings.Builder) string {
	switch l.ch {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '0':
		sb.WriteByte(0)
	case '\\', '\'', '"':
		sb.WriteRune(l.ch)
	case '\n':
		// line continuation inside a string
	case 'x':
		if l.readPos+2 > len(l.input) {
			return "truncated \\xXX escape"
		}
		v, err := strconv.ParseUint(l.input[l.readPos:l.readPos+2], 16, 8)
		if err != nil {
			return "truncated \\xXX escape"
		}
		sb.WriteRune(rune(v))
		l.readChar()
		l.readChar()
	default:
		sb.WriteByte('\\')
		sb.WriteRune(l.ch)
	}
	l.readChar()
	return ""
}

// readIdentifier reads a name or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if keywords[lit] {
		return Token{Type: TokenKeyword, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

var (
	threeCharOps = []string{"**=", "//=", ">>=", "<<="}
	twoCharOps   = []string{
		"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "->",
		"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	}
	delimiters = map[rune]TokenType{
		'(': TokenLParen, ')': TokenRParen,
		'[': TokenLBracket, ']': TokenRBracket,
		'{': TokenLBrace, '}': TokenRBrace,
		',': TokenComma, ':': TokenColon, '.': TokenDot, '=': TokenAssign,
	}
)

// readOperator reads an operator or delimiter, longest match first.
func (l *Lexer) readOperator(pos Position) Token {
	rest := l.input[l.pos:]
	for _, ops := range [][]string{threeCharOps, twoCharOps} {
		for _, op := range ops {
			if strings.HasPrefix(rest, op) {
				for range op {
					l.readChar()
				}
				switch {
				case op == "->":
					return Token{Type: TokenArrow, Literal: op, Pos: pos}
				case strings.HasSuffix(op, "=") && op != "<=" && op != ">=" && op != "==" && op != "!=":
					return Token{Type: TokenAugAssign, Literal: op, Pos: pos}
				}
				return Token{Type: TokenOperator, Literal: op, Pos: pos}
			}
		}
	}
	ch := l.ch
	l.readChar()
	if typ, ok := delimiters[ch]; ok {
		switch typ {
		case TokenLParen, TokenLBracket, TokenLBrace:
			l.depth++
		case TokenRParen, TokenRBracket, TokenRBrace:
			if l.depth > 0 {
				l.depth--
			}
		}
		return Token{Type: typ, Literal: string(ch), Pos: pos}
	}
	if strings.ContainsRune("+-*/%&|^~<>", ch) {
		return Token{Type: TokenOperator, Literal: string(ch), Pos: pos}
	}
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch rune) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
