package compiler

import (
	"testing"
)

type tokSpec struct {
	typ TokenType
	lit string
}

func checkTokens(t *testing.T, input string, expected []tokSpec) {
	t.Helper()
	toks := Tokenize(input)
	if len(toks) != len(expected) {
		t.Fatalf("Tokenize(%q) = %v, want %d tokens", input, toks, len(expected))
	}
	for i, exp := range expected {
		if toks[i].Type != exp.typ {
			t.Errorf("Tokenize(%q) token[%d] type = %v, want %v", input, i, toks[i].Type, exp.typ)
		}
		if exp.lit != "" && toks[i].Literal != exp.lit {
			t.Errorf("Tokenize(%q) token[%d] literal = %q, want %q", input, i, toks[i].Literal, exp.lit)
		}
	}
}

func TestLexerBasicTokens(t *testing.T) {
	checkTokens(t, "x = (1 + y) [a, b] {c: d}", []tokSpec{
		{TokenIdentifier, "x"},
		{TokenAssign, "="},
		{TokenLParen, "("},
		{TokenInteger, "1"},
		{TokenOperator, "+"},
		{TokenIdentifier, "y"},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenIdentifier, "a"},
		{TokenComma, ","},
		{TokenIdentifier, "b"},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenIdentifier, "c"},
		{TokenColon, ":"},
		{TokenIdentifier, "d"},
		{TokenRBrace, "}"},
		{TokenNewline, ""},
		{TokenEOF, ""},
	})
}

func TestLexerOperators(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"**", TokenOperator, "**"},
		{"//", TokenOperator, "//"},
		{"<=", TokenOperator, "<="},
		{"==", TokenOperator, "=="},
		{"!=", TokenOperator, "!="},
		{"<<", TokenOperator, "<<"},
		{"~", TokenOperator, "~"},
		{"+=", TokenAugAssign, "+="},
		{"**=", TokenAugAssign, "**="},
		{"//=", TokenAugAssign, "//="},
		{">>=", TokenAugAssign, ">>="},
		{"->", TokenArrow, "->"},
		{"=", TokenAssign, "="},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ || tok.Literal != tc.lit {
			t.Errorf("Lexer(%q) = %v, want %v(%q)", tc.input, tok, tc.typ, tc.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenInteger},
		{"0", TokenInteger},
		{"1_000", TokenInteger},
		{"0x1F", TokenInteger},
		{"0o17", TokenInteger},
		{"0b1010", TokenInteger},
		{"3.14", TokenFloat},
		{".5", TokenFloat},
		{"2.", TokenFloat},
		{"1e10", TokenFloat},
		{"1.5e-3", TokenFloat},
		{"2E+5", TokenFloat},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q", tc.input, tok.Literal)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`"it's"`, "it's"},
		{`''`, ""},
		{`'a\tb'`, "a\tb"},
		{`'a\nb'`, "a\nb"},
		{`'\x41'`, "A"},
		{`'\\'`, `\`},
		{`'\q'`, `\q`},
		{"'''x\ny'''", "x\ny"},
		{`"""say "hi" """`, `say "hi" `},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	for _, word := range []string{"def", "return", "None", "True", "not", "class"} {
		tok := NewLexer(word).NextToken()
		if tok.Type != TokenKeyword {
			t.Errorf("Lexer(%q): type = %v, want KEYWORD", word, tok.Type)
		}
		if !IsKeyword(word) {
			t.Errorf("IsKeyword(%q) = false", word)
		}
	}
	for _, word := range []string{"x", "_private", "Definitely", "none", "ñame"} {
		tok := NewLexer(word).NextToken()
		if tok.Type != TokenIdentifier {
			t.Errorf("Lexer(%q): type = %v, want IDENT", word, tok.Type)
		}
	}
}

func TestLexerIndentation(t *testing.T) {
	input := "if x:\n    y\n    if z:\n        w\nv\n"
	checkTokens(t, input, []tokSpec{
		{TokenKeyword, "if"},
		{TokenIdentifier, "x"},
		{TokenColon, ":"},
		{TokenNewline, ""},
		{TokenIndent, ""},
		{TokenIdentifier, "y"},
		{TokenNewline, ""},
		{TokenKeyword, "if"},
		{TokenIdentifier, "z"},
		{TokenColon, ":"},
		{TokenNewline, ""},
		{TokenIndent, ""},
		{TokenIdentifier, "w"},
		{TokenNewline, ""},
		{TokenDedent, ""},
		{TokenDedent, ""},
		{TokenIdentifier, "v"},
		{TokenNewline, ""},
		{TokenEOF, ""},
	})
}

func TestLexerClosesBlocksAtEOF(t *testing.T) {
	checkTokens(t, "while x:\n    y", []tokSpec{
		{TokenKeyword, "while"},
		{TokenIdentifier, "x"},
		{TokenColon, ":"},
		{TokenNewline, ""},
		{TokenIndent, ""},
		{TokenIdentifier, "y"},
		{TokenNewline, ""},
		{TokenDedent, ""},
		{TokenEOF, ""},
	})
}

func TestLexerIgnoresBlankLinesAndComments(t *testing.T) {
	checkTokens(t, "\n\n# header\nx  # trailing\n\n   # indented comment\ny\n", []tokSpec{
		{TokenIdentifier, "x"},
		{TokenNewline, ""},
		{TokenIdentifier, "y"},
		{TokenNewline, ""},
		{TokenEOF, ""},
	})
}

func TestLexerImplicitLineJoining(t *testing.T) {
	checkTokens(t, "f(1,\n     2)\n", []tokSpec{
		{TokenIdentifier, "f"},
		{TokenLParen, "("},
		{TokenInteger, "1"},
		{TokenComma, ","},
		{TokenInteger, "2"},
		{TokenRParen, ")"},
		{TokenNewline, ""},
		{TokenEOF, ""},
	})
	checkTokens(t, "x = 1 + \\\n    2\n", []tokSpec{
		{TokenIdentifier, "x"},
		{TokenAssign, "="},
		{TokenInteger, "1"},
		{TokenOperator, "+"},
		{TokenInteger, "2"},
		{TokenNewline, ""},
		{TokenEOF, ""},
	})
}

func TestLexerPositions(t *testing.T) {
	toks := Tokenize("a\n  bb")
	// a NEWLINE INDENT bb
	if toks[0].Pos.Line != 1 || toks[0].Pos.Column != 1 {
		t.Errorf("a at %+v, want 1:1", toks[0].Pos)
	}
	if toks[3].Literal != "bb" || toks[3].Pos.Line != 2 || toks[3].Pos.Column != 3 {
		t.Errorf("bb = %v at %+v, want line 2 column 3", toks[3], toks[3].Pos)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"'abc", "unterminated string literal"},
		{"'ab\ncd'", "unterminated string literal"},
		{"1abc", `invalid decimal literal "1a"`},
		{"$", "unexpected character: $"},
		{"1e+", "invalid float exponent"},
		{"if x:\n    y\n  z\n", "unindent does not match any outer indentation level"},
	}

	for _, tc := range tests {
		toks := Tokenize(tc.input)
		last := toks[len(toks)-1]
		if last.Type != TokenError {
			t.Errorf("Tokenize(%q) ended with %v, want an error", tc.input, last)
			continue
		}
		if last.Literal != tc.want {
			t.Errorf("Tokenize(%q) error = %q, want %q", tc.input, last.Literal, tc.want)
		}
	}
}
