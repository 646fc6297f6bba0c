package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Python-subset lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Layout
	TokenNewline
	TokenIndent
	TokenDedent

	// Literals
	TokenInteger    // 42, 0xff, 1_000
	TokenFloat      // 3.14, 1e10
	TokenString     // 'hello', "hello"
	TokenIdentifier // foo, Bar

	// Reserved words
	TokenKeyword // def, if, while, ...

	// Operators and delimiters
	TokenOperator // + - * ** // / % << >> & | ^ ~ < > <= >= == !=
	TokenAugAssign
	TokenAssign // =
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenLBrace
	TokenRBrace
	TokenComma
	TokenColon
	TokenDot
	TokenArrow // ->
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenIndent:     "INDENT",
	TokenDedent:     "DEDENT",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenKeyword:    "KEYWORD",
	TokenOperator:   "OPERATOR",
	TokenAugAssign:  "AUGASSIGN",
	TokenAssign:     "=",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenComma:      ",",
	TokenColon:      ":",
	TokenDot:        ".",
	TokenArrow:      "->",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text; decoded contents for strings
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline, TokenIndent, TokenDedent:
		return t.Type.String()
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Is reports whether t is the keyword or operator lit.
func (t Token) Is(lit string) bool {
	switch t.Type {
	case TokenKeyword, TokenOperator, TokenAugAssign:
		return t.Literal == lit
	}
	return false
}

// keywords are the reserved words of the dialect.
var keywords = map[string]bool{
	"def": true, "return": true, "if": true, "elif": true, "else": true,
	"while": true, "for": true, "in": true, "break": true, "continue": true,
	"pass": true, "global": true, "assert": true, "raise": true, "del": true,
	"and": true, "or": true, "not": true, "is": true,
	"None": true, "True": true, "False": true,
	// Reserved so programs using them fail at parse time.
	"class": true, "lambda": true, "try": true, "except": true, "finally": true,
	"with": true, "yield": true, "import": true, "from": true, "nonlocal": true,
	"async": true, "await": true, "as": true,
}

// IsKeyword reports whether name is reserved.
func IsKeyword(name string) bool {
	return keywords[name]
}
