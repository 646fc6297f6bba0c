package compiler

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for the Python subset
// ---------------------------------------------------------------------------

// Parser parses source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string
	errLine   int // line of the most recent error
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// curIs checks if the current token is the keyword or operator lit.
func (p *Parser) curIs(lit string) bool {
	return p.curToken.Is(lit)
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken)
	return false
}

// expectKeyword advances past the keyword kw or records an error.
func (p *Parser) expectKeyword(kw string) bool {
	if p.curIs(kw) {
		p.nextToken()
		return true
	}
	p.errorf("expected '%s', got %s", kw, p.curToken)
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errLine = p.curToken.Pos.Line
	msg := fmt.Sprintf("line %d: %s", p.errLine, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseModule parses a whole source file.
func (p *Parser) ParseModule() *Module {
	m := &Module{}
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			continue
		}
		if p.curTokenIs(TokenError) {
			p.errorf("%s", p.curToken.Literal)
			return m
		}
		before := len(p.errors)
		stmt := p.parseStatement()
		if len(p.errors) > before {
			p.synchronize()
			if p.curTokenIs(TokenError) {
				return m
			}
			continue
		}
		if stmt != nil {
			m.Body = append(m.Body, stmt)
		}
	}
	return m
}

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseTest()
}

// synchronize skips the rest of the line that produced the last error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenError) {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			return
		}
		if p.curToken.Pos.Line > p.errLine {
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	if p.curTokenIs(TokenKeyword) {
		switch p.curToken.Literal {
		case "def":
			return p.parseFuncDef()
		case "if":
			return p.parseIf()
		case "while":
			return p.parseWhile()
		case "for":
			return p.parseFor()
		}
	}
	if p.curTokenIs(TokenIndent) {
		p.errorf("unexpected indent")
		return nil
	}
	stmt := p.parseSimpleStatement()
	if stmt == nil {
		return nil
	}
	if !p.curTokenIs(TokenNewline) {
		p.errorf("expected end of statement, got %s", p.curToken)
		return nil
	}
	p.nextToken()
	return stmt
}

// parseBlock parses ':' followed by a simple statement or an indented suite.
func (p *Parser) parseBlock() []Stmt {
	if !p.expect(TokenColon) {
		return nil
	}
	if !p.curTokenIs(TokenNewline) {
		stmt := p.parseSimpleStatement()
		if stmt == nil {
			return nil
		}
		p.expect(TokenNewline)
		return []Stmt{stmt}
	}
	p.nextToken()
	if !p.expect(TokenIndent) {
		return nil
	}
	var body []Stmt
	for !p.curTokenIs(TokenDedent) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenError) {
			p.errorf("%s", p.curToken.Literal)
			return body
		}
		before := len(p.errors)
		stmt := p.parseStatement()
		if len(p.errors) > before {
			return body
		}
		if stmt != nil {
			body = append(body, stmt)
		}
	}
	p.expect(TokenDedent)
	return body
}

func (p *Parser) parseFuncDef() Stmt {
	def := &FuncDef{At: p.curToken.Pos}
	p.nextToken()
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected function name, got %s", p.curToken)
		return nil
	}
	def.Name = p.curToken.Literal
	p.nextToken()
	if !p.expect(TokenLParen) {
		return nil
	}
	for !p.curTokenIs(TokenRParen) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.curToken)
			return nil
		}
		name := p.curToken.Literal
		for _, prev := range def.Params {
			if prev == name {
				p.errorf("duplicate argument '%s' in function definition", name)
				return nil
			}
		}
		def.Params = append(def.Params, name)
		p.nextToken()
		if p.curTokenIs(TokenAssign) {
			p.nextToken()
			def.Defaults = append(def.Defaults, p.parseTest())
		} else if len(def.Defaults) > 0 {
			p.errorf("non-default argument follows default argument")
			return nil
		}
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRParen) {
		return nil
	}
	if p.curTokenIs(TokenArrow) {
		p.nextToken()
		p.parseTest()
	}
	def.Body = p.parseBlock()
	return def
}

func (p *Parser) parseIf() Stmt {
	stmt := &If{At: p.curToken.Pos}
	p.nextToken()
	stmt.Cond = p.parseTest()
	stmt.Body = p.parseBlock()
	switch {
	case p.curIs("elif"):
		stmt.Else = []Stmt{p.parseIf()}
	case p.curIs("else"):
		p.nextToken()
		stmt.Else = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseWhile() Stmt {
	stmt := &While{At: p.curToken.Pos}
	p.nextToken()
	stmt.Cond = p.parseTest()
	stmt.Body = p.parseBlock()
	if p.curIs("else") {
		p.errorf("while/else is not supported")
	}
	return stmt
}

func (p *Parser) parseFor() Stmt {
	stmt := &For{At: p.curToken.Pos}
	p.nextToken()
	stmt.Target = p.parseTargetList()
	if !p.expectKeyword("in") {
		return nil
	}
	stmt.Iter = p.parseExprList()
	stmt.Body = p.parseBlock()
	if p.curIs("else") {
		p.errorf("for/else is not supported")
	}
	return stmt
}

// parseTargetList parses loop targets, which stop before 'in'.
func (p *Parser) parseTargetList() Expr {
	pos := p.curToken.Pos
	first := p.parseBitOr()
	if !p.curTokenIs(TokenComma) {
		return first
	}
	elems := []Expr{first}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		if p.curIs("in") {
			break
		}
		elems = append(elems, p.parseBitOr())
	}
	return &TupleExpr{At: pos, Elems: elems}
}

func (p *Parser) parseSimpleStatement() Stmt {
	pos := p.curToken.Pos
	if p.curTokenIs(TokenKeyword) {
		switch p.curToken.Literal {
		case "pass":
			p.nextToken()
			return &Pass{At: pos}
		case "break":
			p.nextToken()
			return &Break{At: pos}
		case "continue":
			p.nextToken()
			return &Continue{At: pos}
		case "return":
			p.nextToken()
			ret := &Return{At: pos}
			if !p.curTokenIs(TokenNewline) {
				ret.Value = p.parseExprList()
			}
			return ret
		case "raise":
			p.nextToken()
			r := &Raise{At: pos}
			if !p.curTokenIs(TokenNewline) {
				r.Exc = p.parseTest()
			}
			if p.curIs("from") {
				p.errorf("raise ... from is not supported")
				return nil
			}
			return r
		case "assert":
			p.nextToken()
			a := &Assert{At: pos, Test: p.parseTest()}
			if p.curTokenIs(TokenComma) {
				p.nextToken()
				a.Msg = p.parseTest()
			}
			return a
		case "global":
			p.nextToken()
			g := &Global{At: pos}
			for {
				if !p.curTokenIs(TokenIdentifier) {
					p.errorf("expected name, got %s", p.curToken)
					return nil
				}
				g.Names = append(g.Names, p.curToken.Literal)
				p.nextToken()
				if !p.curTokenIs(TokenComma) {
					return g
				}
				p.nextToken()
			}
		case "del":
			p.nextToken()
			d := &Del{At: pos}
			target := p.parseExprList()
			if t, ok := target.(*TupleExpr); ok {
				d.Targets = t.Elems
			} else {
				d.Targets = []Expr{target}
			}
			return d
		case "None", "True", "False", "not", "lambda":
		default:
			p.errorf("'%s' is not supported here", p.curToken.Literal)
			return nil
		}
	}

	first := p.parseExprList()
	switch {
	case p.curTokenIs(TokenAugAssign):
		op := strings.TrimSuffix(p.curToken.Literal, "=")
		p.nextToken()
		switch first.(type) {
		case *Name, *Subscript:
		default:
			p.errorf("illegal expression for augmented assignment")
			return nil
		}
		return &AugAssign{At: pos, Target: first, Op: op, Value: p.parseExprList()}
	case p.curTokenIs(TokenAssign):
		targets := []Expr{first}
		var value Expr
		for p.curTokenIs(TokenAssign) {
			p.nextToken()
			value = p.parseExprList()
			targets = append(targets, value)
		}
		targets = targets[:len(targets)-1]
		for _, t := range targets {
			if !assignable(t) {
				p.errorf("cannot assign to %s", describeExpr(t))
				return nil
			}
		}
		return &Assign{At: pos, Targets: targets, Value: value}
	}
	return &ExprStmt{At: pos, Expr: first}
}

// assignable reports whether e can appear on the left of '='.
func assignable(e Expr) bool {
	switch t := e.(type) {
	case *Name, *Subscript:
		return true
	case *TupleExpr:
		for _, el := range t.Elems {
			if !assignable(el) {
				return false
			}
		}
		return true
	case *ListExpr:
		for _, el := range t.Elems {
			if !assignable(el) {
				return false
			}
		}
		return true
	}
	return false
}

func describeExpr(e Expr) string {
	switch e.(type) {
	case *Call:
		return "function call"
	case *IntLiteral, *FloatLiteral, *StringLiteral, *ConstLiteral:
		return "literal"
	case *Starred:
		return "starred"
	}
	return "expression"
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExprList parses a comma separated list; more than one element (or a
// trailing comma) makes a tuple.
func (p *Parser) parseExprList() Expr {
	pos := p.curToken.Pos
	first := p.parseTestOrStar()
	if !p.curTokenIs(TokenComma) {
		if _, ok := first.(*Starred); ok {
			p.errorf("can't use starred expression here")
		}
		return first
	}
	elems := []Expr{first}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		if p.atExprEnd() {
			break
		}
		elems = append(elems, p.parseTestOrStar())
	}
	return &TupleExpr{At: pos, Elems: elems}
}

// atExprEnd reports whether the current token cannot start an expression.
func (p *Parser) atExprEnd() bool {
	switch p.curToken.Type {
	case TokenNewline, TokenEOF, TokenAssign, TokenAugAssign, TokenRParen,
		TokenRBracket, TokenRBrace, TokenColon:
		return true
	}
	return false
}

func (p *Parser) parseTestOrStar() Expr {
	if p.curIs("*") {
		pos := p.curToken.Pos
		p.nextToken()
		return &Starred{At: pos, Value: p.parseBitOr()}
	}
	return p.parseTest()
}

// parseTest parses a conditional expression.
func (p *Parser) parseTest() Expr {
	pos := p.curToken.Pos
	if p.curIs("lambda") {
		p.errorf("lambda is not supported")
		p.nextToken()
		return &ConstLiteral{At: pos, Value: "None"}
	}
	body := p.parseOr()
	if !p.curIs("if") {
		return body
	}
	p.nextToken()
	cond := p.parseOr()
	if !p.expectKeyword("else") {
		return body
	}
	return &IfExpr{At: pos, Cond: cond, Body: body, Else: p.parseTest()}
}

func (p *Parser) parseOr() Expr {
	return p.parseBoolChain("or", p.parseAnd)
}

func (p *Parser) parseAnd() Expr {
	return p.parseBoolChain("and", p.parseNot)
}

func (p *Parser) parseBoolChain(op string, operand func() Expr) Expr {
	pos := p.curToken.Pos
	first := operand()
	if !p.curIs(op) {
		return first
	}
	values := []Expr{first}
	for p.curIs(op) {
		p.nextToken()
		values = append(values, operand())
	}
	return &BoolOp{At: pos, Op: op, Values: values}
}

func (p *Parser) parseNot() Expr {
	if p.curIs("not") {
		pos := p.curToken.Pos
		p.nextToken()
		return &UnaryOp{At: pos, Op: "not", Operand: p.parseNot()}
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{"<": true, ">": true, "==": true, ">=": true, "<=": true, "!=": true}

func (p *Parser) parseComparison() Expr {
	pos := p.curToken.Pos
	left := p.parseBitOr()
	cmp := &Compare{At: pos, Left: left}
	for {
		var op string
		switch {
		case p.curTokenIs(TokenOperator) && compareOps[p.curToken.Literal]:
			op = p.curToken.Literal
			p.nextToken()
		case p.curIs("in"):
			op = "in"
			p.nextToken()
		case p.curIs("not") && p.peekToken.Is("in"):
			op = "not in"
			p.nextToken()
			p.nextToken()
		case p.curIs("is"):
			op = "is"
			p.nextToken()
			if p.curIs("not") {
				op = "is not"
				p.nextToken()
			}
		}
		if op == "" {
			break
		}
		cmp.Ops = append(cmp.Ops, op)
		cmp.Rights = append(cmp.Rights, p.parseBitOr())
	}
	if len(cmp.Ops) == 0 {
		return left
	}
	return cmp
}

// binaryLevels lists the binary operator precedence levels, loosest first.
var binaryLevels = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "//", "%"},
}

func (p *Parser) parseBitOr() Expr {
	return p.parseBinaryLevel(0)
}

func (p *Parser) parseBinaryLevel(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseFactor()
	}
	left := p.parseBinaryLevel(level + 1)
	for {
		op, ok := p.matchOperator(binaryLevels[level])
		if !ok {
			return left
		}
		pos := p.curToken.Pos
		p.nextToken()
		right := p.parseBinaryLevel(level + 1)
		left = &BinaryOp{At: pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) matchOperator(ops []string) (string, bool) {
	if !p.curTokenIs(TokenOperator) {
		return "", false
	}
	for _, op := range ops {
		if p.curToken.Literal == op {
			return op, true
		}
	}
	return "", false
}

func (p *Parser) parseFactor() Expr {
	if op, ok := p.matchOperator([]string{"-", "+", "~"}); ok {
		pos := p.curToken.Pos
		p.nextToken()
		return &UnaryOp{At: pos, Op: op, Operand: p.parseFactor()}
	}
	return p.parsePower()
}

func (p *Parser) parsePower() Expr {
	base := p.parseAtomExpr()
	if p.curIs("**") {
		pos := p.curToken.Pos
		p.nextToken()
		return &BinaryOp{At: pos, Op: "**", Left: base, Right: p.parseFactor()}
	}
	return base
}

func (p *Parser) parseAtomExpr() Expr {
	e := p.parseAtom()
	for {
		pos := p.curToken.Pos
		switch {
		case p.curTokenIs(TokenLParen):
			p.nextToken()
			call := &Call{At: pos, Func: e}
			for !p.curTokenIs(TokenRParen) {
				if p.curIs("*") || p.curIs("**") {
					p.errorf("argument unpacking in calls is not supported")
					return e
				}
				if p.curTokenIs(TokenIdentifier) && p.peekToken.Type == TokenAssign {
					p.errorf("keyword arguments are not supported")
					return e
				}
				call.Args = append(call.Args, p.parseTest())
				if !p.curTokenIs(TokenComma) {
					break
				}
				p.nextToken()
			}
			p.expect(TokenRParen)
			e = call
		case p.curTokenIs(TokenLBracket):
			p.nextToken()
			e = &Subscript{At: pos, Value: e, Index: p.parseSubscript()}
			p.expect(TokenRBracket)
		case p.curTokenIs(TokenDot):
			p.errorf("attribute access is not supported")
			return e
		default:
			return e
		}
	}
}

// parseSubscript parses an index or a slice.
func (p *Parser) parseSubscript() Expr {
	pos := p.curToken.Pos
	var lo Expr
	if !p.curTokenIs(TokenColon) {
		lo = p.parseExprList()
		if !p.curTokenIs(TokenColon) {
			return lo
		}
	}
	s := &SliceExpr{At: pos, Lo: lo}
	p.nextToken()
	if !p.curTokenIs(TokenColon) && !p.curTokenIs(TokenRBracket) {
		s.Hi = p.parseTest()
	}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		s.HasStep = true
		if !p.curTokenIs(TokenRBracket) {
			s.Step = p.parseTest()
		}
	}
	return s
}

func (p *Parser) parseAtom() Expr {
	tok := p.curToken
	pos := tok.Pos
	switch tok.Type {
	case TokenIdentifier:
		p.nextToken()
		return &Name{At: pos, Id: tok.Literal}
	case TokenInteger:
		p.nextToken()
		v, err := parseIntLiteral(tok.Literal)
		if err != nil {
			p.errorf("%v", err)
		}
		return &IntLiteral{At: pos, Value: v}
	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(strings.ReplaceAll(tok.Literal, "_", ""), 64)
		if err != nil {
			p.errorf("invalid float literal %q", tok.Literal)
		}
		return &FloatLiteral{At: pos, Value: v}
	case TokenString:
		var sb strings.Builder
		for p.curTokenIs(TokenString) {
			sb.WriteString(p.curToken.Literal)
			p.nextToken()
		}
		return &StringLiteral{At: pos, Value: sb.String()}
	case TokenKeyword:
		switch tok.Literal {
		case "None", "True", "False":
			p.nextToken()
			return &ConstLiteral{At: pos, Value: tok.Literal}
		}
	case TokenLParen:
		p.nextToken()
		if p.curTokenIs(TokenRParen) {
			p.nextToken()
			return &TupleExpr{At: pos}
		}
		e := p.parseExprList()
		p.expect(TokenRParen)
		return e
	case TokenLBracket:
		p.nextToken()
		elems := p.parseDisplayElems(TokenRBracket)
		return &ListExpr{At: pos, Elems: elems}
	case TokenLBrace:
		return p.parseBraceDisplay()
	case TokenError:
		p.errorf("%s", tok.Literal)
		return &ConstLiteral{At: pos, Value: "None"}
	}
	p.errorf("unexpected %s", tok)
	p.nextToken()
	return &ConstLiteral{At: pos, Value: "None"}
}

func (p *Parser) parseDisplayElems(closer TokenType) []Expr {
	var elems []Expr
	for !p.curTokenIs(closer) {
		elems = append(elems, p.parseTestOrStar())
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(closer)
	return elems
}

// parseBraceDisplay parses a dict or set display.
func (p *Parser) parseBraceDisplay() Expr {
	pos := p.curToken.Pos
	p.nextToken()
	if p.curTokenIs(TokenRBrace) {
		p.nextToken()
		return &DictExpr{At: pos}
	}
	if p.curIs("**") || !p.isSetStart() {
		d := &DictExpr{At: pos}
		for !p.curTokenIs(TokenRBrace) {
			if p.curIs("**") {
				p.nextToken()
				d.Keys = append(d.Keys, nil)
				d.Values = append(d.Values, p.parseBitOr())
			} else {
				d.Keys = append(d.Keys, p.parseTest())
				if !p.expect(TokenColon) {
					return d
				}
				d.Values = append(d.Values, p.parseTest())
			}
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		p.expect(TokenRBrace)
		return d
	}
	return &SetExpr{At: pos, Elems: p.parseDisplayElems(TokenRBrace)}
}

// isSetStart looks past the first display element to tell sets from
// dicts: a set's first element is starred or not followed by ':'.
func (p *Parser) isSetStart() bool {
	if p.curIs("*") {
		return true
	}
	saved := *p
	savedLexer := *p.lexer
	p.parseTest()
	isSet := !p.curTokenIs(TokenColon)
	*p.lexer = savedLexer
	*p = saved
	return isSet
}

// parseIntLiteral parses decimal, hex, octal and binary integers.
func parseIntLiteral(lit string) (*big.Int, error) {
	s := strings.ToLower(lit)
	v := new(big.Int)
	if len(s) > 1 && s[0] == '0' && strings.ContainsRune("xob", rune(s[1])) {
		if _, ok := v.SetString(s, 0); !ok {
			return v, fmt.Errorf("invalid integer literal %q", lit)
		}
		return v, nil
	}
	s = strings.ReplaceAll(s, "_", "")
	if len(s) > 1 && s[0] == '0' && strings.Trim(s, "0") != "" {
		return v, fmt.Errorf("leading zeros in decimal integer literals are not permitted")
	}
	if _, ok := v.SetString(s, 10); !ok {
		return v, fmt.Errorf("invalid integer literal %q", lit)
	}
	return v, nil
}
