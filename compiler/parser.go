package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for aml3
// ---------------------------------------------------------------------------

// Symbol is a name introduced by a declaration, recorded for tooling.
type Symbol struct {
	Name   string
	Kind   string // variable kind, "fn", "param", "for" or "struct"
	Detail string
	Pos    Position
}

// Parser parses aml3 source code into commands.
type Parser struct {
	lexer   *Lexer
	opts    Options
	lines   []string
	cur     Token
	peek    Token
	errors  ErrorList
	symbols []Symbol
}

// NewParser creates a new parser for the given input.
func NewParser(input string, opts Options) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
		opts:  opts,
		lines: strings.Split(input, "\n"),
	}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...any) {
	p.errorAt(p.cur.Pos, format, args...)
}

func (p *Parser) errorAt(pos Position, format string, args ...any) {
	p.errors = append(p.errors, &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// unexpected reports the current token as out of place.
func (p *Parser) unexpected(want string) {
	if p.cur.Type == TokenError {
		p.errorf("%s", p.cur.Literal)
		return
	}
	p.errorf("expected %s, got %s", want, p.cur)
}

func (p *Parser) expect(t TokenType) bool {
	if p.cur.Type == t {
		p.next()
		return true
	}
	p.unexpected(t.String())
	return false
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() ErrorList {
	return p.errors
}

// Symbols returns the declarations seen so far, in source order.
func (p *Parser) Symbols() []Symbol {
	return p.symbols
}

func (p *Parser) declare(name, kind, detail string, pos Position) {
	p.symbols = append(p.symbols, Symbol{Name: name, Kind: kind, Detail: detail, Pos: pos})
}

// sourceLine returns the trimmed text of a 1-based line.
func (p *Parser) sourceLine(line int) string {
	if line < 1 || line > len(p.lines) {
		return ""
	}
	return strings.TrimSpace(p.lines[line-1])
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// ParseProgram parses the whole input. Errors are collected and parsing
// resumes at the next command, so the result is partial when Errors is
// not empty.
func (p *Parser) ParseProgram() []ast.Command {
	cmds := []ast.Command{}
	if p.opts.File != "" {
		cmds = append(cmds, ast.MetaFile{File: p.opts.File})
	}
	for p.cur.Type != TokenEOF {
		if p.cur.Type == TokenRBrace {
			p.errorf("unexpected }")
			p.next()
			continue
		}
		cmds = p.parseInto(cmds)
	}
	return cmds
}

// parseInto parses one command, with its Meta prefix in debug mode, and
// appends it to cmds. On error it skips ahead to the next command.
func (p *Parser) parseInto(cmds []ast.Command) []ast.Command {
	start := p.cur
	cmd, ok := p.parseCommand()
	if !ok {
		p.synchronize(start.Pos.Offset)
		return cmds
	}
	if p.opts.Debug {
		cmds = append(cmds, ast.Meta{
			Line: clampU16(start.Pos.Line),
			Col:  clampU16(start.Pos.Column),
			Code: p.sourceLine(start.Pos.Line),
		})
	}
	return append(cmds, cmd)
}

// synchronize skips to the next token that can begin a command in the
// current block.
func (p *Parser) synchronize(start int) {
	if p.cur.Pos.Offset == start && p.cur.Type != TokenEOF {
		p.next()
	}
	depth := 0
	for p.cur.Type != TokenEOF {
		switch p.cur.Type {
		case TokenLBrace:
			depth++
		case TokenRBrace:
			if depth == 0 {
				return
			}
			depth--
		case TokenCommand, TokenAssign:
			if depth == 0 && !p.atFunctionLiteral() {
				return
			}
		}
		p.next()
	}
}

// parseBlock parses { commands }. The result is never nil.
func (p *Parser) parseBlock() ([]ast.Command, bool) {
	if !p.expect(TokenLBrace) {
		return nil, false
	}
	body := []ast.Command{}
	for p.cur.Type != TokenRBrace {
		if p.cur.Type == TokenEOF {
			p.errorf("unterminated block")
			return nil, false
		}
		body = p.parseInto(body)
	}
	p.next()
	return body, true
}

func (p *Parser) parseCommand() (ast.Command, bool) {
	switch p.cur.Type {
	case TokenAssign:
		p.next()
		name, ok := p.parseVarName()
		if !ok {
			return nil, false
		}
		value, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		return ast.AssignVariable{Name: name, Value: value}, true

	case TokenLBrace:
		body, ok := p.parseBlock()
		if !ok {
			return nil, false
		}
		return ast.Scope{Body: body}, true

	case TokenCommand:
		word := p.cur
		p.next()
		switch word.Literal {
		case "declare":
			return p.parseDeclare()
		case "puts", "push":
			value, ok := p.parseExpr()
			if !ok {
				return nil, false
			}
			if word.Literal == "puts" {
				return ast.Puts{Value: value}, true
			}
			return ast.Push{Value: value}, true
		case "loop":
			body, ok := p.parseBlock()
			if !ok {
				return nil, false
			}
			return ast.Loop{Body: body}, true
		case "if":
			return p.parseIf()
		case "break":
			return ast.Break{}, true
		case "return":
			if !p.atExprStart() {
				return ast.Return{Value: ast.Lit(ast.Null{})}, true
			}
			value, ok := p.parseExpr()
			if !ok {
				return nil, false
			}
			return ast.Return{Value: value}, true
		case "builtin":
			if p.cur.Type != TokenBuiltin {
				p.unexpected("builtin name such as .io.stdout.flush")
				return nil, false
			}
			name := p.cur.Literal
			p.next()
			args, ok := p.parseArgs()
			if !ok {
				return nil, false
			}
			return ast.Builtin{Name: name, Args: args}, true
		case "call":
			callee, ok := p.parseExpr()
			if !ok {
				return nil, false
			}
			args, ok := p.parseArgs()
			if !ok {
				return nil, false
			}
			return ast.Call{Callee: callee, Args: args}, true
		case "for":
			return p.parseFor()
		case "fn":
			return p.parseFunction()
		case "struct":
			return p.parseStruct()
		case "else":
			p.errorAt(word.Pos, "@else without @if")
			return nil, false
		}
		p.errorAt(word.Pos, "unknown command @%s", word.Literal)
		return nil, false
	}
	p.unexpected("command")
	return nil, false
}

func (p *Parser) parseDeclare() (ast.Command, bool) {
	kind := ast.Const
	if p.cur.Type == TokenIdent {
		k, ok := ast.ParseVariableKind(p.cur.Literal)
		if !ok {
			p.errorf("unknown variable kind %q", p.cur.Literal)
			return nil, false
		}
		kind = k
		p.next()
	}
	pos := p.cur.Pos
	name, ok := p.parseVarName()
	if !ok {
		return nil, false
	}
	value, ok := p.parseExpr()
	if !ok {
		return nil, false
	}
	p.declare(name, kind.String(), "@declare "+kind.String()+" $"+name, pos)
	return ast.DeclareVariable{Kind: kind, Name: name, Value: value}, true
}

func (p *Parser) parseIf() (ast.Command, bool) {
	cond, ok := p.parseExpr()
	if !ok {
		return nil, false
	}
	body, ok := p.parseBlock()
	if !ok {
		return nil, false
	}
	c := ast.Conditional{Condition: cond, Body: body}
	if p.cur.Is(TokenCommand, "else") {
		p.next()
		if c.Otherwise, ok = p.parseBlock(); !ok {
			return nil, false
		}
	}
	return c, true
}

func (p *Parser) parseFor() (ast.Command, bool) {
	pos := p.cur.Pos
	name, ok := p.parseVarName()
	if !ok {
		return nil, false
	}
	if !p.cur.Is(TokenIdent, "in") {
		p.unexpected("in")
		return nil, false
	}
	p.next()
	it, ok := p.parseExpr()
	if !ok {
		return nil, false
	}
	body, ok := p.parseBlock()
	if !ok {
		return nil, false
	}
	p.declare(name, "for", "@for $"+name, pos)
	return ast.For{Var: name, Iterator: it, Body: body}, true
}

func (p *Parser) parseFunction() (ast.Command, bool) {
	pos := p.cur.Pos
	name, ok := p.parseVarName()
	if !ok {
		return nil, false
	}
	params, ret, ok := p.parseSignature()
	if !ok {
		return nil, false
	}
	body, ok := p.parseBlock()
	if !ok {
		return nil, false
	}
	fn := ast.DeclareFunction{Name: name, Params: params, Ret: ret, Body: body}
	p.declare(name, "fn", signatureDetail(fn), pos)
	return fn, true
}

// signatureDetail renders the header line of a function declaration.
func signatureDetail(fn ast.DeclareFunction) string {
	fn.Body = nil
	head, _, _ := strings.Cut(bytecode.FormatCommands([]ast.Command{fn}), "\n")
	return strings.TrimSuffix(head, " {")
}

func (p *Parser) parseStruct() (ast.Command, bool) {
	if p.cur.Type != TokenTypeSigil || p.cur.Literal == "" {
		p.unexpected("struct name such as #Point")
		return nil, false
	}
	pos, name := p.cur.Pos, p.cur.Literal
	p.next()
	if !p.expect(TokenLBrace) {
		return nil, false
	}
	var fields []ast.FieldDef
	for p.cur.Type != TokenRBrace {
		if p.cur.Type != TokenIdent {
			p.unexpected("field name")
			return nil, false
		}
		field := p.cur.Literal
		p.next()
		t, ok := p.parseType()
		if !ok {
			return nil, false
		}
		fields = append(fields, ast.FieldDef{Name: field, Type: t})
	}
	p.next()
	p.declare(name, "struct", "@struct #"+name, pos)
	return ast.Struct{Name: name, Fields: fields}, true
}

// parseSignature parses ($name kind type, ...) ret. Kinds default to
// const and omitted types to the anonymous type.
func (p *Parser) parseSignature() ([]ast.Param, ast.Type, bool) {
	if !p.expect(TokenLParen) {
		return nil, nil, false
	}
	var params []ast.Param
	for p.cur.Type != TokenRParen {
		if len(params) > 0 && !p.expect(TokenComma) {
			return nil, nil, false
		}
		pos := p.cur.Pos
		name, ok := p.parseVarName()
		if !ok {
			return nil, nil, false
		}
		prm := ast.Param{Name: name, Kind: ast.Const, Type: ast.AnonymousType{}}
		if p.cur.Type == TokenIdent {
			k, ok := ast.ParseVariableKind(p.cur.Literal)
			if !ok {
				p.errorf("unknown variable kind %q", p.cur.Literal)
				return nil, nil, false
			}
			prm.Kind = k
			p.next()
		}
		if p.atTypeStart() {
			if prm.Type, ok = p.parseType(); !ok {
				return nil, nil, false
			}
		}
		p.declare(name, "param", "$"+name+" "+prm.Kind.String()+" "+prm.Type.String(), pos)
		params = append(params, prm)
	}
	p.next()

	var ret ast.Type = ast.AnonymousType{}
	if p.atTypeStart() {
		var ok bool
		if ret, ok = p.parseType(); !ok {
			return nil, nil, false
		}
	}
	return params, ret, true
}

func (p *Parser) parseVarName() (string, bool) {
	if p.cur.Type != TokenVar {
		p.unexpected("variable such as $x")
		return "", false
	}
	name := p.cur.Literal
	p.next()
	return name, true
}

// parseArgs parses expressions up to the next command or block end.
func (p *Parser) parseArgs() ([]ast.Expression, bool) {
	var args []ast.Expression
	for p.atExprStart() {
		x, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		args = append(args, x)
	}
	return args, true
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// literalWords are the identifiers that are expressions on their own.
var literalWords = map[string]bool{
	"true": true, "false": true, "null": true, "prev": true, "_": true,
}

func (p *Parser) atFunctionLiteral() bool {
	return p.cur.Is(TokenCommand, "fn") &&
		(p.peek.Type == TokenLParen || p.peek.Is(TokenIdent, "mut"))
}

func (p *Parser) atExprStart() bool {
	switch p.cur.Type {
	case TokenNumber, TokenString, TokenChar, TokenVar, TokenOp, TokenDot,
		TokenRange, TokenAmp, TokenLParen, TokenTypeSigil, TokenHashLParen, TokenHashFn:
		return true
	case TokenIdent:
		return literalWords[p.cur.Literal]
	case TokenCommand:
		return p.atFunctionLiteral()
	}
	return false
}

func (p *Parser) parseExpr() (ast.Expression, bool) {
	tok := p.cur
	switch tok.Type {
	case TokenNumber:
		p.next()
		v, err := parseNumber(tok.Literal)
		if err != nil {
			p.errorAt(tok.Pos, "%v", err)
			return nil, false
		}
		return ast.Lit(v), true

	case TokenString:
		p.next()
		s, err := strconv.Unquote(tok.Literal)
		if err != nil {
			p.errorAt(tok.Pos, "invalid string literal %s", tok.Literal)
			return nil, false
		}
		return ast.Lit(ast.String(s)), true

	case TokenChar:
		p.next()
		s, err := strconv.Unquote(tok.Literal)
		if err != nil || utf8.RuneCountInString(s) != 1 {
			p.errorAt(tok.Pos, "invalid character literal %s", tok.Literal)
			return nil, false
		}
		r, _ := utf8.DecodeRuneInString(s)
		return ast.Lit(ast.Char(r)), true

	case TokenIdent:
		p.next()
		switch tok.Literal {
		case "true":
			return ast.Lit(ast.Bool(true)), true
		case "false":
			return ast.Lit(ast.Bool(false)), true
		case "null":
			return ast.Lit(ast.Null{}), true
		case "prev", "_":
			return ast.PrevExpr{}, true
		}
		p.errorAt(tok.Pos, "unexpected identifier %q", tok.Literal)
		return nil, false

	case TokenVar:
		p.next()
		return ast.VarExpr{Name: tok.Literal}, true

	case TokenOp:
		p.next()
		op, _ := ast.BinaryOpFromSymbol(tok.Literal)
		l, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		r, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		return ast.BinaryExpr{Op: op, Left: l, Right: r}, true

	case TokenDot:
		p.next()
		base, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		if p.cur.Type == TokenIdent && bytecode.IsIdent(p.cur.Literal) {
			key := p.cur.Literal
			p.next()
			return ast.PropertyExpr{Base: base, Key: ast.Lit(ast.String(key))}, true
		}
		key, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		return ast.PropertyExpr{Base: base, Key: key}, true

	case TokenRange:
		p.next()
		from, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		to, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		return ast.RangeExpr{From: from, To: to}, true

	case TokenAmp:
		p.next()
		if p.cur.Type != TokenIdent {
			p.unexpected("variable kind")
			return nil, false
		}
		kind, ok := ast.ParseVariableKind(p.cur.Literal)
		if !ok {
			p.errorf("unknown variable kind %q", p.cur.Literal)
			return nil, false
		}
		p.next()
		inner, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		return ast.RefExpr{Kind: kind, Inner: inner}, true

	case TokenLParen:
		p.next()
		x, ok := p.parseExpr()
		if !ok || !p.expect(TokenRParen) {
			return nil, false
		}
		return x, true

	case TokenTypeSigil, TokenHashLParen, TokenHashFn:
		return p.parseStructExpr()

	case TokenCommand:
		if p.atFunctionLiteral() {
			return p.parseFunctionLiteral()
		}
	}
	p.unexpected("expression")
	return nil, false
}

func (p *Parser) parseStructExpr() (ast.Expression, bool) {
	t, ok := p.parseType()
	if !ok || !p.expect(TokenLBrace) {
		return nil, false
	}
	var fields []ast.FieldInit
	for p.cur.Type != TokenRBrace {
		if p.cur.Type != TokenIdent {
			p.unexpected("field name")
			return nil, false
		}
		name := p.cur.Literal
		p.next()
		v, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		fields = append(fields, ast.FieldInit{Name: name, Value: v})
	}
	p.next()
	return ast.StructExpr{Type: t, Fields: fields}, true
}

func (p *Parser) parseFunctionLiteral() (ast.Expression, bool) {
	p.next() // @fn
	mutable := false
	if p.cur.Is(TokenIdent, "mut") {
		mutable = true
		p.next()
	}
	params, ret, ok := p.parseSignature()
	if !ok {
		return nil, false
	}
	body, ok := p.parseBlock()
	if !ok {
		return nil, false
	}
	return ast.Lit(&ast.Function{Mutable: mutable, Params: params, Ret: ret, Body: body}), true
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (p *Parser) atTypeStart() bool {
	switch p.cur.Type {
	case TokenTypeSigil, TokenHashLParen, TokenHashFn:
		return true
	case TokenOp:
		return p.cur.Literal == "+"
	}
	return false
}

func (p *Parser) parseType() (ast.Type, bool) {
	tok := p.cur
	switch {
	case tok.Type == TokenTypeSigil:
		p.next()
		switch tok.Literal {
		case "":
			return ast.AnonymousType{}, true
		case "bool":
			return ast.BoolType, true
		case "string":
			return ast.StringType, true
		case "u8":
			return ast.U8Type, true
		}
		return ast.NamedType{Name: tok.Literal}, true

	case tok.Type == TokenHashLParen:
		p.next()
		types, ok := p.parseTypeList()
		if !ok {
			return nil, false
		}
		return ast.TupleType{Types: types}, true

	case tok.Type == TokenHashFn:
		p.next()
		params, ok := p.parseTypeList()
		if !ok {
			return nil, false
		}
		ret, ok := p.parseType()
		if !ok {
			return nil, false
		}
		return ast.FunType{Params: params, Ret: ret}, true

	case tok.Is(TokenOp, "+"):
		p.next()
		a, ok := p.parseType()
		if !ok {
			return nil, false
		}
		b, ok := p.parseType()
		if !ok {
			return nil, false
		}
		return ast.UnionType{A: a, B: b}, true
	}
	p.unexpected("type")
	return nil, false
}

// parseTypeList parses "T, T)" after an opening parenthesis.
func (p *Parser) parseTypeList() ([]ast.Type, bool) {
	var types []ast.Type
	for p.cur.Type != TokenRParen {
		if len(types) > 0 && !p.expect(TokenComma) {
			return nil, false
		}
		t, ok := p.parseType()
		if !ok {
			return nil, false
		}
		types = append(types, t)
	}
	p.next()
	return types, true
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// parseNumber converts a numeric literal. Unsuffixed integers become u8
// when they fit and i16 otherwise; a fraction or exponent makes an f32.
func parseNumber(lit string) (ast.Value, error) {
	num, suffix := lit, ""
	if i := strings.IndexFunc(lit, isSuffixStart); i >= 0 {
		num, suffix = lit[:i], lit[i:]
	}
	switch suffix {
	case "u8":
		n, err := strconv.ParseUint(num, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid u8 literal %s", lit)
		}
		return ast.U8(n), nil
	case "i16":
		n, err := strconv.ParseInt(num, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid i16 literal %s", lit)
		}
		return ast.I16(n), nil
	case "f32":
		f, err := strconv.ParseFloat(num, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid f32 literal %s", lit)
		}
		return ast.F32(f), nil
	case "":
		if strings.ContainsAny(num, ".eE") {
			f, err := strconv.ParseFloat(num, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid number %s", lit)
			}
			return ast.F32(f), nil
		}
		if n, err := strconv.ParseUint(num, 10, 8); err == nil {
			return ast.U8(n), nil
		}
		if n, err := strconv.ParseInt(num, 10, 16); err == nil {
			return ast.I16(n), nil
		}
		return nil, fmt.Errorf("integer %s does not fit in u8 or i16", lit)
	}
	return nil, fmt.Errorf("unknown numeric suffix %q", suffix)
}

// isSuffixStart matches the first letter of a type suffix. Exponent
// markers belong to the number.
func isSuffixStart(r rune) bool {
	return unicode.IsLetter(r) && r != 'e' && r != 'E'
}

func clampU16(n int) uint16 {
	if n > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(n)
}
