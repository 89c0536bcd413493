package compiler

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for aml3 source
// ---------------------------------------------------------------------------

// Lexer tokenizes aml3 source code.
type Lexer struct {
	input     string
	pos       int  // offset of ch
	readPos   int  // offset after ch
	ch        rune // current character, 0 at EOF
	line      int
	lineStart int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: utf8.RuneCountInString(l.input[l.lineStart:l.pos]) + 1,
	}
}

// Tokens returns every token up to and including EOF.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	pos := l.position()

	tok := l.scan()
	tok.Pos = pos
	tok.End = l.pos
	return tok
}

func (l *Lexer) scan() Token {
	switch ch := l.ch; {
	case ch == 0:
		return Token{Type: TokenEOF}

	case ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "("}
	case ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")"}
	case ch == '{':
		l.readChar()
		return Token{Type: TokenLBrace, Literal: "{"}
	case ch == '}':
		l.readChar()
		return Token{Type: TokenRBrace, Literal: "}"}
	case ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ","}
	case ch == '&':
		l.readChar()
		return Token{Type: TokenAmp, Literal: "&"}

	case ch == '$':
		return l.readSigiled(TokenVar, "variable name")
	case ch == '@':
		return l.readSigiled(TokenCommand, "command name")
	case ch == '#':
		return l.readHashToken()
	case ch == '.':
		return l.readDotToken()

	case ch == '"':
		return l.readQuoted('"', TokenString, "string")
	case ch == '\'':
		return l.readQuoted('\'', TokenChar, "character")

	case isDigit(ch), ch == '-' && isDigit(l.peekChar()):
		return l.readNumber()

	case isIdentStart(ch):
		return Token{Type: TokenIdent, Literal: l.readIdent()}

	case ch == '=':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenOp, Literal: "=="}
		}
		return Token{Type: TokenAssign, Literal: "="}
	case ch == '!':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenOp, Literal: "!="}
		}
		return Token{Type: TokenError, Literal: "expected != operator"}
	case ch == '<' || ch == '>':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenOp, Literal: string(ch) + "="}
		}
		return Token{Type: TokenOp, Literal: string(ch)}
	case ch == '+' || ch == '-' || ch == '*':
		l.readChar()
		return Token{Type: TokenOp, Literal: string(ch)}

	default:
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch)}
	}
}

// skipWhitespaceAndComments skips whitespace and // comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for unicode.IsSpace(l.ch) {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for isIdentStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readSigiled reads $name or @name.
func (l *Lexer) readSigiled(typ TokenType, what string) Token {
	l.readChar()
	if !isIdentStart(l.ch) {
		return Token{Type: TokenError, Literal: "expected " + what}
	}
	return Token{Type: typ, Literal: l.readIdent()}
}

// readHashToken reads a type: #, #name, #( or #fn(.
func (l *Lexer) readHashToken() Token {
	l.readChar() // consume #

	switch {
	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenHashLParen, Literal: "#("}
	case isIdentStart(l.ch):
		name := l.readIdent()
		if name == "fn" && l.ch == '(' {
			l.readChar()
			return Token{Type: TokenHashFn, Literal: "#fn("}
		}
		return Token{Type: TokenTypeSigil, Literal: name}
	default:
		return Token{Type: TokenTypeSigil, Literal: ""}
	}
}

// readDotToken reads the property operator, the range operator or a
// dotted builtin name.
func (l *Lexer) readDotToken() Token {
	start := l.pos
	l.readChar()
	switch {
	case l.ch == '.':
		l.readChar()
		return Token{Type: TokenRange, Literal: ".."}
	case isIdentStart(l.ch):
		for l.ch == '.' || isIdentStart(l.ch) || isDigit(l.ch) {
			if l.ch == '.' && !isIdentStart(l.peekChar()) {
				break
			}
			l.readChar()
		}
		return Token{Type: TokenBuiltin, Literal: l.input[start:l.pos]}
	default:
		return Token{Type: TokenDot, Literal: "."}
	}
}

// readQuoted reads a Go-style quoted literal. The literal keeps its quotes
// so the parser can unquote it with strconv.
func (l *Lexer) readQuoted(quote rune, typ TokenType, what string) Token {
	start := l.pos
	l.readChar() // opening quote
	for l.ch != quote {
		switch l.ch {
		case 0, '\n':
			return Token{Type: TokenError, Literal: "unterminated " + what}
		case '\\':
			l.readChar()
			if l.ch == 0 {
				return Token{Type: TokenError, Literal: "unterminated " + what}
			}
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: typ, Literal: l.input[start:l.pos]}
}

// readNumber reads a numeric literal with its optional type suffix.
func (l *Lexer) readNumber() Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	for isIdentStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos]}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
