package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the aml3 lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber // 5u8, -3i16, 1.5f32, 42
	TokenString // "text"
	TokenChar   // 'c'
	TokenIdent  // true, const, field names

	// Sigiled words
	TokenVar       // $name
	TokenCommand   // @declare
	TokenBuiltin   // .io.stdout.flush
	TokenTypeSigil // #u8, #Point, # (empty literal)

	// Operators
	TokenOp    // + - * == != > >= < <=
	TokenDot   // .
	TokenRange // ..
	TokenAmp   // &
	TokenAssign

	// Delimiters
	TokenLParen     // (
	TokenRParen     // )
	TokenLBrace     // {
	TokenRBrace     // }
	TokenComma      // ,
	TokenHashLParen // #(
	TokenHashFn     // #fn(
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenChar:       "CHAR",
	TokenIdent:      "IDENT",
	TokenVar:        "VAR",
	TokenCommand:    "COMMAND",
	TokenBuiltin:    "BUILTIN",
	TokenTypeSigil:  "TYPE",
	TokenOp:         "OP",
	TokenDot:        ".",
	TokenRange:      "..",
	TokenAmp:        "&",
	TokenAssign:     "=",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenComma:      ",",
	TokenHashLParen: "#(",
	TokenHashFn:     "#fn(",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column, counted in runes
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token. For sigiled words Literal holds the
// word without its sigil.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     int // byte offset just past the token
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	case TokenVar:
		return "$" + t.Literal
	case TokenCommand:
		return "@" + t.Literal
	case TokenTypeSigil:
		return "#" + t.Literal
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Is reports whether the token is the given identifier or command word.
func (t Token) Is(typ TokenType, literal string) bool {
	return t.Type == typ && t.Literal == literal
}
