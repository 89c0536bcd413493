package compiler

import "testing"

func TestLexerTokenTypes(t *testing.T) {
	src := `@declare const $x 5u8 // trailing comment
=$x + $x -1i16
@builtin .io.stdout.write "a\"b" 'c'
@if >= $x 1.5f32 { @break } @else {}
. $p x .. 0u8 3u8 & mut $x
#Point # #( #fn( == != < <= > * , )`

	want := []struct {
		typ     TokenType
		literal string
	}{
		{TokenCommand, "declare"}, {TokenIdent, "const"}, {TokenVar, "x"}, {TokenNumber, "5u8"},
		{TokenAssign, "="}, {TokenVar, "x"}, {TokenOp, "+"}, {TokenVar, "x"}, {TokenNumber, "-1i16"},
		{TokenCommand, "builtin"}, {TokenBuiltin, ".io.stdout.write"}, {TokenString, `"a\"b"`}, {TokenChar, "'c'"},
		{TokenCommand, "if"}, {TokenOp, ">="}, {TokenVar, "x"}, {TokenNumber, "1.5f32"},
		{TokenLBrace, "{"}, {TokenCommand, "break"}, {TokenRBrace, "}"},
		{TokenCommand, "else"}, {TokenLBrace, "{"}, {TokenRBrace, "}"},
		{TokenDot, "."}, {TokenVar, "p"}, {TokenIdent, "x"},
		{TokenRange, ".."}, {TokenNumber, "0u8"}, {TokenNumber, "3u8"},
		{TokenAmp, "&"}, {TokenIdent, "mut"}, {TokenVar, "x"},
		{TokenTypeSigil, "Point"}, {TokenTypeSigil, ""}, {TokenHashLParen, "#("}, {TokenHashFn, "#fn("},
		{TokenOp, "=="}, {TokenOp, "!="}, {TokenOp, "<"}, {TokenOp, "<="}, {TokenOp, ">"}, {TokenOp, "*"},
		{TokenComma, ","}, {TokenRParen, ")"},
		{TokenEOF, ""},
	}

	toks := NewLexer(src).Tokens()
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w.typ || toks[i].Literal != w.literal {
			t.Errorf("token %d = %s %q, want %s %q", i, toks[i].Type, toks[i].Literal, w.typ, w.literal)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	toks := NewLexer("@puts 1\n  @puts \"é\" $y").Tokens()
	tests := []struct {
		idx  int
		line int
		col  int
	}{
		{0, 1, 1},
		{1, 1, 7},
		{2, 2, 3},
		{3, 2, 9},
		{4, 2, 13},
	}
	for _, tt := range tests {
		pos := toks[tt.idx].Pos
		if pos.Line != tt.line || pos.Column != tt.col {
			t.Errorf("token %d (%s) at %s, want %d:%d", tt.idx, toks[tt.idx], pos, tt.line, tt.col)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"open`, "unterminated string"},
		{"'x", "unterminated character"},
		{"$ x", "expected variable name"},
		{"@ puts", "expected command name"},
		{"!x", "expected != operator"},
		{"~", `unexpected character '~'`},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.src).NextToken()
		if tok.Type != TokenError || tok.Literal != tt.want {
			t.Errorf("NextToken(%q) = %s %q, want ERROR %q", tt.src, tok.Type, tok.Literal, tt.want)
		}
	}
}

func TestTypeSigilToken(t *testing.T) {
	toks := NewLexer("#Point #").Tokens()
	if len(toks) < 2 {
		t.Fatalf("Tokens() = %v, want at least 2 tokens", toks)
	}
	for i, want := range []string{"#Point", "#"} {
		if toks[i].Type != TokenTypeSigil {
			t.Errorf("token %d type = %v, want %v", i, toks[i].Type, TokenTypeSigil)
		}
		if got := toks[i].String(); got != want {
			t.Errorf("token %d String() = %q, want %q", i, got, want)
		}
	}
	if got := TokenTypeSigil.String(); got != "TYPE" {
		t.Errorf("TokenTypeSigil.String() = %q, want %q", got, "TYPE")
	}
}
