package compiler

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
)

func mustParse(t *testing.T, src string) []ast.Command {
	t.Helper()
	cmds, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return cmds
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want ast.Command
	}{
		{"declare", "@declare mut $x 5u8",
			ast.DeclareVariable{Kind: ast.Mut, Name: "x", Value: ast.Lit(ast.U8(5))}},
		{"declare default kind", "@declare $x 5",
			ast.DeclareVariable{Kind: ast.Const, Name: "x", Value: ast.Lit(ast.U8(5))}},
		{"assign", "=$x + $x 1u8",
			ast.AssignVariable{Name: "x", Value: ast.BinaryExpr{Op: ast.OpAdd, Left: ast.VarExpr{Name: "x"}, Right: ast.Lit(ast.U8(1))}}},
		{"puts", `@puts "hi\n"`, ast.Puts{Value: ast.Lit(ast.String("hi\n"))}},
		{"push", "@push 'x'", ast.Push{Value: ast.Lit(ast.Char('x'))}},
		{"scope", "{ @break }", ast.Scope{Body: []ast.Command{ast.Break{}}}},
		{"loop", "@loop {}", ast.Loop{Body: []ast.Command{}}},
		{"if", "@if true { @break }",
			ast.Conditional{Condition: ast.Lit(ast.Bool(true)), Body: []ast.Command{ast.Break{}}}},
		{"if else", "@if false {} @else { @break }",
			ast.Conditional{Condition: ast.Lit(ast.Bool(false)), Body: []ast.Command{}, Otherwise: []ast.Command{ast.Break{}}}},
		{"return", "@return null", ast.Return{Value: ast.Lit(ast.Null{})}},
		{"bare return", "@return", ast.Return{Value: ast.Lit(ast.Null{})}},
		{"builtin", "@builtin .io.stdout.write $a prev",
			ast.Builtin{Name: ".io.stdout.write", Args: []ast.Expression{ast.VarExpr{Name: "a"}, ast.PrevExpr{}}}},
		{"builtin no args", "@builtin .vm.create", ast.Builtin{Name: ".vm.create"}},
		{"call", "@call $f 1u8 _",
			ast.Call{Callee: ast.VarExpr{Name: "f"}, Args: []ast.Expression{ast.Lit(ast.U8(1)), ast.PrevExpr{}}}},
		{"for", "@for $n in .. 0u8 3u8 {}",
			ast.For{Var: "n", Iterator: ast.RangeExpr{From: ast.Lit(ast.U8(0)), To: ast.Lit(ast.U8(3))}, Body: []ast.Command{}}},
		{"function", "@fn $id ($a mut #u8, $b) #u8 { @return $a }",
			ast.DeclareFunction{
				Name: "id",
				Params: []ast.Param{
					{Name: "a", Kind: ast.Mut, Type: ast.U8Type},
					{Name: "b", Kind: ast.Const, Type: ast.AnonymousType{}},
				},
				Ret:  ast.U8Type,
				Body: []ast.Command{ast.Return{Value: ast.VarExpr{Name: "a"}}},
			}},
		{"struct", "@struct #Point { x #u8 tag + #string #bool }",
			ast.Struct{Name: "Point", Fields: []ast.FieldDef{
				{Name: "x", Type: ast.U8Type},
				{Name: "tag", Type: ast.UnionType{A: ast.StringType, B: ast.BoolType}},
			}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := mustParse(t, tt.src)
			if len(cmds) != 1 {
				t.Fatalf("Parse(%q) returned %d commands, want 1", tt.src, len(cmds))
			}
			if !reflect.DeepEqual(cmds[0], tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.src, cmds[0], tt.want)
			}
		})
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want ast.Expression
	}{
		{"300", ast.Lit(ast.I16(300))},
		{"-3i16", ast.Lit(ast.I16(-3))},
		{"1.5", ast.Lit(ast.F32(1.5))},
		{"2.0f32", ast.Lit(ast.F32(2))},
		{"'é'", ast.Lit(ast.Char('é'))},
		{"- 5u8 3u8", ast.BinaryExpr{Op: ast.OpSub, Left: ast.Lit(ast.U8(5)), Right: ast.Lit(ast.U8(3))}},
		{"<= $a (* $b 2u8)", ast.BinaryExpr{
			Op:    ast.OpLessThanEqual,
			Left:  ast.VarExpr{Name: "a"},
			Right: ast.BinaryExpr{Op: ast.OpMult, Left: ast.VarExpr{Name: "b"}, Right: ast.Lit(ast.U8(2))},
		}},
		{". $s length", ast.PropertyExpr{Base: ast.VarExpr{Name: "s"}, Key: ast.Lit(ast.String("length"))}},
		{". $s 0u8", ast.PropertyExpr{Base: ast.VarExpr{Name: "s"}, Key: ast.Lit(ast.U8(0))}},
		{`. $o "in"`, ast.PropertyExpr{Base: ast.VarExpr{Name: "o"}, Key: ast.Lit(ast.String("in"))}},
		{"& let $x", ast.RefExpr{Kind: ast.Let, Inner: ast.VarExpr{Name: "x"}}},
		{"# {}", ast.StructExpr{Type: ast.AnonymousType{}}},
		{"#Point { x 1u8 y $y }", ast.StructExpr{Type: ast.NamedType{Name: "Point"}, Fields: []ast.FieldInit{
			{Name: "x", Value: ast.Lit(ast.U8(1))},
			{Name: "y", Value: ast.VarExpr{Name: "y"}},
		}}},
		{"@fn mut () #fn(#u8) # {}", ast.Lit(&ast.Function{
			Mutable: true,
			Ret:     ast.FunType{Params: []ast.Type{ast.U8Type}, Ret: ast.AnonymousType{}},
			Body:    []ast.Command{},
		})},
		{"@fn ($a) {}", ast.Lit(&ast.Function{
			Params: []ast.Param{{Name: "a", Kind: ast.Const, Type: ast.AnonymousType{}}},
			Ret:    ast.AnonymousType{},
			Body:   []ast.Command{},
		})},
	}
	for _, tt := range tests {
		cmds := mustParse(t, "@puts "+tt.src)
		got := cmds[0].(ast.Puts).Value
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("expression %q = %#v, want %#v", tt.src, got, tt.want)
		}
	}
}

func TestParseTypes(t *testing.T) {
	tests := []struct {
		src  string
		want ast.Type
	}{
		{"#", ast.AnonymousType{}},
		{"#bool", ast.BoolType},
		{"#Node", ast.NamedType{Name: "Node"}},
		{"#(#u8, #string)", ast.TupleType{Types: []ast.Type{ast.U8Type, ast.StringType}}},
		{"#()", ast.TupleType{}},
		{"+ #u8 + #bool #", ast.UnionType{A: ast.U8Type, B: ast.UnionType{A: ast.BoolType, B: ast.AnonymousType{}}}},
		{"#fn(#u8, #u8) #bool", ast.FunType{Params: []ast.Type{ast.U8Type, ast.U8Type}, Ret: ast.BoolType}},
	}
	for _, tt := range tests {
		cmds := mustParse(t, "@struct #S { f "+tt.src+" }")
		got := cmds[0].(ast.Struct).Fields[0].Type
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("type %q = %#v, want %#v", tt.src, got, tt.want)
		}
	}
}

func TestParseDebugMeta(t *testing.T) {
	src := "@declare const $x 5u8\n@loop {\n  @break\n}"
	cmds, err := ParseWithOptions(src, Options{File: "main.aml3", Debug: true})
	if err != nil {
		t.Fatalf("ParseWithOptions: %v", err)
	}
	want := []ast.Command{
		ast.MetaFile{File: "main.aml3"},
		ast.Meta{Line: 1, Col: 1, Code: "@declare const $x 5u8"},
		ast.DeclareVariable{Kind: ast.Const, Name: "x", Value: ast.Lit(ast.U8(5))},
		ast.Meta{Line: 2, Col: 1, Code: "@loop {"},
		ast.Loop{Body: []ast.Command{
			ast.Meta{Line: 3, Col: 3, Code: "@break"},
			ast.Break{},
		}},
	}
	if !reflect.DeepEqual(cmds, want) {
		t.Errorf("ParseWithOptions = %#v\nwant %#v", cmds, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"@puts", "1:6: expected expression, got EOF"},
		{"@declare const x 1", `1:16: expected variable such as $x, got IDENT("x")`},
		{"@declare fixed $x 1", `1:10: unknown variable kind "fixed"`},
		{"@puts 300u8", "1:7: invalid u8 literal 300u8"},
		{"@puts 70000", "1:7: integer 70000 does not fit in u8 or i16"},
		{"@puts 1q8", `1:7: unknown numeric suffix "q8"`},
		{"@loop {", "1:8: unterminated block"},
		{"}", "1:1: unexpected }"},
		{"@else {}", "1:1: @else without @if"},
		{"@frob 1", "1:1: unknown command @frob"},
		{"@puts foo", `1:7: unexpected identifier "foo"`},
		{"@for $x of $y {}", `1:9: expected in, got IDENT("of")`},
		{"@builtin vm", `1:10: expected builtin name such as .io.stdout.flush, got IDENT("vm")`},
		{`@puts "open`, "1:7: unterminated string"},
	}
	for _, tt := range tests {
		_, err := Parse(tt.src)
		var list ErrorList
		if !errors.As(err, &list) {
			t.Errorf("Parse(%q) error = %v, want ErrorList", tt.src, err)
			continue
		}
		if got := list[0].Error(); got != tt.want {
			t.Errorf("Parse(%q) error = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	src := "@frob 1 2\n@puts 1u8\n@loop { @puts }\n@puts 2u8"
	p := NewParser(src, Options{})
	cmds := p.ParseProgram()
	if n := len(p.Errors()); n != 2 {
		t.Errorf("len(Errors()) = %d, want 2: %v", n, p.Errors())
	}
	want := []ast.Command{
		ast.Puts{Value: ast.Lit(ast.U8(1))},
		ast.Loop{Body: []ast.Command{}},
		ast.Puts{Value: ast.Lit(ast.U8(2))},
	}
	if !reflect.DeepEqual(cmds, want) {
		t.Errorf("ParseProgram = %#v, want %#v", cmds, want)
	}
	if !strings.Contains(p.Errors().Error(), "and 1 more errors") {
		t.Errorf("Errors().Error() = %q, want a count of further errors", p.Errors().Error())
	}
}

func TestSymbols(t *testing.T) {
	src := "@declare mut $x 1u8\n@fn $f ($a const #u8) #u8 {\n  @for $i in .. 0u8 $a {}\n}\n@struct #P {}"
	p := NewParser(src, Options{})
	p.ParseProgram()
	if err := p.Errors().Err(); err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}

	want := []Symbol{
		{Name: "x", Kind: "mut", Detail: "@declare mut $x", Pos: Position{Offset: 13, Line: 1, Column: 14}},
		{Name: "a", Kind: "param", Detail: "$a const #u8", Pos: Position{Offset: 28, Line: 2, Column: 9}},
		{Name: "i", Kind: "for", Detail: "@for $i", Pos: Position{Offset: 55, Line: 3, Column: 8}},
		{Name: "f", Kind: "fn", Detail: "@fn $f ($a const #u8) #u8", Pos: Position{Offset: 24, Line: 2, Column: 5}},
		{Name: "P", Kind: "struct", Detail: "@struct #P", Pos: Position{Offset: 84, Line: 5, Column: 9}},
	}
	if got := p.Symbols(); !reflect.DeepEqual(got, want) {
		t.Errorf("Symbols() = %+v\nwant %+v", got, want)
	}
}

// TestFormatRoundTrip checks that the bytecode listing is valid aml3 that
// parses back to the same commands.
func TestFormatRoundTrip(t *testing.T) {
	src := `
@struct #Point { x #u8 y #u8 }
@declare var $i 0u8
@declare const $p #Point { x 1u8 y 2u8 }
@declare let $m # { a "quote \" and tab \t" b 'c' }
@declare mut $f @fn mut ($n mut #u8, $s let #(#u8, #string)) #fn(#u8) + #bool # {
  @return * $n -2i16
}
@fn $g () # {
  @if != . $p x 1.5f32 {
    @break
  } @else {
    @for $v in .. 0u8 3u8 {
      @call $f & var $i . $m "in"
    }
  }
}
@loop {
  { @push prev }
  @builtin .mem.replace & mut $i . $m a
  =$i >= 2u8 < 1u8 > 3u8 <= 4u8 == 5u8 6u8
}
@return
`
	first := mustParse(t, src)
	listing := bytecode.FormatCommands(first)
	second, err := Parse(listing)
	if err != nil {
		t.Fatalf("Parse(listing): %v\n%s", err, listing)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("round trip changed the program\nlisting:\n%s", listing)
	}
}
