package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
)

// run executes cmds under the default header and returns what was written.
func run(t *testing.T, cmds ...ast.Command) (string, error) {
	t.Helper()
	return runWith(t, ast.DefaultHeader(), cmds...)
}

func runWith(t *testing.T, h ast.Header, cmds ...ast.Command) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rt := New(WithOutput(&out), WithInput(strings.NewReader("")))
	err := rt.Run(bytecode.NewProgram(h, cmds))
	if n := rt.LiveContexts(); n != 0 && rt.Handles().Len() == 0 {
		t.Errorf("LiveContexts() = %d after run, want 0", n)
	}
	return out.String(), err
}

func u8(n uint8) ast.Expression      { return ast.Lit(ast.U8(n)) }
func str(s string) ast.Expression    { return ast.Lit(ast.String(s)) }
func ref(name string) ast.Expression { return ast.VarExpr{Name: name} }

func bin(op ast.BinaryOp, l, r ast.Expression) ast.Expression {
	return ast.BinaryExpr{Op: op, Left: l, Right: r}
}

func declare(kind ast.VariableKind, name string, v ast.Expression) ast.Command {
	return ast.DeclareVariable{Kind: kind, Name: name, Value: v}
}

func puts(x ast.Expression) ast.Command { return ast.Puts{Value: x} }

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestDeclareAndPrint(t *testing.T) {
	out, err := run(t,
		declare(ast.Const, "x", u8(5)),
		puts(ref("x")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "5" {
		t.Errorf("output = %q, want %q", out, "5")
	}
}

func TestLoopWithBreak(t *testing.T) {
	out, err := run(t,
		declare(ast.Var, "i", u8(0)),
		ast.Loop{Body: []ast.Command{
			ast.Conditional{
				Condition: bin(ast.OpEqual, ref("i"), u8(3)),
				Body:      []ast.Command{ast.Break{}},
			},
			puts(ref("i")),
			ast.AssignVariable{Name: "i", Value: bin(ast.OpAdd, ref("i"), u8(1))},
		}},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "012" {
		t.Errorf("output = %q, want %q", out, "012")
	}
}

func TestForOverRange(t *testing.T) {
	out, err := run(t,
		ast.For{
			Var:      "n",
			Iterator: ast.RangeExpr{From: u8(0), To: u8(3)},
			Body:     []ast.Command{puts(ref("n"))},
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "012" {
		t.Errorf("output = %q, want %q", out, "012")
	}
}

func TestForOverDescendingRange(t *testing.T) {
	out, err := run(t,
		ast.For{
			Var:      "n",
			Iterator: ast.RangeExpr{From: u8(3), To: u8(0)},
			Body:     []ast.Command{puts(ref("n"))},
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "321" {
		t.Errorf("output = %q, want %q", out, "321")
	}
}

func TestForOverEmptyRange(t *testing.T) {
	out, err := run(t,
		ast.For{
			Var:      "n",
			Iterator: ast.RangeExpr{From: u8(2), To: u8(2)},
			Body:     []ast.Command{puts(ref("n"))},
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "" {
		t.Errorf("output = %q, want empty", out)
	}
}

func TestForBreak(t *testing.T) {
	out, err := run(t,
		ast.For{
			Var:      "n",
			Iterator: ast.RangeExpr{From: u8(0), To: u8(10)},
			Body: []ast.Command{
				ast.Conditional{
					Condition: bin(ast.OpEqual, ref("n"), u8(2)),
					Body:      []ast.Command{ast.Break{}},
				},
				puts(ref("n")),
			},
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "01" {
		t.Errorf("output = %q, want %q", out, "01")
	}
}

func TestForWithUserIterator(t *testing.T) {
	// An iterator counting down from 2; next decrements value and reports
	// done at zero.
	next := &ast.Function{
		Params: []ast.Param{{Name: "it", Kind: ast.Mut}},
		Body: []ast.Command{
			ast.Return{Value: ast.StructExpr{Type: ast.AnonymousType{}, Fields: []ast.FieldInit{
				{Name: "done", Value: bin(ast.OpEqual, ast.PropertyExpr{Base: ref("it"), Key: str("value")}, u8(1))},
				{Name: "value", Value: bin(ast.OpSub, ast.PropertyExpr{Base: ref("it"), Key: str("value")}, u8(1))},
			}}},
		},
	}
	out, err := run(t,
		declare(ast.Var, "it", ast.StructExpr{Type: ast.AnonymousType{}, Fields: []ast.FieldInit{
			{Name: "value", Value: u8(2)},
			{Name: "done", Value: ast.Lit(ast.Bool(false))},
			{Name: "next", Value: ast.Lit(next)},
		}}),
		ast.For{Var: "v", Iterator: ref("it"), Body: []ast.Command{puts(ref("v"))}},
		puts(ast.PropertyExpr{Base: ref("it"), Key: str("value")}),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The iterator variable is mutable, so it is advanced in place.
	if out != "211" {
		t.Errorf("output = %q, want %q", out, "211")
	}
}

func TestUndeclaredFunction(t *testing.T) {
	_, err := run(t, ast.Call{Callee: ref("missing")})
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Errorf("Run error = %v, want ErrUndefinedVariable", err)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	out, err := run(t,
		ast.DeclareFunction{
			Name:   "add",
			Params: []ast.Param{{Name: "a", Kind: ast.Const, Type: ast.U8Type}, {Name: "b", Kind: ast.Const, Type: ast.U8Type}},
			Ret:    ast.U8Type,
			Body:   []ast.Command{ast.Return{Value: bin(ast.OpAdd, ref("a"), ref("b"))}},
		},
		ast.Call{Callee: ref("add"), Args: []ast.Expression{u8(2), u8(3)}},
		puts(ast.PrevExpr{}),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "5" {
		t.Errorf("output = %q, want %q", out, "5")
	}
}

func TestCallByName(t *testing.T) {
	out, err := run(t,
		ast.DeclareFunction{Name: "hi", Body: []ast.Command{puts(str("hi"))}},
		ast.Call{Callee: str("hi")},
		puts(ast.PrevExpr{}),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hinull" {
		t.Errorf("output = %q, want %q", out, "hinull")
	}
}

func TestReturnFromNestedLoops(t *testing.T) {
	out, err := run(t,
		ast.DeclareFunction{Name: "f", Body: []ast.Command{
			ast.Loop{Body: []ast.Command{
				ast.Loop{Body: []ast.Command{
					ast.Return{Value: u8(7)},
				}},
				puts(str("unreachable")),
			}},
		}},
		ast.Call{Callee: ref("f")},
		puts(ast.PrevExpr{}),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "7" {
		t.Errorf("output = %q, want %q", out, "7")
	}
}

func TestBreakInsideNestedConditionals(t *testing.T) {
	out, err := run(t,
		ast.Loop{Body: []ast.Command{
			ast.Conditional{
				Condition: ast.Lit(ast.Bool(true)),
				Body: []ast.Command{
					ast.Conditional{
						Condition: ast.Lit(ast.Bool(false)),
						Body:      []ast.Command{puts(str("no"))},
						Otherwise: []ast.Command{puts(str("yes")), ast.Break{}},
					},
				},
			},
		}},
		puts(str("!")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "yes!" {
		t.Errorf("output = %q, want %q", out, "yes!")
	}
}

func TestEscapedControl(t *testing.T) {
	tests := []struct {
		name string
		cmd  ast.Command
	}{
		{"break", ast.Break{}},
		{"return", ast.Return{Value: u8(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.cmd)
			if !errors.Is(err, ErrEscapedControl) {
				t.Errorf("Run error = %v, want ErrEscapedControl", err)
			}
		})
	}
}

func TestBreakEscapingFunction(t *testing.T) {
	_, err := run(t,
		ast.Loop{Body: []ast.Command{
			ast.DeclareFunction{Name: "f", Body: []ast.Command{ast.Break{}}},
			ast.Call{Callee: ref("f")},
		}},
	)
	if !errors.Is(err, ErrEscapedControl) {
		t.Errorf("Run error = %v, want ErrEscapedControl", err)
	}
}

// ---------------------------------------------------------------------------
// Scoping and mutability
// ---------------------------------------------------------------------------

func TestShadowingInChildScope(t *testing.T) {
	out, err := run(t,
		declare(ast.Const, "x", u8(1)),
		ast.Scope{Body: []ast.Command{
			declare(ast.Const, "x", u8(2)),
			puts(ref("x")),
		}},
		puts(ref("x")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "21" {
		t.Errorf("output = %q, want %q", out, "21")
	}
}

func TestChildScopeVariablesDoNotLeak(t *testing.T) {
	_, err := run(t,
		ast.Scope{Body: []ast.Command{declare(ast.Const, "inner", u8(1))}},
		puts(ref("inner")),
	)
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Errorf("Run error = %v, want ErrUndefinedVariable", err)
	}
}

func TestAssignImmutable(t *testing.T) {
	for _, kind := range []ast.VariableKind{ast.Const, ast.Let} {
		t.Run(kind.String(), func(t *testing.T) {
			_, err := run(t,
				declare(kind, "x", u8(1)),
				ast.AssignVariable{Name: "x", Value: u8(2)},
			)
			if !errors.Is(err, ErrImmutableAssignment) {
				t.Errorf("Run error = %v, want ErrImmutableAssignment", err)
			}
		})
	}
}

func TestMutParameterAliasesCaller(t *testing.T) {
	out, err := run(t,
		ast.DeclareFunction{
			Name:   "bump",
			Params: []ast.Param{{Name: "n", Kind: ast.Mut}},
			Body:   []ast.Command{ast.AssignVariable{Name: "n", Value: bin(ast.OpAdd, ref("n"), u8(1))}},
		},
		declare(ast.Mut, "x", u8(1)),
		ast.Call{Callee: ref("bump"), Args: []ast.Expression{ref("x")}},
		puts(ref("x")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "2" {
		t.Errorf("output = %q, want %q", out, "2")
	}
}

func TestConstParameterIsCopied(t *testing.T) {
	out, err := run(t,
		ast.DeclareFunction{
			Name:   "peek",
			Params: []ast.Param{{Name: "p", Kind: ast.Const}},
			Body:   []ast.Command{puts(ref("p"))},
		},
		declare(ast.Var, "x", str("a")),
		ast.Call{Callee: ref("peek"), Args: []ast.Expression{ref("x")}},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "a" {
		t.Errorf("output = %q, want %q", out, "a")
	}
}

func TestParameterKindMismatch(t *testing.T) {
	_, err := run(t,
		ast.DeclareFunction{
			Name:   "bump",
			Params: []ast.Param{{Name: "n", Kind: ast.Mut}},
		},
		declare(ast.Const, "x", u8(1)),
		ast.Call{Callee: ref("bump"), Args: []ast.Expression{ref("x")}},
	)
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Run error = %v, want ErrKindMismatch", err)
	}
}

func TestParameterTypeMismatch(t *testing.T) {
	_, err := run(t,
		ast.DeclareFunction{
			Name:   "f",
			Params: []ast.Param{{Name: "s", Kind: ast.Const, Type: ast.StringType}},
		},
		ast.Call{Callee: ref("f"), Args: []ast.Expression{u8(1)}},
	)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Run error = %v, want ErrTypeMismatch", err)
	}
}

func TestArity(t *testing.T) {
	_, err := run(t,
		ast.DeclareFunction{Name: "f"},
		ast.Call{Callee: ref("f"), Args: []ast.Expression{u8(1)}},
	)
	if !errors.Is(err, ErrArity) {
		t.Errorf("Run error = %v, want ErrArity", err)
	}
}

func TestNotCallable(t *testing.T) {
	_, err := run(t,
		declare(ast.Const, "x", u8(1)),
		ast.Call{Callee: ref("x")},
	)
	if !errors.Is(err, ErrNotCallable) {
		t.Errorf("Run error = %v, want ErrNotCallable", err)
	}
}

func TestMutReferenceWritesThrough(t *testing.T) {
	out, err := run(t,
		declare(ast.Mut, "x", u8(1)),
		declare(ast.Const, "r", ast.RefExpr{Kind: ast.Mut, Inner: ref("x")}),
		ast.Builtin{Name: ".mem.replace", Args: []ast.Expression{ref("r"), u8(9)}},
		puts(ast.PrevExpr{}),
		puts(ref("x")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "19" {
		t.Errorf("output = %q, want %q", out, "19")
	}
}

func TestReferenceKindMismatch(t *testing.T) {
	_, err := run(t,
		declare(ast.Let, "x", u8(1)),
		declare(ast.Const, "r", ast.RefExpr{Kind: ast.Mut, Inner: ref("x")}),
	)
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Run error = %v, want ErrKindMismatch", err)
	}
}

func TestReferenceCycleRejected(t *testing.T) {
	var out bytes.Buffer
	rt := New(WithOutput(&out))
	s := rt.NewScope(ast.DefaultHeader())
	defer s.Release()

	err := s.Exec([]ast.Command{
		declare(ast.Mut, "a", u8(1)),
		declare(ast.Mut, "b", ast.RefExpr{Kind: ast.Mut, Inner: ref("a")}),
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Exec([]ast.Command{
			ast.AssignVariable{Name: "a", Value: ast.RefExpr{Kind: ast.Mut, Inner: ref("b")}},
		})
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrTypeMismatch) {
			t.Fatalf("cyclic assignment error = %v, want ErrTypeMismatch", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic assignment did not return")
	}

	if err := s.Exec([]ast.Command{puts(ref("a")), puts(ref("b"))}); err != nil {
		t.Fatalf("Exec after rejected assignment: %v", err)
	}
	rt.Flush()
	if out.String() != "11" {
		t.Errorf("output = %q, want %q", out.String(), "11")
	}
}

func TestSelfReferenceRejected(t *testing.T) {
	_, err := run(t,
		declare(ast.Mut, "a", u8(1)),
		ast.AssignVariable{Name: "a", Value: ast.RefExpr{Kind: ast.Mut, Inner: ref("a")}},
	)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Run error = %v, want ErrTypeMismatch", err)
	}
}

func TestFieldReferenceIntoOwnObjectRejected(t *testing.T) {
	obj := &ast.PropertyMap{Fields: map[string]ast.Value{"x": ast.U8(1)}}
	_, err := run(t,
		declare(ast.Mut, "p", ast.Lit(obj)),
		ast.Builtin{Name: ".obj.mut_access", Args: []ast.Expression{ref("p"), str("x")}},
		ast.AssignVariable{Name: "p", Value: ast.PrevExpr{}},
	)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Run error = %v, want ErrTypeMismatch", err)
	}
}

func TestReferenceToOtherVariableAllowed(t *testing.T) {
	out, err := run(t,
		declare(ast.Mut, "a", u8(1)),
		declare(ast.Mut, "c", u8(7)),
		declare(ast.Mut, "b", ast.RefExpr{Kind: ast.Mut, Inner: ref("a")}),
		ast.AssignVariable{Name: "b", Value: ast.RefExpr{Kind: ast.Mut, Inner: ref("c")}},
		puts(ref("b")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "7" {
		t.Errorf("output = %q, want %q", out, "7")
	}
}

func TestDerefBound(t *testing.T) {
	v := ast.Value(ast.U8(7))
	for i := 0; i < maxRefDepth+10; i++ {
		v = &Ref{RefKind: ast.Mut, Place: NewVariable(ast.Mut, v)}
	}
	if _, err := resolve(v); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("resolve(long chain) error = %v, want ErrTypeMismatch", err)
	}
	if got := v.String(); got != "[Ref]" {
		t.Errorf("String() = %q, want %q", got, "[Ref]")
	}

	short := ast.Value(&Ref{RefKind: ast.Mut, Place: NewVariable(ast.Mut, ast.U8(7))})
	if got, err := resolve(short); err != nil || got != ast.U8(7) {
		t.Errorf("resolve(short chain) = %v, %v, want 7", got, err)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expression
		want string
	}{
		{"add", bin(ast.OpAdd, u8(2), u8(3)), "5"},
		{"sub", bin(ast.OpSub, u8(5), u8(3)), "2"},
		{"mult", bin(ast.OpMult, u8(4), u8(3)), "12"},
		{"promote", bin(ast.OpAdd, u8(2), ast.Lit(ast.I16(-5))), "-3"},
		{"float", bin(ast.OpMult, ast.Lit(ast.F32(1.5)), u8(2)), "3"},
		{"concat", bin(ast.OpAdd, str("ab"), str("cd")), "abcd"},
		{"stringify", bin(ast.OpAdd, str("n="), u8(4)), "n=4"},
		{"less", bin(ast.OpLessThan, u8(1), u8(2)), "true"},
		{"greater equal", bin(ast.OpGreaterThanEqual, u8(1), u8(2)), "false"},
		{"not equal kinds", bin(ast.OpEqual, str("1"), u8(1)), "false"},
		{"equal promoted", bin(ast.OpEqual, u8(1), ast.Lit(ast.I16(1))), "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, puts(tt.expr))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestArithmeticOverflow(t *testing.T) {
	_, err := run(t, puts(bin(ast.OpAdd, u8(250), u8(10))))
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("Run error = %v, want ErrArithmeticOverflow", err)
	}
}

func TestCastingPolicies(t *testing.T) {
	mixed := puts(bin(ast.OpAdd, str("a"), u8(1)))
	numbers := puts(bin(ast.OpAdd, u8(1), ast.Lit(ast.I16(1))))
	bools := puts(bin(ast.OpAdd, ast.Lit(ast.Bool(true)), u8(1)))

	tests := []struct {
		name    string
		casting ast.Casting
		cmd     ast.Command
		want    string
		wantErr bool
	}{
		{"strict rejects numbers", ast.CastStrict, numbers, "", true},
		{"strict rejects strings", ast.CastStrict, mixed, "", true},
		{"type-strict promotes", ast.CastTypeStrict, numbers, "2", false},
		{"type-strict rejects strings", ast.CastTypeStrict, mixed, "", true},
		{"type-string stringifies", ast.CastTypeString, mixed, "a1", false},
		{"type-string rejects bool", ast.CastTypeString, bools, "", true},
		{"strictless stringifies bool", ast.CastStrictlessString, bools, "true1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runWith(t, ast.Header{Casting: tt.casting}, tt.cmd)
			if tt.wantErr {
				if !errors.Is(err, ErrTypeMismatch) {
					t.Errorf("Run error = %v, want ErrTypeMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestConditionMustBeBool(t *testing.T) {
	_, err := run(t, ast.Conditional{Condition: u8(1)})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Run error = %v, want ErrTypeMismatch", err)
	}
}

func TestStringProperties(t *testing.T) {
	tests := []struct {
		key  ast.Expression
		want string
	}{
		{str("length"), "5"},
		{u8(1), "é"},
		{u8(9), "null"},
		{ast.Lit(ast.I16(-1)), "null"},
	}
	for _, tt := range tests {
		out, err := run(t, puts(ast.PropertyExpr{Base: str("héllo"), Key: tt.key}))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if out != tt.want {
			t.Errorf("output = %q, want %q", out, tt.want)
		}
	}
}

func TestPrev(t *testing.T) {
	out, err := run(t,
		ast.Push{Value: u8(1)},
		ast.Push{Value: u8(2)},
		puts(ast.PrevExpr{}),
		puts(ast.PrevExpr{}),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "21" {
		t.Errorf("output = %q, want %q", out, "21")
	}

	_, err = run(t, puts(ast.PrevExpr{}))
	if !errors.Is(err, ErrNoPrevValue) {
		t.Errorf("Run error = %v, want ErrNoPrevValue", err)
	}
}

func TestPrevDropsOldest(t *testing.T) {
	var cmds []ast.Command
	for i := 0; i < prevCapacity+1; i++ {
		cmds = append(cmds, ast.Push{Value: u8(uint8(i))})
	}
	var want strings.Builder
	for i := prevCapacity; i > 0; i-- {
		cmds = append(cmds, puts(ast.PrevExpr{}))
		want.WriteString(ast.U8(i).String())
	}
	cmds = append(cmds, puts(ast.PrevExpr{}))

	out, err := run(t, cmds...)
	if !errors.Is(err, ErrNoPrevValue) {
		t.Errorf("Run error = %v, want ErrNoPrevValue", err)
	}
	if out != want.String() {
		t.Errorf("output = %q, want %q", out, want.String())
	}
}

// ---------------------------------------------------------------------------
// Structs
// ---------------------------------------------------------------------------

func pointDecl() ast.Command {
	return ast.Struct{Name: "Point", Fields: []ast.FieldDef{
		{Name: "x", Type: ast.U8Type},
		{Name: "y", Type: ast.U8Type},
	}}
}

func TestStructFieldAccess(t *testing.T) {
	out, err := run(t,
		pointDecl(),
		declare(ast.Const, "p", ast.StructExpr{Type: ast.NamedType{Name: "Point"}, Fields: []ast.FieldInit{
			{Name: "x", Value: u8(1)},
			{Name: "y", Value: u8(2)},
		}}),
		puts(ast.PropertyExpr{Base: ref("p"), Key: str("x")}),
		puts(ref("p")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "1#Point { x: 1, y: 2 }"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestStructMissingFieldIsNull(t *testing.T) {
	out, err := run(t,
		pointDecl(),
		puts(ast.StructExpr{Type: ast.NamedType{Name: "Point"}, Fields: []ast.FieldInit{{Name: "x", Value: u8(1)}}}),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "#Point { x: 1, y: null }"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestStructValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields []ast.FieldInit
	}{
		{"unknown field", []ast.FieldInit{{Name: "z", Value: u8(1)}}},
		{"wrong type", []ast.FieldInit{{Name: "x", Value: str("one")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, pointDecl(), puts(ast.StructExpr{Type: ast.NamedType{Name: "Point"}, Fields: tt.fields}))
			if !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("Run error = %v, want ErrTypeMismatch", err)
			}
		})
	}
}

func TestUndefinedType(t *testing.T) {
	_, err := run(t, puts(ast.StructExpr{Type: ast.NamedType{Name: "Nope"}}))
	if !errors.Is(err, ErrUndefinedType) {
		t.Errorf("Run error = %v, want ErrUndefinedType", err)
	}
}

func TestObjectsCopiedOnDeclare(t *testing.T) {
	out, err := run(t,
		declare(ast.Var, "a", ast.StructExpr{Type: ast.AnonymousType{}, Fields: []ast.FieldInit{{Name: "n", Value: u8(1)}}}),
		declare(ast.Var, "b", ref("a")),
		ast.Builtin{Name: ".obj.mut_access", Args: []ast.Expression{ref("b"), str("n")}},
		ast.Builtin{Name: ".mem.replace", Args: []ast.Expression{ast.PrevExpr{}, u8(5)}},
		puts(ref("a")),
		puts(ref("b")),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "# { n: 1 }# { n: 5 }"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func TestUnknownBuiltin(t *testing.T) {
	_, err := run(t, ast.Builtin{Name: ".nope"})
	if !errors.Is(err, ErrUnknownBuiltin) {
		t.Errorf("Run error = %v, want ErrUnknownBuiltin", err)
	}
}

func TestBuiltinArity(t *testing.T) {
	_, err := run(t, ast.Builtin{Name: ".vm.create", Args: []ast.Expression{u8(1)}})
	if !errors.Is(err, ErrArity) {
		t.Errorf("Run error = %v, want ErrArity", err)
	}
}

func TestObjMutAccessNeedsMutableReceiver(t *testing.T) {
	_, err := run(t,
		declare(ast.Const, "o", ast.StructExpr{Type: ast.AnonymousType{}}),
		ast.Builtin{Name: ".obj.mut_access", Args: []ast.Expression{ref("o"), str("n")}},
	)
	if !errors.Is(err, ErrImmutableAssignment) {
		t.Errorf("Run error = %v, want ErrImmutableAssignment", err)
	}
}

func TestStdoutWrite(t *testing.T) {
	out, err := run(t, ast.Builtin{Name: ".io.stdout.write", Args: []ast.Expression{str("a"), u8(1)}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "a1" {
		t.Errorf("output = %q, want %q", out, "a1")
	}
}

func TestStdinReadLine(t *testing.T) {
	var out bytes.Buffer
	rt := New(WithOutput(&out), WithInput(strings.NewReader("hello\r\nworld\n")))
	err := rt.Run(bytecode.NewProgram(ast.DefaultHeader(), []ast.Command{
		declare(ast.Var, "line", str("")),
		ast.Builtin{Name: ".io.stdin.read_line", Args: []ast.Expression{ref("line")}},
		puts(ref("line")),
		ast.Builtin{Name: ".io.stdin.read_line", Args: []ast.Expression{ref("line")}},
		puts(ref("line")),
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "helloworld" {
		t.Errorf("output = %q, want %q", out.String(), "helloworld")
	}
}

// stubParser recognizes a handful of fixed programs.
func stubParser(src string) ([]ast.Command, error) {
	switch src {
	case "declare":
		return []ast.Command{declare(ast.Const, "kept", u8(4))}, nil
	case "read":
		return []ast.Command{ast.Return{Value: ref("kept")}}, nil
	case "print":
		return []ast.Command{puts(str("sub"))}, nil
	}
	return nil, errors.New("bad source")
}

func TestSubVM(t *testing.T) {
	var out bytes.Buffer
	rt := New(WithOutput(&out), WithParser(stubParser))
	err := rt.Run(bytecode.NewProgram(ast.DefaultHeader(), []ast.Command{
		ast.Builtin{Name: ".vm.create"},
		declare(ast.Const, "vm", ast.PrevExpr{}),
		ast.Builtin{Name: ".vm.eval", Args: []ast.Expression{ref("vm"), str("declare")}},
		puts(ast.PrevExpr{}),
		ast.Builtin{Name: ".vm.eval", Args: []ast.Expression{ref("vm"), str("read")}},
		puts(ast.PrevExpr{}),
		ast.Builtin{Name: ".vm.eval", Args: []ast.Expression{ref("vm"), str("print")}},
		ast.Builtin{Name: ".vm.drop", Args: []ast.Expression{ref("vm")}},
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "null4sub"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if n := rt.Handles().Len(); n != 0 {
		t.Errorf("Handles().Len() = %d, want 0", n)
	}
	if n := rt.LiveContexts(); n != 0 {
		t.Errorf("LiveContexts() = %d, want 0", n)
	}
}

func TestSubVMErrors(t *testing.T) {
	tests := []struct {
		name string
		cmds []ast.Command
		want error
	}{
		{"bad handle", []ast.Command{
			ast.Builtin{Name: ".vm.eval", Args: []ast.Expression{ast.Lit(ast.Native{Handle: 7}), str("print")}},
		}, ErrInvalidHandle},
		{"not a handle", []ast.Command{
			ast.Builtin{Name: ".vm.drop", Args: []ast.Expression{u8(1)}},
		}, ErrInvalidHandle},
		{"parse failure", []ast.Command{
			ast.Builtin{Name: ".vm.create"},
			ast.Builtin{Name: ".vm.eval", Args: []ast.Expression{ast.PrevExpr{}, str("???")}},
		}, ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := New(WithOutput(&bytes.Buffer{}), WithParser(stubParser))
			err := rt.Run(bytecode.NewProgram(ast.DefaultHeader(), tt.cmds))
			if !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Diagnostics and lifetime
// ---------------------------------------------------------------------------

func TestBacktraceFromMeta(t *testing.T) {
	_, err := run(t,
		ast.MetaFile{File: "main.aml3"},
		ast.DeclareFunction{Name: "f", Body: []ast.Command{
			ast.Meta{Line: 2, Col: 3, Code: "=$x 1u8"},
			ast.AssignVariable{Name: "x", Value: u8(1)},
		}},
		ast.Meta{Line: 5, Col: 1, Code: "@call $f"},
		ast.Call{Callee: ref("f")},
	)
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Run error = %v, want *Error", err)
	}
	if rerr.Kind != UndefinedVariable {
		t.Errorf("Kind = %v, want %v", rerr.Kind, UndefinedVariable)
	}
	want := "undefined variable: $x is not declared\n" +
		"    at main.aml3:2:3: =$x 1u8\n" +
		"    at main.aml3:5:1: @call $f"
	if got := rerr.Trace(); got != want {
		t.Errorf("Trace() =\n%s\nwant\n%s", got, want)
	}
}

func TestScopeReleaseFreesContexts(t *testing.T) {
	rt := New(WithOutput(&bytes.Buffer{}))
	s := rt.NewScope(ast.DefaultHeader())
	err := s.Exec([]ast.Command{
		ast.Scope{Body: []ast.Command{ast.Scope{Body: []ast.Command{declare(ast.Const, "x", u8(1))}}}},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n := rt.LiveContexts(); n != 1 {
		t.Errorf("LiveContexts() = %d, want 1", n)
	}
	s.Release()
	s.Release()
	if n := rt.LiveContexts(); n != 0 {
		t.Errorf("LiveContexts() = %d after Release, want 0", n)
	}
}

func TestRunBytecode(t *testing.T) {
	p := bytecode.NewProgram(ast.DefaultHeader(), []ast.Command{
		declare(ast.Const, "x", u8(5)),
		puts(ref("x")),
	})
	data, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var out bytes.Buffer
	if err := New(WithOutput(&out)).RunBytecode(data); err != nil {
		t.Fatalf("RunBytecode: %v", err)
	}
	if out.String() != "5" {
		t.Errorf("output = %q, want %q", out.String(), "5")
	}
}
