package vm

import (
	"github.com/chazu/amvm/pkg/ast"
)

// NativeFunc implements a native closure. Captures are the values stored
// in the ast.NativeFunction at creation time.
type NativeFunc func(s *Scope, captures []ast.Value, args []Result) (ast.Value, error)

// RegisterNative adds or replaces a native function implementation.
func (rt *Runtime) RegisterNative(name string, fn NativeFunc) {
	rt.natives[name] = fn
}

func (rt *Runtime) registerNatives() {
	rt.RegisterNative(rangeNextName, rangeNext)
}

// ---------------------------------------------------------------------------
// Iterator protocol
// ---------------------------------------------------------------------------

// IteratorType is the struct every iterator value is an instance of. Its
// fields are value, done, and next; next takes the iterator and returns
// an object with done and value.
const IteratorType = "Iterator"

const rangeNextName = "range.next"

func iteratorDefinition() ast.StructDefinition {
	t := ast.NamedType{Name: "T"}
	return ast.StructDefinition{
		Generics: []string{"T"},
		Fields: []ast.FieldDef{
			{Name: "value", Type: t},
			{Name: "done", Type: ast.BoolType},
			{Name: "next", Type: ast.FunType{Params: []ast.Type{ast.NamedType{Name: IteratorType}}, Ret: t}},
		},
	}
}

// newRange builds an iterator from from up to, but excluding, to. Ranges
// count down when from is greater than to.
func newRange(casting ast.Casting, from, to ast.Value) (ast.Value, error) {
	if numericRank(from) == 0 || numericRank(to) == 0 {
		return nil, typeMismatch("range bounds must be integers, got %s and %s", from.Kind(), to.Kind())
	}
	from, to, err := coerce(casting, from, to)
	if err != nil {
		return nil, err
	}
	start, ok := toInt(from)
	if !ok {
		return nil, typeMismatch("range bounds must be integers, got %s", from.Kind())
	}
	end, _ := toInt(to)

	step := ast.I16(1)
	if start > end {
		step = -1
	}
	return &ast.Instance{
		Type: ast.NamedType{Name: IteratorType},
		Fields: map[string]ast.Value{
			"value": from,
			"done":  ast.Bool(start == end),
			"next":  &ast.NativeFunction{Name: rangeNextName, Captures: []ast.Value{to, step}},
		},
	}, nil
}

// rangeNext advances a range iterator in place and reports the new state.
func rangeNext(s *Scope, captures []ast.Value, args []Result) (ast.Value, error) {
	if len(args) != 1 {
		return nil, newError(Arity, "next takes 1 argument, got %d", len(args))
	}
	if len(captures) != 2 {
		return nil, typeMismatch("corrupt range iterator")
	}
	end, ok := toInt(captures[0])
	step, okStep := captures[1].(ast.I16)
	if !ok || !okStep {
		return nil, typeMismatch("corrupt range iterator")
	}

	it, ok := placeOf(args[0])
	if !ok {
		it = NewVariable(ast.Var, ast.Copy(deref(args[0].Get())))
	}
	valuePlace := &FieldPlace{Parent: it, Key: "value"}
	cur := deref(valuePlace.Get())
	n, ok := toInt(cur)
	if !ok {
		return nil, typeMismatch("range value must be an integer, got %s", cur.Kind())
	}

	n += int64(step)
	done := n == end
	if (step > 0 && n > end) || (step < 0 && n < end) {
		done = true
	}
	value := cur
	if !done {
		next, err := fromInt(cur, n)
		if err != nil {
			return nil, err
		}
		if err := valuePlace.Set(next); err != nil {
			return nil, err
		}
		value = next
	}
	if err := (&FieldPlace{Parent: it, Key: "done"}).Set(ast.Bool(done)); err != nil {
		return nil, err
	}
	return &ast.PropertyMap{Fields: map[string]ast.Value{
		"done":  ast.Bool(done),
		"value": value,
	}}, nil
}
