package vm

import (
	"math"

	"github.com/chazu/amvm/pkg/ast"
)

// numericRank orders the numeric kinds for promotion. Zero means the value
// is not numeric.
func numericRank(v ast.Value) int {
	switch v.(type) {
	case ast.U8:
		return 1
	case ast.I16:
		return 2
	case ast.F32:
		return 3
	}
	return 0
}

// promote converts a numeric value to the kind of rank r.
func promote(v ast.Value, r int) (ast.Value, error) {
	if numericRank(v) == r {
		return v, nil
	}
	switch r {
	case 2:
		if u, ok := v.(ast.U8); ok {
			return ast.I16(u), nil
		}
	case 3:
		switch n := v.(type) {
		case ast.U8:
			return ast.F32(n), nil
		case ast.I16:
			return ast.F32(n), nil
		}
	}
	return nil, typeMismatch("cannot promote %s", v.Kind())
}

// coerce brings two operands to a common kind under the casting policy.
func coerce(casting ast.Casting, a, b ast.Value) (ast.Value, ast.Value, error) {
	if a.Kind() == b.Kind() {
		return a, b, nil
	}
	if casting == ast.CastStrict {
		return nil, nil, typeMismatch("%s and %s operands under strict casting", a.Kind(), b.Kind())
	}

	ra, rb := numericRank(a), numericRank(b)
	if ra > 0 && rb > 0 {
		r := max(ra, rb)
		pa, err := promote(a, r)
		if err != nil {
			return nil, nil, err
		}
		pb, err := promote(b, r)
		if err != nil {
			return nil, nil, err
		}
		return pa, pb, nil
	}

	_, aStr := a.(ast.String)
	_, bStr := b.(ast.String)
	switch {
	case casting == ast.CastStrictlessString,
		casting == ast.CastTypeString && (aStr || bStr):
		return ast.String(a.String()), ast.String(b.String()), nil
	}
	return nil, nil, typeMismatch("%s and %s operands", a.Kind(), b.Kind())
}

// binary applies op to two dereferenced operands.
func binary(casting ast.Casting, op ast.BinaryOp, a, b ast.Value) (ast.Value, error) {
	if op == ast.OpEqual || op == ast.OpNotEqual {
		eq := equalValues(casting, a, b)
		if op == ast.OpNotEqual {
			eq = !eq
		}
		return ast.Bool(eq), nil
	}

	a, b, err := coerce(casting, a, b)
	if err != nil {
		return nil, err
	}
	if op.IsComparison() {
		return compare(op, a, b)
	}
	return arith(op, a, b)
}

func arith(op ast.BinaryOp, a, b ast.Value) (ast.Value, error) {
	switch x := a.(type) {
	case ast.String:
		if op == ast.OpAdd {
			return x + b.(ast.String), nil
		}
		return nil, typeMismatch("operator %s is not defined on strings", op)
	case ast.U8:
		y := b.(ast.U8)
		var r int
		switch op {
		case ast.OpAdd:
			r = int(x) + int(y)
		case ast.OpSub:
			r = int(x) - int(y)
		case ast.OpMult:
			r = int(x) * int(y)
		}
		if r < 0 || r > math.MaxUint8 {
			return nil, newError(ArithmeticOverflow, "%s %d %d overflows u8", op, x, y)
		}
		return ast.U8(r), nil
	case ast.I16:
		y := b.(ast.I16)
		var r int
		switch op {
		case ast.OpAdd:
			r = int(x) + int(y)
		case ast.OpSub:
			r = int(x) - int(y)
		case ast.OpMult:
			r = int(x) * int(y)
		}
		if r < math.MinInt16 || r > math.MaxInt16 {
			return nil, newError(ArithmeticOverflow, "%s %d %d overflows i16", op, x, y)
		}
		return ast.I16(r), nil
	case ast.F32:
		y := b.(ast.F32)
		switch op {
		case ast.OpAdd:
			return x + y, nil
		case ast.OpSub:
			return x - y, nil
		case ast.OpMult:
			return x * y, nil
		}
	}
	return nil, typeMismatch("operator %s is not defined on %s", op, a.Kind())
}

func compare(op ast.BinaryOp, a, b ast.Value) (ast.Value, error) {
	var c int
	switch x := a.(type) {
	case ast.U8:
		c = cmp3(float64(x), float64(b.(ast.U8)))
	case ast.I16:
		c = cmp3(float64(x), float64(b.(ast.I16)))
	case ast.F32:
		c = cmp3(float64(x), float64(b.(ast.F32)))
	case ast.Char:
		c = cmp3(float64(x), float64(b.(ast.Char)))
	case ast.String:
		y := b.(ast.String)
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	default:
		return nil, typeMismatch("operator %s is not defined on %s", op, a.Kind())
	}

	switch op {
	case ast.OpGreaterThan:
		return ast.Bool(c > 0), nil
	case ast.OpGreaterThanEqual:
		return ast.Bool(c >= 0), nil
	case ast.OpLessThan:
		return ast.Bool(c < 0), nil
	case ast.OpLessThanEqual:
		return ast.Bool(c <= 0), nil
	}
	return nil, typeMismatch("unknown comparison %s", op)
}

func cmp3(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// equalValues compares structurally. Numbers of different kinds are
// promoted unless casting is strict; any other kind difference is unequal.
func equalValues(casting ast.Casting, a, b ast.Value) bool {
	if a.Kind() != b.Kind() {
		if casting == ast.CastStrict || numericRank(a) == 0 || numericRank(b) == 0 {
			return false
		}
		pa, pb, err := coerce(casting, a, b)
		if err != nil {
			return false
		}
		return pa == pb
	}
	switch x := a.(type) {
	case *ast.Instance:
		y := b.(*ast.Instance)
		return x.Type.String() == y.Type.String() && equalFields(casting, x.Fields, y.Fields)
	case *ast.PropertyMap:
		return equalFields(casting, x.Fields, b.(*ast.PropertyMap).Fields)
	case *ast.NativeFunction:
		return x == b.(*ast.NativeFunction)
	case *Ref:
		return equalValues(casting, deref(x), deref(b))
	}
	return a == b
}

func equalFields(casting ast.Casting, a, b map[string]ast.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !equalValues(casting, deref(av), deref(bv)) {
			return false
		}
	}
	return true
}

// toInt returns the value of an integer kind.
func toInt(v ast.Value) (int64, bool) {
	switch n := v.(type) {
	case ast.U8:
		return int64(n), true
	case ast.I16:
		return int64(n), true
	}
	return 0, false
}

// fromInt builds a value of the same integer kind as like.
func fromInt(like ast.Value, n int64) (ast.Value, error) {
	switch like.(type) {
	case ast.U8:
		if n < 0 || n > math.MaxUint8 {
			return nil, newError(ArithmeticOverflow, "%d overflows u8", n)
		}
		return ast.U8(n), nil
	case ast.I16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, newError(ArithmeticOverflow, "%d overflows i16", n)
		}
		return ast.I16(n), nil
	}
	return nil, typeMismatch("%s is not an integer", like.Kind())
}
