package ast

import "fmt"

// Expression is a node that evaluates to a value or to an assignable place.
type Expression interface {
	exprNode()
}

// BinaryOp is the operator of a BinaryExpr.
type BinaryOp byte

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMult
	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterThanEqual
	OpLessThan
	OpLessThanEqual
)

var binaryOpSymbols = [...]string{
	OpAdd:              "+",
	OpSub:              "-",
	OpMult:             "*",
	OpEqual:            "==",
	OpNotEqual:         "!=",
	OpGreaterThan:      ">",
	OpGreaterThanEqual: ">=",
	OpLessThan:         "<",
	OpLessThanEqual:    "<=",
}

// String returns the operator's aml3 symbol.
func (op BinaryOp) String() string {
	if int(op) < len(binaryOpSymbols) {
		return binaryOpSymbols[op]
	}
	return fmt.Sprintf("op(0x%02X)", byte(op))
}

// IsComparison reports whether op yields a Bool.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEqual && op <= OpLessThanEqual
}

// BinaryOpFromSymbol is the inverse of BinaryOp.String.
func BinaryOpFromSymbol(sym string) (BinaryOp, bool) {
	for i, s := range binaryOpSymbols {
		if s == sym {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// ValueExpr is a literal.
type ValueExpr struct {
	Value Value
}

// VarExpr reads a variable.
type VarExpr struct {
	Name string
}

// PropertyExpr reads Base.Key.
type PropertyExpr struct {
	Base Expression
	Key  Expression
}

type BinaryExpr struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
}

// PrevExpr pops the most recent call or builtin result.
type PrevExpr struct{}

// RangeExpr builds an iterator from From up to, but excluding, To.
type RangeExpr struct {
	From Expression
	To   Expression
}

// RefExpr takes a reference of the given kind to the place Inner names.
type RefExpr struct {
	Kind  VariableKind
	Inner Expression
}

// FieldInit initializes one field of a StructExpr.
type FieldInit struct {
	Name  string
	Value Expression
}

// StructExpr constructs an Instance of Type.
type StructExpr struct {
	Type   Type
	Fields []FieldInit
}

func (ValueExpr) exprNode()    {}
func (VarExpr) exprNode()      {}
func (PropertyExpr) exprNode() {}
func (BinaryExpr) exprNode()   {}
func (PrevExpr) exprNode()     {}
func (RangeExpr) exprNode()    {}
func (RefExpr) exprNode()      {}
func (StructExpr) exprNode()   {}

// Lit wraps a value in a ValueExpr.
func Lit(v Value) Expression {
	return ValueExpr{Value: v}
}
