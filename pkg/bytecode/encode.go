package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/amvm/pkg/ast"
)

const (
	escapeByte   = 0xFF
	sentinelByte = 0x00
	maxCount     = 255
)

// Encoder appends the wire form of nodes to a buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes so far.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Encode encodes a single node: a Command, Expression, Value, Type or
// Header.
func Encode(node any) ([]byte, error) {
	e := NewEncoder()
	var err error
	switch n := node.(type) {
	case ast.Header:
		err = e.Header(n)
	case ast.Command:
		err = e.Command(n)
	case ast.Expression:
		err = e.Expression(n)
	case ast.Type:
		err = e.Type(n)
	case ast.Value:
		err = e.Value(n)
	default:
		err = &EncodeError{Node: fmt.Sprintf("%T", node), Err: ErrUnencodable}
	}
	if err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (e *Encoder) tag(t Tag) {
	e.buf = append(e.buf, byte(t))
}

func (e *Encoder) u8(b byte) {
	e.buf = append(e.buf, b)
}

func (e *Encoder) u16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) u32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) escaped(s string) {
	for i := 0; i < len(s); i++ {
		switch b := s[i]; b {
		case sentinelByte, escapeByte:
			e.buf = append(e.buf, escapeByte, b)
		default:
			e.buf = append(e.buf, b)
		}
	}
}

// name writes a length-prefixed, escaped identifier. The length counts
// unescaped bytes.
func (e *Encoder) name(what, s string) error {
	if len(s) > maxCount {
		return &EncodeError{Node: fmt.Sprintf("%s of %d bytes", what, len(s)), Err: ErrTooLong}
	}
	e.u8(byte(len(s)))
	e.escaped(s)
	return nil
}

// str writes escaped bytes terminated by an unescaped 0x00.
func (e *Encoder) str(s string) {
	e.escaped(s)
	e.u8(sentinelByte)
}

func (e *Encoder) count(what string, n int) error {
	if n > maxCount {
		return &EncodeError{Node: fmt.Sprintf("%s with %d elements", what, n), Err: ErrTooLong}
	}
	e.u8(byte(n))
	return nil
}

// Header writes the magic signature and the casting policy.
func (e *Encoder) Header(h ast.Header) error {
	if !h.Casting.Valid() {
		return &EncodeError{Node: h.Casting.String(), Err: ErrUnencodable}
	}
	e.buf = append(e.buf, Magic...)
	e.u8(byte(h.Casting))
	return nil
}

func (e *Encoder) kind(k ast.VariableKind) error {
	if !k.Valid() {
		return &EncodeError{Node: k.String(), Err: ErrUnencodable}
	}
	e.u8(byte(k))
	return nil
}

// Type encodes a type annotation.
func (e *Encoder) Type(t ast.Type) error {
	switch t := t.(type) {
	case ast.AnonymousType:
		e.tag(TypeAnonymous)
	case ast.NamedType:
		e.tag(TypeNamed)
		return e.name("type name", t.Name)
	case ast.PrimitiveType:
		switch t.Prim {
		case ast.PrimBool:
			e.tag(TypeBool)
		case ast.PrimString:
			e.tag(TypeString)
		case ast.PrimU8:
			e.tag(TypeU8)
		default:
			return &EncodeError{Node: "primitive " + t.Prim.String(), Err: ErrUnencodable}
		}
	case ast.TupleType:
		e.tag(TypeTuple)
		if err := e.count("tuple", len(t.Types)); err != nil {
			return err
		}
		for _, m := range t.Types {
			if err := e.Type(m); err != nil {
				return err
			}
		}
	case ast.UnionType:
		e.tag(TypeUnion)
		if err := e.Type(t.A); err != nil {
			return err
		}
		return e.Type(t.B)
	case ast.FunType:
		e.tag(TypeFun)
		if err := e.count("function type", len(t.Params)); err != nil {
			return err
		}
		for _, p := range t.Params {
			if err := e.Type(p); err != nil {
				return err
			}
		}
		return e.Type(t.Ret)
	default:
		return &EncodeError{Node: fmt.Sprintf("type %T", t), Err: ErrUnencodable}
	}
	return nil
}

// Value encodes a literal value. Runtime-only values (native handles,
// native functions, references) have no wire form.
func (e *Encoder) Value(v ast.Value) error {
	switch v := v.(type) {
	case ast.Null:
		e.tag(ValNull)
	case ast.Bool:
		e.tag(ValBool)
		if v {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case ast.String:
		e.tag(ValString)
		e.str(string(v))
	case ast.U8:
		e.tag(ValU8)
		e.u8(byte(v))
	case ast.I16:
		e.tag(ValI16)
		n := int32(v)
		if n < 0 {
			e.u8(1)
			n = -n
		} else {
			e.u8(0)
		}
		e.u16(uint16(n))
	case ast.F32:
		e.tag(ValF32)
		e.u32(math.Float32bits(float32(v)))
	case ast.Char:
		e.tag(ValChar)
		e.u32(uint32(v))
	case *ast.Instance:
		e.tag(ValObject)
		e.tag(ObjInstance)
		if err := e.Type(v.Type); err != nil {
			return err
		}
		return e.fields(v.Fields)
	case *ast.PropertyMap:
		e.tag(ValObject)
		e.tag(ObjPropertyMap)
		return e.fields(v.Fields)
	case *ast.Function:
		e.tag(ValFun)
		if v.Mutable {
			e.tag(FunMutable)
		} else {
			e.tag(FunConst)
		}
		return e.signature(v.Params, v.Ret, v.Body)
	default:
		if v == nil {
			return &EncodeError{Node: "nil value", Err: ErrUnencodable}
		}
		return &EncodeError{Node: v.Kind().String() + " value", Err: ErrUnencodable}
	}
	return nil
}

func (e *Encoder) fields(fields map[string]ast.Value) error {
	if err := e.count("object", len(fields)); err != nil {
		return err
	}
	for _, k := range ast.SortedKeys(fields) {
		if err := e.name("field", k); err != nil {
			return err
		}
		if err := e.Value(fields[k]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) signature(params []ast.Param, ret ast.Type, body []ast.Command) error {
	if err := e.count("parameter list", len(params)); err != nil {
		return err
	}
	for _, p := range params {
		if err := e.name("parameter", p.Name); err != nil {
			return err
		}
		if err := e.kind(p.Kind); err != nil {
			return err
		}
		if err := e.Type(p.Type); err != nil {
			return err
		}
	}
	if err := e.Type(ret); err != nil {
		return err
	}
	return e.Body(body)
}

var binaryTags = map[ast.BinaryOp]Tag{
	ast.OpAdd:              BinAdd,
	ast.OpSub:              BinSub,
	ast.OpMult:             BinMult,
	ast.OpEqual:            BinEqual,
	ast.OpNotEqual:         BinNotEqual,
	ast.OpGreaterThan:      BinGreaterThan,
	ast.OpGreaterThanEqual: BinGreaterThanEqual,
	ast.OpLessThan:         BinLessThan,
	ast.OpLessThanEqual:    BinLessThanEqual,
}

// Expression encodes an expression tree.
func (e *Encoder) Expression(x ast.Expression) error {
	switch x := x.(type) {
	case ast.ValueExpr:
		e.tag(ExprValue)
		return e.Value(x.Value)
	case ast.VarExpr:
		e.tag(ExprVar)
		return e.name("variable", x.Name)
	case ast.PropertyExpr:
		e.tag(ExprProperty)
		return e.pair(x.Base, x.Key)
	case ast.BinaryExpr:
		op, ok := binaryTags[x.Op]
		if !ok {
			return &EncodeError{Node: "operator " + x.Op.String(), Err: ErrUnencodable}
		}
		e.tag(ExprBinary)
		e.tag(op)
		return e.pair(x.Left, x.Right)
	case ast.PrevExpr:
		e.tag(ExprPrev)
	case ast.RangeExpr:
		e.tag(ExprRange)
		return e.pair(x.From, x.To)
	case ast.RefExpr:
		e.tag(ExprRef)
		if err := e.kind(x.Kind); err != nil {
			return err
		}
		return e.Expression(x.Inner)
	case ast.StructExpr:
		e.tag(ExprStruct)
		if err := e.Type(x.Type); err != nil {
			return err
		}
		if err := e.count("struct literal", len(x.Fields)); err != nil {
			return err
		}
		for _, f := range x.Fields {
			if err := e.name("field", f.Name); err != nil {
				return err
			}
			if err := e.Expression(f.Value); err != nil {
				return err
			}
		}
	default:
		return &EncodeError{Node: fmt.Sprintf("expression %T", x), Err: ErrUnencodable}
	}
	return nil
}

func (e *Encoder) pair(a, b ast.Expression) error {
	if err := e.Expression(a); err != nil {
		return err
	}
	return e.Expression(b)
}

func (e *Encoder) args(what string, args []ast.Expression) error {
	if err := e.count(what, len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if err := e.Expression(a); err != nil {
			return err
		}
	}
	return nil
}

// Body encodes a command list followed by the end-of-body marker.
func (e *Encoder) Body(body []ast.Command) error {
	for _, c := range body {
		if err := e.Command(c); err != nil {
			return err
		}
	}
	e.tag(EndOfBody)
	return nil
}

// Command encodes a statement.
func (e *Encoder) Command(c ast.Command) error {
	switch c := c.(type) {
	case ast.Meta:
		e.tag(CmdMeta)
		e.u16(c.Line)
		e.u16(c.Col)
		e.str(c.Code)
	case ast.MetaFile:
		e.tag(CmdMetaFile)
		e.str(c.File)
	case ast.DeclareVariable:
		e.tag(CmdDeclare)
		if err := e.kind(c.Kind); err != nil {
			return err
		}
		if err := e.name("variable", c.Name); err != nil {
			return err
		}
		return e.Expression(c.Value)
	case ast.AssignVariable:
		e.tag(CmdAssign)
		if err := e.name("variable", c.Name); err != nil {
			return err
		}
		return e.Expression(c.Value)
	case ast.Puts:
		e.tag(CmdPuts)
		return e.Expression(c.Value)
	case ast.Push:
		e.tag(CmdPush)
		return e.Expression(c.Value)
	case ast.Scope:
		e.tag(CmdScope)
		return e.Body(c.Body)
	case ast.Loop:
		e.tag(CmdLoop)
		return e.Body(c.Body)
	case ast.Conditional:
		e.tag(CmdConditional)
		if err := e.Expression(c.Condition); err != nil {
			return err
		}
		if err := e.Body(c.Body); err != nil {
			return err
		}
		if c.Otherwise == nil {
			e.u8(0)
			return nil
		}
		e.u8(1)
		return e.Body(c.Otherwise)
	case ast.Break:
		e.tag(CmdBreak)
	case ast.Builtin:
		e.tag(CmdBuiltin)
		if err := e.name("builtin", c.Name); err != nil {
			return err
		}
		return e.args("builtin call", c.Args)
	case ast.Call:
		e.tag(CmdCall)
		if err := e.Expression(c.Callee); err != nil {
			return err
		}
		return e.args("call", c.Args)
	case ast.For:
		e.tag(CmdFor)
		if err := e.name("variable", c.Var); err != nil {
			return err
		}
		if err := e.Expression(c.Iterator); err != nil {
			return err
		}
		return e.Body(c.Body)
	case ast.DeclareFunction:
		e.tag(CmdFunction)
		if err := e.name("function", c.Name); err != nil {
			return err
		}
		return e.signature(c.Params, c.Ret, c.Body)
	case ast.Return:
		e.tag(CmdReturn)
		return e.Expression(c.Value)
	case ast.Struct:
		e.tag(CmdStruct)
		if err := e.name("struct", c.Name); err != nil {
			return err
		}
		if err := e.count("struct", len(c.Fields)); err != nil {
			return err
		}
		for _, f := range c.Fields {
			if err := e.name("field", f.Name); err != nil {
				return err
			}
			if err := e.Type(f.Type); err != nil {
				return err
			}
		}
	default:
		return &EncodeError{Node: fmt.Sprintf("command %T", c), Err: ErrUnencodable}
	}
	return nil
}
