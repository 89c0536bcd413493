package bytecode

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/chazu/amvm/pkg/ast"
)

// maxDepth bounds recursion so hostile input cannot exhaust the stack.
const maxDepth = 1024

type decoder struct {
	data  []byte
	pos   int
	depth int
}

func (d *decoder) truncated(reading string) error {
	return &DecodeError{Offset: d.pos, Byte: -1, Reading: reading, Err: ErrTruncated}
}

// fail reports the byte just consumed at d.pos-1.
func (d *decoder) fail(reading string, err error) error {
	return &DecodeError{Offset: d.pos - 1, Byte: int(d.data[d.pos-1]), Reading: reading, Err: err}
}

func (d *decoder) enter(reading string) error {
	d.depth++
	if d.depth > maxDepth {
		return &DecodeError{Offset: d.pos, Byte: -1, Reading: reading, Err: ErrTooDeep}
	}
	return nil
}

func (d *decoder) leave() { d.depth-- }

func (d *decoder) u8(reading string) (byte, error) {
	if d.pos >= len(d.data) {
		return 0, d.truncated(reading)
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) u16(reading string) (uint16, error) {
	if d.pos+2 > len(d.data) {
		return 0, d.truncated(reading)
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32(reading string) (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, d.truncated(reading)
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

// unescape reads one logical byte, resolving the 0xFF escape.
func (d *decoder) unescape(reading string) (b byte, escaped bool, err error) {
	b, err = d.u8(reading)
	if err != nil || b != escapeByte {
		return b, false, err
	}
	b, err = d.u8(reading)
	if err != nil {
		return 0, false, err
	}
	if b != sentinelByte && b != escapeByte {
		return 0, false, d.fail(reading, ErrBadEscape)
	}
	return b, true, nil
}

func (d *decoder) checkUTF8(start int, raw []byte, reading string) (string, error) {
	if !utf8.Valid(raw) {
		return "", &DecodeError{Offset: start, Byte: -1, Reading: reading, Err: ErrInvalidUTF8}
	}
	return string(raw), nil
}

func (d *decoder) name(reading string) (string, error) {
	n, err := d.u8(reading + " length")
	if err != nil {
		return "", err
	}
	start := d.pos
	raw := make([]byte, 0, n)
	for i := 0; i < int(n); i++ {
		b, _, err := d.unescape(reading)
		if err != nil {
			return "", err
		}
		raw = append(raw, b)
	}
	return d.checkUTF8(start, raw, reading)
}

func (d *decoder) str(reading string) (string, error) {
	start := d.pos
	var raw []byte
	for {
		b, escaped, err := d.unescape(reading)
		if err != nil {
			return "", err
		}
		if b == sentinelByte && !escaped {
			break
		}
		raw = append(raw, b)
	}
	return d.checkUTF8(start, raw, reading)
}

func (d *decoder) kind(reading string) (ast.VariableKind, error) {
	b, err := d.u8(reading)
	if err != nil {
		return 0, err
	}
	k := ast.VariableKind(b)
	if !k.Valid() {
		return 0, d.fail(reading, ErrUnknownTag)
	}
	return k, nil
}

func (d *decoder) typ() (ast.Type, error) {
	if err := d.enter("type"); err != nil {
		return nil, err
	}
	defer d.leave()

	b, err := d.u8("type")
	if err != nil {
		return nil, err
	}
	switch Tag(b) {
	case TypeAnonymous:
		return ast.AnonymousType{}, nil
	case TypeNamed:
		name, err := d.name("type name")
		if err != nil {
			return nil, err
		}
		return ast.NamedType{Name: name}, nil
	case TypeTuple:
		types, err := d.types("tuple")
		if err != nil {
			return nil, err
		}
		return ast.TupleType{Types: types}, nil
	case TypeUnion:
		a, err := d.typ()
		if err != nil {
			return nil, err
		}
		other, err := d.typ()
		if err != nil {
			return nil, err
		}
		return ast.UnionType{A: a, B: other}, nil
	case TypeBool:
		return ast.BoolType, nil
	case TypeFun:
		params, err := d.types("function type")
		if err != nil {
			return nil, err
		}
		ret, err := d.typ()
		if err != nil {
			return nil, err
		}
		return ast.FunType{Params: params, Ret: ret}, nil
	case TypeString:
		return ast.StringType, nil
	case TypeU8:
		return ast.U8Type, nil
	}
	return nil, d.fail("type", ErrUnknownTag)
}

func (d *decoder) types(reading string) ([]ast.Type, error) {
	n, err := d.u8(reading + " count")
	if err != nil {
		return nil, err
	}
	var out []ast.Type
	for i := 0; i < int(n); i++ {
		t, err := d.typ()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (d *decoder) value() (ast.Value, error) {
	if err := d.enter("value"); err != nil {
		return nil, err
	}
	defer d.leave()

	b, err := d.u8("value")
	if err != nil {
		return nil, err
	}
	switch Tag(b) {
	case ValNull:
		return ast.Null{}, nil
	case ValBool:
		v, err := d.u8("bool")
		if err != nil {
			return nil, err
		}
		if v > 1 {
			return nil, d.fail("bool", ErrMalformed)
		}
		return ast.Bool(v == 1), nil
	case ValString:
		s, err := d.str("string")
		if err != nil {
			return nil, err
		}
		return ast.String(s), nil
	case ValU8:
		v, err := d.u8("u8")
		if err != nil {
			return nil, err
		}
		return ast.U8(v), nil
	case ValI16:
		sign, err := d.u8("i16 sign")
		if err != nil {
			return nil, err
		}
		if sign > 1 {
			return nil, d.fail("i16 sign", ErrMalformed)
		}
		mag, err := d.u16("i16 magnitude")
		if err != nil {
			return nil, err
		}
		n := int32(mag)
		if sign == 1 {
			n = -n
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, &DecodeError{Offset: d.pos - 2, Byte: -1, Reading: "i16 magnitude", Err: ErrMalformed}
		}
		return ast.I16(n), nil
	case ValF32:
		bits, err := d.u32("f32")
		if err != nil {
			return nil, err
		}
		return ast.F32(math.Float32frombits(bits)), nil
	case ValChar:
		r, err := d.u32("char")
		if err != nil {
			return nil, err
		}
		if !utf8.ValidRune(rune(r)) {
			return nil, &DecodeError{Offset: d.pos - 4, Byte: -1, Reading: "char", Err: ErrInvalidUTF8}
		}
		return ast.Char(r), nil
	case ValObject:
		return d.object()
	case ValFun:
		sub, err := d.u8("function kind")
		if err != nil {
			return nil, err
		}
		if Tag(sub) != FunConst && Tag(sub) != FunMutable {
			return nil, d.fail("function kind", ErrUnknownTag)
		}
		params, ret, body, err := d.signature()
		if err != nil {
			return nil, err
		}
		return &ast.Function{Mutable: Tag(sub) == FunMutable, Params: params, Ret: ret, Body: body}, nil
	}
	return nil, d.fail("value", ErrUnknownTag)
}

func (d *decoder) object() (ast.Value, error) {
	sub, err := d.u8("object kind")
	if err != nil {
		return nil, err
	}
	switch Tag(sub) {
	case ObjInstance:
		t, err := d.typ()
		if err != nil {
			return nil, err
		}
		fields, err := d.fields()
		if err != nil {
			return nil, err
		}
		return &ast.Instance{Type: t, Fields: fields}, nil
	case ObjPropertyMap:
		fields, err := d.fields()
		if err != nil {
			return nil, err
		}
		return &ast.PropertyMap{Fields: fields}, nil
	}
	return nil, d.fail("object kind", ErrUnknownTag)
}

func (d *decoder) fields() (map[string]ast.Value, error) {
	n, err := d.u8("field count")
	if err != nil {
		return nil, err
	}
	fields := make(map[string]ast.Value, n)
	for i := 0; i < int(n); i++ {
		k, err := d.name("field")
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		fields[k] = v
	}
	return fields, nil
}

func (d *decoder) signature() ([]ast.Param, ast.Type, []ast.Command, error) {
	n, err := d.u8("parameter count")
	if err != nil {
		return nil, nil, nil, err
	}
	var params []ast.Param
	for i := 0; i < int(n); i++ {
		name, err := d.name("parameter")
		if err != nil {
			return nil, nil, nil, err
		}
		kind, err := d.kind("parameter kind")
		if err != nil {
			return nil, nil, nil, err
		}
		t, err := d.typ()
		if err != nil {
			return nil, nil, nil, err
		}
		params = append(params, ast.Param{Name: name, Kind: kind, Type: t})
	}
	ret, err := d.typ()
	if err != nil {
		return nil, nil, nil, err
	}
	body, err := d.body()
	if err != nil {
		return nil, nil, nil, err
	}
	return params, ret, body, nil
}

var binaryOps = map[Tag]ast.BinaryOp{
	BinAdd:              ast.OpAdd,
	BinSub:              ast.OpSub,
	BinMult:             ast.OpMult,
	BinEqual:            ast.OpEqual,
	BinNotEqual:         ast.OpNotEqual,
	BinGreaterThan:      ast.OpGreaterThan,
	BinGreaterThanEqual: ast.OpGreaterThanEqual,
	BinLessThan:         ast.OpLessThan,
	BinLessThanEqual:    ast.OpLessThanEqual,
}

func (d *decoder) expr() (ast.Expression, error) {
	if err := d.enter("expression"); err != nil {
		return nil, err
	}
	defer d.leave()

	b, err := d.u8("expression")
	if err != nil {
		return nil, err
	}
	switch Tag(b) {
	case ExprValue:
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		return ast.ValueExpr{Value: v}, nil
	case ExprVar:
		name, err := d.name("variable")
		if err != nil {
			return nil, err
		}
		return ast.VarExpr{Name: name}, nil
	case ExprProperty:
		base, key, err := d.pair()
		if err != nil {
			return nil, err
		}
		return ast.PropertyExpr{Base: base, Key: key}, nil
	case ExprBinary:
		ob, err := d.u8("binary operator")
		if err != nil {
			return nil, err
		}
		op, ok := binaryOps[Tag(ob)]
		if !ok {
			return nil, d.fail("binary operator", ErrUnknownTag)
		}
		l, r, err := d.pair()
		if err != nil {
			return nil, err
		}
		return ast.BinaryExpr{Op: op, Left: l, Right: r}, nil
	case ExprPrev:
		return ast.PrevExpr{}, nil
	case ExprRange:
		from, to, err := d.pair()
		if err != nil {
			return nil, err
		}
		return ast.RangeExpr{From: from, To: to}, nil
	case ExprRef:
		k, err := d.kind("reference kind")
		if err != nil {
			return nil, err
		}
		inner, err := d.expr()
		if err != nil {
			return nil, err
		}
		return ast.RefExpr{Kind: k, Inner: inner}, nil
	case ExprStruct:
		t, err := d.typ()
		if err != nil {
			return nil, err
		}
		n, err := d.u8("struct literal count")
		if err != nil {
			return nil, err
		}
		var fields []ast.FieldInit
		for i := 0; i < int(n); i++ {
			name, err := d.name("field")
			if err != nil {
				return nil, err
			}
			v, err := d.expr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, ast.FieldInit{Name: name, Value: v})
		}
		return ast.StructExpr{Type: t, Fields: fields}, nil
	}
	return nil, d.fail("expression", ErrUnknownTag)
}

func (d *decoder) pair() (ast.Expression, ast.Expression, error) {
	a, err := d.expr()
	if err != nil {
		return nil, nil, err
	}
	b, err := d.expr()
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (d *decoder) args(reading string) ([]ast.Expression, error) {
	n, err := d.u8(reading + " count")
	if err != nil {
		return nil, err
	}
	var out []ast.Expression
	for i := 0; i < int(n); i++ {
		a, err := d.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// body reads commands up to the end-of-body marker. The result is never nil.
func (d *decoder) body() ([]ast.Command, error) {
	body := []ast.Command{}
	for {
		if d.pos >= len(d.data) {
			return nil, d.truncated("body")
		}
		if Tag(d.data[d.pos]) == EndOfBody {
			d.pos++
			return body, nil
		}
		c, err := d.command()
		if err != nil {
			return nil, err
		}
		body = append(body, c)
	}
}

func (d *decoder) command() (ast.Command, error) {
	if err := d.enter("command"); err != nil {
		return nil, err
	}
	defer d.leave()

	b, err := d.u8("command")
	if err != nil {
		return nil, err
	}
	switch Tag(b) {
	case CmdMeta:
		line, err := d.u16("meta line")
		if err != nil {
			return nil, err
		}
		col, err := d.u16("meta column")
		if err != nil {
			return nil, err
		}
		code, err := d.str("meta code")
		if err != nil {
			return nil, err
		}
		return ast.Meta{Line: line, Col: col, Code: code}, nil
	case CmdMetaFile:
		file, err := d.str("meta file")
		if err != nil {
			return nil, err
		}
		return ast.MetaFile{File: file}, nil
	case CmdDeclare:
		k, err := d.kind("variable kind")
		if err != nil {
			return nil, err
		}
		name, err := d.name("variable")
		if err != nil {
			return nil, err
		}
		v, err := d.expr()
		if err != nil {
			return nil, err
		}
		return ast.DeclareVariable{Kind: k, Name: name, Value: v}, nil
	case CmdAssign:
		name, err := d.name("variable")
		if err != nil {
			return nil, err
		}
		v, err := d.expr()
		if err != nil {
			return nil, err
		}
		return ast.AssignVariable{Name: name, Value: v}, nil
	case CmdPuts:
		v, err := d.expr()
		if err != nil {
			return nil, err
		}
		return ast.Puts{Value: v}, nil
	case CmdPush:
		v, err := d.expr()
		if err != nil {
			return nil, err
		}
		return ast.Push{Value: v}, nil
	case CmdScope:
		body, err := d.body()
		if err != nil {
			return nil, err
		}
		return ast.Scope{Body: body}, nil
	case CmdLoop:
		body, err := d.body()
		if err != nil {
			return nil, err
		}
		return ast.Loop{Body: body}, nil
	case CmdConditional:
		cond, err := d.expr()
		if err != nil {
			return nil, err
		}
		body, err := d.body()
		if err != nil {
			return nil, err
		}
		flag, err := d.u8("else marker")
		if err != nil {
			return nil, err
		}
		c := ast.Conditional{Condition: cond, Body: body}
		switch flag {
		case 0:
		case 1:
			if c.Otherwise, err = d.body(); err != nil {
				return nil, err
			}
		default:
			return nil, d.fail("else marker", ErrMalformed)
		}
		return c, nil
	case CmdBreak:
		return ast.Break{}, nil
	case CmdBuiltin:
		name, err := d.name("builtin")
		if err != nil {
			return nil, err
		}
		args, err := d.args("builtin argument")
		if err != nil {
			return nil, err
		}
		return ast.Builtin{Name: name, Args: args}, nil
	case CmdCall:
		callee, err := d.expr()
		if err != nil {
			return nil, err
		}
		args, err := d.args("call argument")
		if err != nil {
			return nil, err
		}
		return ast.Call{Callee: callee, Args: args}, nil
	case CmdFor:
		name, err := d.name("variable")
		if err != nil {
			return nil, err
		}
		it, err := d.expr()
		if err != nil {
			return nil, err
		}
		body, err := d.body()
		if err != nil {
			return nil, err
		}
		return ast.For{Var: name, Iterator: it, Body: body}, nil
	case CmdFunction:
		name, err := d.name("function")
		if err != nil {
			return nil, err
		}
		params, ret, body, err := d.signature()
		if err != nil {
			return nil, err
		}
		return ast.DeclareFunction{Name: name, Params: params, Ret: ret, Body: body}, nil
	case CmdReturn:
		v, err := d.expr()
		if err != nil {
			return nil, err
		}
		return ast.Return{Value: v}, nil
	case CmdStruct:
		name, err := d.name("struct")
		if err != nil {
			return nil, err
		}
		n, err := d.u8("struct field count")
		if err != nil {
			return nil, err
		}
		var fields []ast.FieldDef
		for i := 0; i < int(n); i++ {
			fname, err := d.name("field")
			if err != nil {
				return nil, err
			}
			t, err := d.typ()
			if err != nil {
				return nil, err
			}
			fields = append(fields, ast.FieldDef{Name: fname, Type: t})
		}
		return ast.Struct{Name: name, Fields: fields}, nil
	}
	return nil, d.fail("command", ErrUnknownTag)
}

// DecodeCommand decodes one command from the front of data and returns the
// bytes that follow it.
func DecodeCommand(data []byte) ([]byte, ast.Command, error) {
	d := &decoder{data: data}
	c, err := d.command()
	if err != nil {
		return nil, nil, err
	}
	return data[d.pos:], c, nil
}

// DecodeExpression decodes one expression from the front of data.
func DecodeExpression(data []byte) ([]byte, ast.Expression, error) {
	d := &decoder{data: data}
	x, err := d.expr()
	if err != nil {
		return nil, nil, err
	}
	return data[d.pos:], x, nil
}

// DecodeValue decodes one value from the front of data.
func DecodeValue(data []byte) ([]byte, ast.Value, error) {
	d := &decoder{data: data}
	v, err := d.value()
	if err != nil {
		return nil, nil, err
	}
	return data[d.pos:], v, nil
}

// DecodeType decodes one type from the front of data.
func DecodeType(data []byte) ([]byte, ast.Type, error) {
	d := &decoder{data: data}
	t, err := d.typ()
	if err != nil {
		return nil, nil, err
	}
	return data[d.pos:], t, nil
}
