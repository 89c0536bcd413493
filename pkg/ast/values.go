package ast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind identifies the variant of a Value.
type ValueKind byte

const (
	KindNull ValueKind = iota
	KindBool
	KindChar
	KindU8
	KindI16
	KindF32
	KindString
	KindInstance
	KindPropertyMap
	KindNative
	KindFunction
	KindNativeFunction
	KindRef
)

var valueKindNames = [...]string{
	KindNull:           "null",
	KindBool:           "bool",
	KindChar:           "char",
	KindU8:             "u8",
	KindI16:            "i16",
	KindF32:            "f32",
	KindString:         "string",
	KindInstance:       "instance",
	KindPropertyMap:    "map",
	KindNative:         "native",
	KindFunction:       "function",
	KindNativeFunction: "native function",
	KindRef:            "ref",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("value(%d)", byte(k))
}

// Value is a runtime value. String renders the form written by Puts.
type Value interface {
	Kind() ValueKind
	String() string
}

type Null struct{}
type Bool bool
type Char rune
type U8 uint8
type I16 int16
type F32 float32
type String string

// Instance is a struct value tagged with its declared type.
type Instance struct {
	Type   Type
	Fields map[string]Value
}

// PropertyMap is an untyped bag of fields.
type PropertyMap struct {
	Fields map[string]Value
}

// Native is an opaque handle into the runtime's handle table.
type Native struct {
	Handle uint32
}

// Param is a function parameter with the variable kind it requires.
type Param struct {
	Name string
	Kind VariableKind
	Type Type
}

// Function is a function value with an AST body. Mutable functions may be
// rebound through their variable; the distinction is kept for the wire format.
type Function struct {
	Mutable bool
	Params  []Param
	Ret     Type
	Body    []Command
}

// NativeFunction is a closure implemented by the runtime, resolved by name
// through the runtime's registry. Captures are passed back to the
// implementation on every call.
type NativeFunction struct {
	Name     string
	Captures []Value
}

func (Null) Kind() ValueKind            { return KindNull }
func (Bool) Kind() ValueKind            { return KindBool }
func (Char) Kind() ValueKind            { return KindChar }
func (U8) Kind() ValueKind              { return KindU8 }
func (I16) Kind() ValueKind             { return KindI16 }
func (F32) Kind() ValueKind             { return KindF32 }
func (String) Kind() ValueKind          { return KindString }
func (*Instance) Kind() ValueKind       { return KindInstance }
func (*PropertyMap) Kind() ValueKind    { return KindPropertyMap }
func (Native) Kind() ValueKind          { return KindNative }
func (*Function) Kind() ValueKind       { return KindFunction }
func (*NativeFunction) Kind() ValueKind { return KindNativeFunction }

func (Null) String() string     { return "null" }
func (v Bool) String() string   { return strconv.FormatBool(bool(v)) }
func (v Char) String() string   { return string(rune(v)) }
func (v U8) String() string     { return strconv.FormatUint(uint64(v), 10) }
func (v I16) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v F32) String() string    { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (v String) String() string { return string(v) }
func (v Native) String() string { return fmt.Sprintf("[Native 0x%02X]", v.Handle) }

func (v *Instance) String() string {
	return v.Type.String() + " " + formatFields(v.Fields)
}

func (v *PropertyMap) String() string {
	return "# " + formatFields(v.Fields)
}

func (v *Function) String() string {
	if v.Mutable {
		return "[Function mut]"
	}
	return "[Function]"
}

func (v *NativeFunction) String() string {
	return "[Native Function " + v.Name + "]"
}

func formatFields(fields map[string]Value) string {
	if len(fields) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{ ")
	for i, k := range SortedKeys(fields) {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(fields[k].String())
	}
	sb.WriteString(" }")
	return sb.String()
}

// SortedKeys returns the field names of an object in lexical order.
func SortedKeys(fields map[string]Value) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a deep copy of v. Objects get fresh field maps so the copy
// can be mutated without affecting the original. Scalars, functions and
// values this package does not own are returned as is.
func Copy(v Value) Value {
	switch v := v.(type) {
	case *Instance:
		return &Instance{Type: v.Type, Fields: copyFields(v.Fields)}
	case *PropertyMap:
		return &PropertyMap{Fields: copyFields(v.Fields)}
	case *NativeFunction:
		var caps []Value
		for _, c := range v.Captures {
			caps = append(caps, Copy(c))
		}
		return &NativeFunction{Name: v.Name, Captures: caps}
	}
	return v
}

func copyFields(fields map[string]Value) map[string]Value {
	out := make(map[string]Value, len(fields))
	for k, f := range fields {
		out[k] = Copy(f)
	}
	return out
}

// Literal renders v in aml3 source syntax. It is the inverse of the front
// end's literal parser for every encodable value.
func Literal(v Value) string {
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case U8:
		return v.String() + "u8"
	case I16:
		return v.String() + "i16"
	case F32:
		s := v.String()
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s + "f32"
	case String:
		return strconv.Quote(string(v))
	case Char:
		return strconv.QuoteRune(rune(v))
	case *Instance:
		return v.Type.String() + " " + literalFields(v.Fields)
	case *PropertyMap:
		return "# " + literalFields(v.Fields)
	}
	return v.String()
}

func literalFields(fields map[string]Value) string {
	if len(fields) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{")
	for _, k := range SortedKeys(fields) {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString(" ")
		sb.WriteString(Literal(fields[k]))
	}
	sb.WriteString(" }")
	return sb.String()
}

// MatchesType reports whether v conforms to t. Only primitive and named
// types are checked; composite annotations accept any value.
func MatchesType(v Value, t Type) bool {
	switch t := t.(type) {
	case PrimitiveType:
		switch t.Prim {
		case PrimBool:
			return v.Kind() == KindBool
		case PrimString:
			return v.Kind() == KindString
		case PrimU8:
			return v.Kind() == KindU8
		}
		return false
	case NamedType:
		inst, ok := v.(*Instance)
		if !ok {
			return false
		}
		named, ok := inst.Type.(NamedType)
		return ok && named.Name == t.Name
	case UnionType:
		return MatchesType(v, t.A) || MatchesType(v, t.B)
	}
	return true
}
