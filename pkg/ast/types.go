package ast

import "strings"

// Type is a static type annotation: parameter and return types, struct field
// types, and the type tag of an Instance.
type Type interface {
	typeNode()
	String() string
}

// Primitive enumerates the builtin scalar types that can appear in a Type.
type Primitive byte

const (
	PrimBool Primitive = iota + 1
	PrimString
	PrimU8
)

func (p Primitive) String() string {
	switch p {
	case PrimBool:
		return "bool"
	case PrimString:
		return "string"
	case PrimU8:
		return "u8"
	}
	return "?"
}

// AnonymousType matches any value.
type AnonymousType struct{}

// NamedType refers to a struct registered with a Struct command.
type NamedType struct {
	Name string
}

// PrimitiveType is a builtin scalar type.
type PrimitiveType struct {
	Prim Primitive
}

type TupleType struct {
	Types []Type
}

type UnionType struct {
	A, B Type
}

// FunType is the type of a function value.
type FunType struct {
	Params []Type
	Ret    Type
}

func (AnonymousType) typeNode() {}
func (NamedType) typeNode()     {}
func (PrimitiveType) typeNode() {}
func (TupleType) typeNode()     {}
func (UnionType) typeNode()     {}
func (FunType) typeNode()       {}

func (AnonymousType) String() string   { return "#" }
func (t NamedType) String() string     { return "#" + t.Name }
func (t PrimitiveType) String() string { return "#" + t.Prim.String() }

func (t TupleType) String() string {
	parts := make([]string, len(t.Types))
	for i, m := range t.Types {
		parts[i] = m.String()
	}
	return "#(" + strings.Join(parts, ", ") + ")"
}

func (t UnionType) String() string {
	return "+ " + t.A.String() + " " + t.B.String()
}

func (t FunType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return "#fn(" + strings.Join(parts, ", ") + ") " + t.Ret.String()
}

// Shorthands for the primitive types.
var (
	BoolType   Type = PrimitiveType{Prim: PrimBool}
	StringType Type = PrimitiveType{Prim: PrimString}
	U8Type     Type = PrimitiveType{Prim: PrimU8}
)

// TypeDefinition is what a type name resolves to in a context's registry.
type TypeDefinition interface {
	typeDefinition()
}

// FieldDef is a named, typed struct field.
type FieldDef struct {
	Name string
	Type Type
}

// StructDefinition is produced by the Struct command.
type StructDefinition struct {
	Generics []string
	Fields   []FieldDef
}

// InheritanceDefinition composes the fields of its supertypes with Base.
type InheritanceDefinition struct {
	Supertypes []string
	Base       StructDefinition
}

func (StructDefinition) typeDefinition()      {}
func (InheritanceDefinition) typeDefinition() {}

// Field returns the named field and whether it exists.
func (d StructDefinition) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}
