package ast

import "fmt"

// VariableKind controls how a binding may be mutated and which function
// parameters it may be passed to. Kinds are ordered Const < Let < Mut < Var.
type VariableKind byte

const (
	Const VariableKind = 0x01 // Immutable, holds a plain value
	Let   VariableKind = 0x02 // Shared cell, single assignment
	Mut   VariableKind = 0x03 // Shared cell, assignable
	Var   VariableKind = 0x04 // Shared cell, assignable
)

var variableKindNames = map[VariableKind]string{
	Const: "const",
	Let:   "let",
	Mut:   "mut",
	Var:   "var",
}

func (k VariableKind) String() string {
	if name, ok := variableKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(0x%02X)", byte(k))
}

// Valid reports whether k is one of the four defined kinds.
func (k VariableKind) Valid() bool {
	return k >= Const && k <= Var
}

// Assignable reports whether a binding of this kind accepts assignment.
func (k VariableKind) Assignable() bool {
	return k >= Mut
}

// Accepts reports whether a parameter of kind k can be bound to a caller
// value of kind caller. The caller must be no stricter than the parameter.
func (k VariableKind) Accepts(caller VariableKind) bool {
	return caller >= k
}

// ParseVariableKind maps the textual kind names used by the aml3 front end.
func ParseVariableKind(s string) (VariableKind, bool) {
	for k, name := range variableKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Casting selects how binary operators treat operands of different types.
type Casting byte

const (
	// CastTypeStrict promotes numbers (U8 < I16 < F32) and rejects other mixes.
	CastTypeStrict Casting = 0x01
	// CastTypeString promotes numbers and stringifies when either side is a String.
	CastTypeString Casting = 0x02
	// CastStrictlessString promotes numbers and stringifies every other mix.
	CastStrictlessString Casting = 0x03
	// CastStrict performs no conversion at all.
	CastStrict Casting = 0x04
)

var castingNames = map[Casting]string{
	CastTypeStrict:       "type-casting-strict",
	CastTypeString:       "type-casting-string",
	CastStrictlessString: "strictless-string",
	CastStrict:           "strict",
}

func (c Casting) String() string {
	if name, ok := castingNames[c]; ok {
		return name
	}
	return fmt.Sprintf("casting(0x%02X)", byte(c))
}

// Valid reports whether c is a defined casting policy.
func (c Casting) Valid() bool {
	return c >= CastTypeStrict && c <= CastStrict
}

// ParseCasting maps a policy name (as written in amvm.toml) to its value.
func ParseCasting(s string) (Casting, error) {
	for c, name := range castingNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown casting policy %q", s)
}

// Header is the fixed program prologue.
type Header struct {
	Casting Casting
}

// DefaultHeader is used when neither a manifest nor a flag picks a policy.
func DefaultHeader() Header {
	return Header{Casting: CastStrictlessString}
}
