package vm

import (
	"unicode/utf8"

	"github.com/chazu/amvm/pkg/ast"
)

// Result is what an expression evaluates to: a temporary value, or a place
// naming existing storage so property and reference expressions can be
// assigned through.
type Result struct {
	Value ast.Value
	Place Place
}

func valueResult(v ast.Value) Result {
	return Result{Value: v}
}

// Get returns the current value of the result.
func (r Result) Get() ast.Value {
	if r.Place != nil {
		return r.Place.Get()
	}
	return r.Value
}

// Kind is the variable kind the result carries into a call. Temporaries
// behave like fresh Var bindings.
func (r Result) Kind() ast.VariableKind {
	if ref, ok := r.Get().(*Ref); ok {
		return ref.RefKind
	}
	if r.Place != nil {
		return r.Place.Kind()
	}
	return ast.Var
}

// Eval evaluates an expression in this scope.
func (s *Scope) Eval(x ast.Expression) (Result, error) {
	return s.eval(x)
}

func (s *Scope) eval(x ast.Expression) (Result, error) {
	switch x := x.(type) {
	case ast.ValueExpr:
		if x.Value == nil {
			return Result{}, typeMismatch("missing literal value")
		}
		// Literals are copied so in-place mutation never reaches the tree.
		return valueResult(ast.Copy(x.Value)), nil
	case ast.VarExpr:
		v, err := s.Lookup(x.Name)
		if err != nil {
			return Result{}, err
		}
		return Result{Place: v}, nil
	case ast.PropertyExpr:
		return s.evalProperty(x)
	case ast.BinaryExpr:
		l, err := s.eval(x.Left)
		if err != nil {
			return Result{}, err
		}
		r, err := s.eval(x.Right)
		if err != nil {
			return Result{}, err
		}
		v, err := binary(s.header.Casting, x.Op, deref(l.Get()), deref(r.Get()))
		if err != nil {
			return Result{}, err
		}
		return valueResult(v), nil
	case ast.PrevExpr:
		v, err := s.PopPrev()
		if err != nil {
			return Result{}, err
		}
		return valueResult(v), nil
	case ast.RangeExpr:
		from, err := s.eval(x.From)
		if err != nil {
			return Result{}, err
		}
		to, err := s.eval(x.To)
		if err != nil {
			return Result{}, err
		}
		it, err := newRange(s.header.Casting, deref(from.Get()), deref(to.Get()))
		if err != nil {
			return Result{}, err
		}
		return valueResult(it), nil
	case ast.RefExpr:
		return s.evalRef(x)
	case ast.StructExpr:
		return s.evalStruct(x)
	}
	return Result{}, typeMismatch("unsupported expression %T", x)
}

func (s *Scope) evalRef(x ast.RefExpr) (Result, error) {
	if !x.Kind.Valid() {
		return Result{}, newError(KindMismatch, "invalid reference kind %s", x.Kind)
	}
	inner, err := s.eval(x.Inner)
	if err != nil {
		return Result{}, err
	}
	if inner.Place == nil {
		return valueResult(&Ref{RefKind: x.Kind, Place: NewVariable(x.Kind, inner.Value)}), nil
	}
	if inner.Place.Kind() < x.Kind {
		return Result{}, newError(KindMismatch, "cannot take %s reference to %s storage", x.Kind, inner.Place.Kind())
	}
	return valueResult(&Ref{RefKind: x.Kind, Place: inner.Place}), nil
}

func (s *Scope) evalProperty(x ast.PropertyExpr) (Result, error) {
	base, err := s.eval(x.Base)
	if err != nil {
		return Result{}, err
	}
	keyRes, err := s.eval(x.Key)
	if err != nil {
		return Result{}, err
	}
	key := deref(keyRes.Get())

	switch b := deref(base.Get()).(type) {
	case ast.String:
		v, err := stringProperty(string(b), key)
		if err != nil {
			return Result{}, err
		}
		return valueResult(v), nil
	case *ast.Instance, *ast.PropertyMap:
		k, ok := key.(ast.String)
		if !ok {
			return Result{}, typeMismatch("object keys must be strings, got %s", key.Kind())
		}
		if place, ok := placeOf(base); ok {
			return Result{Place: &FieldPlace{Parent: place, Key: string(k)}}, nil
		}
		fields, _ := objectFields(b)
		if v, ok := fields[string(k)]; ok {
			return valueResult(v), nil
		}
		return valueResult(ast.Null{}), nil
	default:
		return Result{}, typeMismatch("%s has no properties", b.Kind())
	}
}

// stringProperty implements "length" and rune indexing on strings.
func stringProperty(s string, key ast.Value) (ast.Value, error) {
	switch k := key.(type) {
	case ast.String:
		if k != "length" {
			return nil, typeMismatch("string has no property %q", string(k))
		}
		n := utf8.RuneCountInString(s)
		if n > 255 {
			return nil, newError(ArithmeticOverflow, "string length %d does not fit in u8", n)
		}
		return ast.U8(n), nil
	case ast.U8, ast.I16:
		idx, _ := toInt(k)
		if idx < 0 {
			return ast.Null{}, nil
		}
		for i, r := range []rune(s) {
			if int64(i) == idx {
				return ast.String(string(r)), nil
			}
		}
		return ast.Null{}, nil
	}
	return nil, typeMismatch("cannot index string with %s", key.Kind())
}

func (s *Scope) evalStruct(x ast.StructExpr) (Result, error) {
	fields := make(map[string]ast.Value, len(x.Fields))
	for _, f := range x.Fields {
		r, err := s.eval(f.Value)
		if err != nil {
			return Result{}, err
		}
		fields[f.Name] = ast.Copy(r.Get())
	}

	switch t := x.Type.(type) {
	case ast.AnonymousType:
		return valueResult(&ast.PropertyMap{Fields: fields}), nil
	case ast.NamedType:
		def, err := s.LookupType(t.Name)
		if err != nil {
			return Result{}, err
		}
		st, err := s.resolveStruct(t.Name, def)
		if err != nil {
			return Result{}, err
		}
		for name, v := range fields {
			fd, ok := st.Field(name)
			if !ok {
				return Result{}, typeMismatch("#%s has no field %q", t.Name, name)
			}
			if !isGeneric(st, fd.Type) && !ast.MatchesType(deref(v), fd.Type) {
				return Result{}, typeMismatch("field %s of #%s must be %s, got %s", name, t.Name, fd.Type, v.Kind())
			}
		}
		for _, fd := range st.Fields {
			if _, ok := fields[fd.Name]; !ok {
				fields[fd.Name] = ast.Null{}
			}
		}
		return valueResult(&ast.Instance{Type: t, Fields: fields}), nil
	}
	return Result{}, typeMismatch("cannot construct a value of type %s", x.Type)
}

// resolveStruct flattens a type definition into its complete field list.
// Inherited fields come first; the base definition overrides them.
func (s *Scope) resolveStruct(name string, def ast.TypeDefinition) (ast.StructDefinition, error) {
	return s.resolveStructDepth(name, def, 0)
}

func (s *Scope) resolveStructDepth(name string, def ast.TypeDefinition, depth int) (ast.StructDefinition, error) {
	if depth > 64 {
		return ast.StructDefinition{}, typeMismatch("inheritance of #%s is too deep", name)
	}
	switch d := def.(type) {
	case ast.StructDefinition:
		return d, nil
	case ast.InheritanceDefinition:
		var out ast.StructDefinition
		for _, super := range d.Supertypes {
			sd, err := s.LookupType(super)
			if err != nil {
				return ast.StructDefinition{}, err
			}
			resolved, err := s.resolveStructDepth(super, sd, depth+1)
			if err != nil {
				return ast.StructDefinition{}, err
			}
			out = mergeFields(out, resolved)
		}
		return mergeFields(out, d.Base), nil
	}
	return ast.StructDefinition{}, typeMismatch("#%s is not a struct", name)
}

func mergeFields(into, from ast.StructDefinition) ast.StructDefinition {
	out := ast.StructDefinition{Generics: append(append([]string(nil), into.Generics...), from.Generics...)}
	out.Fields = append(out.Fields, into.Fields...)
	for _, f := range from.Fields {
		replaced := false
		for i := range out.Fields {
			if out.Fields[i].Name == f.Name {
				out.Fields[i] = f
				replaced = true
			}
		}
		if !replaced {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

func isGeneric(def ast.StructDefinition, t ast.Type) bool {
	named, ok := t.(ast.NamedType)
	if !ok {
		return false
	}
	for _, g := range def.Generics {
		if g == named.Name {
			return true
		}
	}
	return false
}
