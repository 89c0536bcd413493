package vm

import (
	"sync"

	"github.com/chazu/amvm/pkg/ast"
)

// Cell is shared, lock-guarded storage. Several variables may alias one
// cell; a write through any of them is visible through all.
type Cell struct {
	mu sync.RWMutex
	v  ast.Value
}

// NewCell returns a cell holding v.
func NewCell(v ast.Value) *Cell {
	return &Cell{v: v}
}

// Load returns the current contents.
func (c *Cell) Load() ast.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Store replaces the contents.
func (c *Cell) Store(v ast.Value) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

// Update runs fn on the contents under the write lock. fn must not
// re-enter the interpreter.
func (c *Cell) Update(fn func(ast.Value) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.v)
}

// Place is assignable storage: a variable, a field of an object, or the
// target of a reference.
type Place interface {
	Get() ast.Value
	Set(v ast.Value) error
	// Update mutates the stored value in place, for objects.
	Update(fn func(ast.Value) error) error
	Kind() ast.VariableKind
}

// Variable is a named binding. Const variables hold a plain value; the
// other kinds hold a cell that may be shared with other bindings. A variable
// bound to a reference delegates to the referenced place.
type Variable struct {
	kind   ast.VariableKind
	value  ast.Value
	cell   *Cell
	target Place
}

// NewVariable creates a binding of the given kind holding v.
func NewVariable(kind ast.VariableKind, v ast.Value) *Variable {
	if kind == ast.Const {
		return &Variable{kind: kind, value: v}
	}
	return &Variable{kind: kind, cell: NewCell(v)}
}

// aliasVariable creates a binding that shares p's storage.
func aliasVariable(kind ast.VariableKind, p Place) *Variable {
	if v, ok := p.(*Variable); ok && v.cell != nil && v.target == nil {
		return &Variable{kind: kind, cell: v.cell}
	}
	return &Variable{kind: kind, target: p}
}

func (v *Variable) Kind() ast.VariableKind { return v.kind }

// Get returns the current value.
func (v *Variable) Get() ast.Value {
	switch {
	case v.target != nil:
		return v.target.Get()
	case v.cell != nil:
		return v.cell.Load()
	}
	return v.value
}

// Set replaces the value. It fails for Const and Let bindings.
func (v *Variable) Set(val ast.Value) error {
	if !v.kind.Assignable() {
		return newError(ImmutableAssignment, "cannot assign to %s binding", v.kind)
	}
	if v.target != nil {
		return v.target.Set(val)
	}
	if reaches(val, storage(v)) {
		return typeMismatch("cannot store a reference that leads back to the same %s binding", v.kind)
	}
	v.cell.Store(val)
	return nil
}

// Update mutates the held object in place. It fails for Const and Let
// bindings.
func (v *Variable) Update(fn func(ast.Value) error) error {
	if !v.kind.Assignable() {
		return newError(ImmutableAssignment, "cannot mutate %s binding", v.kind)
	}
	if v.target != nil {
		return v.target.Update(fn)
	}
	return v.cell.Update(fn)
}

// FieldPlace addresses one field of the object stored in Parent.
type FieldPlace struct {
	Parent Place
	Key    string
}

func (f *FieldPlace) Kind() ast.VariableKind { return f.Parent.Kind() }

// Get returns the field, or Null when it is absent.
func (f *FieldPlace) Get() ast.Value {
	fields, ok := objectFields(deref(f.Parent.Get()))
	if !ok {
		return ast.Null{}
	}
	if v, ok := fields[f.Key]; ok {
		return v
	}
	return ast.Null{}
}

// Set writes the field into the parent object in place.
func (f *FieldPlace) Set(v ast.Value) error {
	if reaches(v, storage(f)) {
		return typeMismatch("field %q cannot hold a reference back into its object", f.Key)
	}
	return f.Parent.Update(func(obj ast.Value) error {
		fields, ok := objectFields(deref(obj))
		if !ok {
			return typeMismatch("cannot set field %q on %s", f.Key, obj.Kind())
		}
		fields[f.Key] = v
		return nil
	})
}

// Update mutates the field's value in place.
func (f *FieldPlace) Update(fn func(ast.Value) error) error {
	return f.Parent.Update(func(obj ast.Value) error {
		fields, ok := objectFields(deref(obj))
		if !ok {
			return typeMismatch("cannot access field %q on %s", f.Key, obj.Kind())
		}
		v, ok := fields[f.Key]
		if !ok {
			v = ast.Null{}
		}
		return fn(v)
	})
}

func objectFields(v ast.Value) (map[string]ast.Value, bool) {
	switch o := v.(type) {
	case *ast.Instance:
		return o.Fields, true
	case *ast.PropertyMap:
		return o.Fields, true
	}
	return nil, false
}

// Ref is a reference value: a place together with the kind it was taken
// at. Refs are runtime-only and have no wire form.
type Ref struct {
	RefKind ast.VariableKind
	Place   Place
}

func (*Ref) Kind() ast.ValueKind { return ast.KindRef }

func (r *Ref) String() string {
	v := deref(r)
	if _, ok := v.(*Ref); ok {
		return "[Ref]"
	}
	return v.String()
}

func (r *Ref) Get() ast.Value { return r.Place.Get() }

// maxRefDepth bounds how many references deref follows. Stores that
// would close a cycle are rejected, so only absurdly long chains hit it.
const maxRefDepth = 256

// deref follows references to the value they point at. A chain longer
// than maxRefDepth yields the last reference reached.
func deref(v ast.Value) ast.Value {
	for i := 0; i < maxRefDepth; i++ {
		r, ok := v.(*Ref)
		if !ok {
			return v
		}
		v = r.Place.Get()
	}
	return v
}

// resolve is deref for callers that must produce a plain value.
func resolve(v ast.Value) (ast.Value, error) {
	v = deref(v)
	if _, ok := v.(*Ref); ok {
		return nil, typeMismatch("reference chain longer than %d", maxRefDepth)
	}
	return v, nil
}

// storage returns the identity of the storage p ultimately reads and
// writes: a shared cell, a const variable, or whatever a field lives in.
func storage(p Place) any {
	for {
		switch q := p.(type) {
		case *Variable:
			switch {
			case q.target != nil:
				p = q.target
			case q.cell != nil:
				return q.cell
			default:
				return q
			}
		case refPlace:
			p = q.r.Place
		case *FieldPlace:
			p = q.Parent
		default:
			return p
		}
	}
}

// reaches reports whether following v's reference chain touches root.
func reaches(v ast.Value, root any) bool {
	for i := 0; i < maxRefDepth; i++ {
		r, ok := v.(*Ref)
		if !ok {
			return false
		}
		if storage(r.Place) == root {
			return true
		}
		v = r.Place.Get()
	}
	return true
}

// refPlace lets a reference act as the place it points at, limited by the
// kind the reference was taken at.
type refPlace struct {
	r *Ref
}

func (p refPlace) Kind() ast.VariableKind { return p.r.RefKind }

func (p refPlace) Get() ast.Value { return p.r.Place.Get() }

func (p refPlace) Set(v ast.Value) error {
	if !p.r.RefKind.Assignable() {
		return newError(ImmutableAssignment, "cannot assign through %s reference", p.r.RefKind)
	}
	return p.r.Place.Set(v)
}

func (p refPlace) Update(fn func(ast.Value) error) error {
	if !p.r.RefKind.Assignable() {
		return newError(ImmutableAssignment, "cannot mutate through %s reference", p.r.RefKind)
	}
	return p.r.Place.Update(fn)
}

// placeOf returns the storage a result designates. A result holding a
// reference designates the referenced place.
func placeOf(res Result) (Place, bool) {
	if r, ok := res.Get().(*Ref); ok {
		return refPlace{r: r}, true
	}
	if res.Place != nil {
		return res.Place, true
	}
	return nil, false
}
