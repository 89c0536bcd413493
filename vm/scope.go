package vm

import (
	"sort"

	"github.com/chazu/amvm/pkg/ast"
)

// Scope is an executable unit: the program header, a context in the arena,
// and the source metadata used for backtraces.
type Scope struct {
	rt       *Runtime
	header   ast.Header
	ctx      contextID
	file     string
	meta     *Frame // position of the command being run, if known
	caller   *Frame // trace of the scope that created this one
	released bool
}

// Header returns the program header the scope runs under.
func (s *Scope) Header() ast.Header { return s.header }

// Runtime returns the runtime that owns the scope.
func (s *Scope) Runtime() *Runtime { return s.rt }

// child creates a nested scope whose context is a child of this one.
func (s *Scope) child() *Scope {
	return &Scope{
		rt:     s.rt,
		header: s.header,
		ctx:    s.rt.arena.alloc(s.ctx),
		file:   s.file,
		caller: s.trace(),
	}
}

// Release drops the scope's reference to its context. It is safe to call
// more than once.
func (s *Scope) Release() {
	if s.released {
		return
	}
	s.released = true
	s.rt.arena.release(s.ctx)
}

// trace returns the current backtrace.
func (s *Scope) trace() *Frame {
	if s.meta != nil {
		return s.meta
	}
	return s.caller
}

func (s *Scope) context() *Context {
	return s.rt.arena.get(s.ctx)
}

// Declare binds name in this scope's own context, shadowing any binding
// of the same name in enclosing scopes.
func (s *Scope) Declare(name string, kind ast.VariableKind, v ast.Value) *Variable {
	variable := NewVariable(kind, v)
	s.context().vars[name] = variable
	return variable
}

func (s *Scope) bind(name string, v *Variable) {
	s.context().vars[name] = v
}

// Lookup resolves name through the scope chain.
func (s *Scope) Lookup(name string) (*Variable, error) {
	if v, ok := s.rt.arena.lookup(s.ctx, name); ok {
		return v, nil
	}
	return nil, newError(UndefinedVariable, "$%s is not declared", name)
}

// Assign replaces the value of an existing binding.
func (s *Scope) Assign(name string, v ast.Value) error {
	variable, err := s.Lookup(name)
	if err != nil {
		return err
	}
	if variable.kind.Assignable() && reaches(v, storage(variable)) {
		return typeMismatch("$%s cannot hold a reference to itself", name)
	}
	return variable.Set(v)
}

// DefineType registers a type definition in this scope's context.
func (s *Scope) DefineType(name string, def ast.TypeDefinition) {
	s.context().types[name] = def
}

// LookupType resolves a type name through the scope chain.
func (s *Scope) LookupType(name string) (ast.TypeDefinition, error) {
	if d, ok := s.rt.arena.lookupType(s.ctx, name); ok {
		return d, nil
	}
	return nil, newError(UndefinedType, "#%s is not declared", name)
}

// Visible returns the names of all variables reachable from this scope.
func (s *Scope) Visible() []string {
	return s.rt.arena.visible(s.ctx)
}

// PushPrev pushes a value for a later Prev expression.
func (s *Scope) PushPrev(v ast.Value) {
	if s.context().pushPrev(v) {
		log.Debugf("prev stack full, dropped oldest entry")
	}
}

// PopPrev pops the most recent value pushed in this scope's context.
func (s *Scope) PopPrev() (ast.Value, error) {
	if v, ok := s.context().popPrev(); ok {
		return v, nil
	}
	return nil, newError(NoPrevValue, "prev used with nothing pushed")
}

// Exec runs cmds directly in this scope. Break or return signals that
// escape cmds are reported as errors.
func (s *Scope) Exec(cmds []ast.Command) error {
	return escaped(s.execBody(cmds))
}

func sortedVarNames(vars map[string]*Variable) []string {
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
