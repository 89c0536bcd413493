package vm

import "github.com/chazu/amvm/pkg/ast"

// execCall evaluates the callee and arguments, invokes the function and
// pushes its result onto the caller's prev stack.
func (s *Scope) execCall(c ast.Call) error {
	callee, err := s.eval(c.Callee)
	if err != nil {
		return err
	}
	fn := deref(callee.Get())
	// A string callee names the variable holding the function.
	if name, ok := fn.(ast.String); ok {
		v, err := s.Lookup(string(name))
		if err != nil {
			return err
		}
		fn = deref(v.Get())
	}

	args := make([]Result, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = s.eval(a); err != nil {
			return err
		}
	}

	v, err := s.call(fn, args)
	if err != nil {
		return err
	}
	s.PushPrev(v)
	return nil
}

// Call invokes a function value with already evaluated arguments.
func (s *Scope) Call(fn ast.Value, args []Result) (ast.Value, error) {
	return s.call(deref(fn), args)
}

func (s *Scope) call(fn ast.Value, args []Result) (ast.Value, error) {
	switch f := fn.(type) {
	case *ast.Function:
		return s.callFunction(f, args)
	case *ast.NativeFunction:
		impl, ok := s.rt.natives[f.Name]
		if !ok {
			return nil, newError(NotCallable, "native function %q is not registered", f.Name)
		}
		return impl(s, f.Captures, args)
	case nil:
		return nil, newError(NotCallable, "callee has no value")
	}
	return nil, newError(NotCallable, "%s is not a function", fn.Kind())
}

// callFunction binds parameters in a child of the calling scope and runs
// the body there. A const parameter receives a deep copy of the argument;
// any other kind aliases the caller's storage.
func (s *Scope) callFunction(f *ast.Function, args []Result) (ast.Value, error) {
	if len(args) != len(f.Params) {
		return nil, newError(Arity, "function takes %d arguments, got %d", len(f.Params), len(args))
	}

	inner := s.child()
	defer inner.Release()

	for i, p := range f.Params {
		arg := args[i]
		if !p.Kind.Accepts(arg.Kind()) {
			return nil, newError(KindMismatch, "parameter $%s is %s, argument is %s", p.Name, p.Kind, arg.Kind())
		}
		val := deref(arg.Get())
		if p.Type != nil && !ast.MatchesType(val, p.Type) {
			return nil, typeMismatch("parameter $%s must be %s, got %s", p.Name, p.Type, val.Kind())
		}
		if p.Kind == ast.Const {
			inner.Declare(p.Name, ast.Const, ast.Copy(val))
			continue
		}
		place, ok := placeOf(arg)
		if !ok {
			inner.Declare(p.Name, p.Kind, arg.Value)
			continue
		}
		inner.bind(p.Name, aliasVariable(p.Kind, place))
	}

	err := inner.execBody(f.Body)
	if v, ok := IsReturn(err); ok {
		return v, nil
	}
	if IsBreak(err) {
		return nil, newError(EscapedControl, "break outside of a loop")
	}
	if err != nil {
		return nil, err
	}
	return ast.Null{}, nil
}
