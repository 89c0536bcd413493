package vm

import (
	"errors"

	"github.com/chazu/amvm/pkg/ast"
)

// execBody runs each command in order in this scope. The first error or
// control signal stops the body and is returned unchanged.
func (s *Scope) execBody(cmds []ast.Command) error {
	for _, c := range cmds {
		if err := s.exec(c); err != nil {
			return err
		}
	}
	return nil
}

// exec runs one command. Meta commands only update the position used for
// backtraces; any other command clears it once it has run.
func (s *Scope) exec(c ast.Command) error {
	switch c := c.(type) {
	case ast.Meta:
		s.meta = &Frame{File: s.file, Line: c.Line, Col: c.Col, Code: c.Code, Caller: s.caller}
		return nil
	case ast.MetaFile:
		s.file = c.File
		return nil
	}

	err := s.dispatch(c)
	if err != nil {
		var rerr *Error
		if errors.As(err, &rerr) && rerr.Backtrace == nil {
			rerr.Backtrace = s.trace()
		}
	}
	s.meta = nil
	return err
}

func (s *Scope) dispatch(c ast.Command) error {
	switch c := c.(type) {
	case ast.DeclareVariable:
		if !c.Kind.Valid() {
			return newError(KindMismatch, "invalid variable kind %s", c.Kind)
		}
		r, err := s.eval(c.Value)
		if err != nil {
			return err
		}
		s.Declare(c.Name, c.Kind, ast.Copy(r.Get()))
		return nil

	case ast.AssignVariable:
		r, err := s.eval(c.Value)
		if err != nil {
			return err
		}
		return s.Assign(c.Name, ast.Copy(r.Get()))

	case ast.Puts:
		r, err := s.eval(c.Value)
		if err != nil {
			return err
		}
		v, err := resolve(r.Get())
		if err != nil {
			return err
		}
		return s.rt.write(v.String())

	case ast.Push:
		r, err := s.eval(c.Value)
		if err != nil {
			return err
		}
		s.PushPrev(ast.Copy(r.Get()))
		return nil

	case ast.Scope:
		return s.runChild(c.Body)

	case ast.Loop:
		for {
			if err := s.runChild(c.Body); err != nil {
				if IsBreak(err) {
					return nil
				}
				return err
			}
		}

	case ast.Conditional:
		r, err := s.eval(c.Condition)
		if err != nil {
			return err
		}
		cond, ok := deref(r.Get()).(ast.Bool)
		if !ok {
			return typeMismatch("condition must be bool, got %s", deref(r.Get()).Kind())
		}
		if cond {
			return s.runChild(c.Body)
		}
		if c.Otherwise != nil {
			return s.runChild(c.Otherwise)
		}
		return nil

	case ast.Break:
		return BreakSignal{}

	case ast.Return:
		v := ast.Value(ast.Null{})
		if c.Value != nil {
			r, err := s.eval(c.Value)
			if err != nil {
				return err
			}
			v = ast.Copy(r.Get())
		}
		return &ReturnSignal{Value: v}

	case ast.Builtin:
		return s.execBuiltin(c)

	case ast.Call:
		return s.execCall(c)

	case ast.For:
		return s.execFor(c)

	case ast.DeclareFunction:
		s.Declare(c.Name, ast.Const, &ast.Function{Params: c.Params, Ret: c.Ret, Body: c.Body})
		return nil

	case ast.Struct:
		seen := make(map[string]bool, len(c.Fields))
		for _, f := range c.Fields {
			if seen[f.Name] {
				return typeMismatch("#%s declares field %q twice", c.Name, f.Name)
			}
			seen[f.Name] = true
		}
		s.DefineType(c.Name, ast.StructDefinition{Fields: c.Fields})
		return nil
	}
	return typeMismatch("unsupported command %T", c)
}

// runChild runs body in a fresh child scope and releases it afterwards.
func (s *Scope) runChild(body []ast.Command) error {
	child := s.child()
	defer child.Release()
	return child.execBody(body)
}

// execFor drives the iterator protocol: bind value, run the body, call
// next with the iterator, stop when the result reports done.
func (s *Scope) execFor(c ast.For) error {
	r, err := s.eval(c.Iterator)
	if err != nil {
		return err
	}

	// Iterate a mutable variable in place; otherwise work on a private copy.
	it, ok := placeOf(r)
	if !ok || !it.Kind().Assignable() {
		it = NewVariable(ast.Var, ast.Copy(deref(r.Get())))
	}
	if _, ok := objectFields(deref(it.Get())); !ok {
		return typeMismatch("cannot iterate over %s", deref(it.Get()).Kind())
	}

	next := deref((&FieldPlace{Parent: it, Key: "next"}).Get())
	if done, ok := (&FieldPlace{Parent: it, Key: "done"}).Get().(ast.Bool); ok && bool(done) {
		return nil
	}
	value := &FieldPlace{Parent: it, Key: "value"}

	for {
		child := s.child()
		child.Declare(c.Var, ast.Const, ast.Copy(deref(value.Get())))
		err := child.execBody(c.Body)
		child.Release()
		if err != nil {
			if IsBreak(err) {
				return nil
			}
			return err
		}

		res, err := s.call(next, []Result{{Place: it}})
		if err != nil {
			return err
		}
		fields, ok := objectFields(deref(res))
		if !ok {
			return typeMismatch("iterator result must be an object with done and value")
		}
		done, ok := fields["done"].(ast.Bool)
		if !ok {
			return typeMismatch("iterator result must have a bool done field")
		}
		if done {
			return nil
		}
		if v, ok := fields["value"]; ok {
			if err := value.Set(v); err != nil {
				return err
			}
		}
	}
}
