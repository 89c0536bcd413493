package vm

import (
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/chazu/amvm/pkg/ast"
)

// BuiltinFunc implements a builtin. Results of a builtin are delivered
// through the prev stack, never as the command's own value.
type BuiltinFunc func(s *Scope, args []Result) error

type builtin struct {
	arity int // -1 accepts any number of arguments
	fn    BuiltinFunc
}

// RegisterBuiltin adds or replaces a builtin.
func (rt *Runtime) RegisterBuiltin(name string, arity int, fn BuiltinFunc) {
	rt.builtins[name] = builtin{arity: arity, fn: fn}
}

// Builtins lists the registered builtin names in order.
func (rt *Runtime) Builtins() []string {
	names := make([]string, 0, len(rt.builtins))
	for n := range rt.builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (rt *Runtime) registerBuiltins() {
	rt.RegisterBuiltin(".vm.create", 0, builtinVMCreate)
	rt.RegisterBuiltin(".vm.eval", 2, builtinVMEval)
	rt.RegisterBuiltin(".vm.drop", 1, builtinVMDrop)
	rt.RegisterBuiltin(".io.stdout.flush", 0, builtinStdoutFlush)
	rt.RegisterBuiltin(".io.stdout.write", -1, builtinStdoutWrite)
	rt.RegisterBuiltin(".io.stdin.read_line", 1, builtinStdinReadLine)
	rt.RegisterBuiltin(".obj.mut_access", 2, builtinObjMutAccess)
	rt.RegisterBuiltin(".mem.replace", 2, builtinMemReplace)
}

func (s *Scope) execBuiltin(c ast.Builtin) error {
	b, ok := s.rt.builtins[c.Name]
	if !ok {
		return newError(UnknownBuiltin, "%s", c.Name)
	}

	args := make([]Result, len(c.Args))
	for i, a := range c.Args {
		var err error
		if args[i], err = s.eval(a); err != nil {
			return err
		}
	}
	if b.arity >= 0 && len(args) != b.arity {
		return newError(Arity, "%s takes %d arguments, got %d", c.Name, b.arity, len(args))
	}

	log.Debugf("builtin %s with %d arguments", c.Name, len(args))
	return b.fn(s, args)
}

// ---------------------------------------------------------------------------
// Sub-VMs
// ---------------------------------------------------------------------------

// builtinVMCreate spawns a child scope and pushes its handle.
func builtinVMCreate(s *Scope, _ []Result) error {
	sub := s.child()
	h := s.rt.handles.Register(sub)
	log.Debugf("created sub-vm handle 0x%02X", h.Handle)
	s.PushPrev(h)
	return nil
}

// builtinVMEval parses source and runs it in a handle's scope. A top-level
// return in the evaluated code becomes the pushed result.
func builtinVMEval(s *Scope, args []Result) error {
	sub, err := handleArg(s, args[0])
	if err != nil {
		return err
	}
	code, ok := deref(args[1].Get()).(ast.String)
	if !ok {
		return typeMismatch(".vm.eval code must be a string, got %s", deref(args[1].Get()).Kind())
	}
	if s.rt.parse == nil {
		return newError(Parse, "no front end installed for .vm.eval")
	}
	cmds, err := s.rt.parse(string(code))
	if err != nil {
		return &Error{Kind: Parse, Message: ".vm.eval", Err: err}
	}

	result := ast.Value(ast.Null{})
	err = sub.execBody(cmds)
	if v, ok := IsReturn(err); ok {
		result, err = v, nil
	}
	if err = escaped(err); err != nil {
		return err
	}
	s.PushPrev(result)
	return nil
}

func builtinVMDrop(s *Scope, args []Result) error {
	h, ok := deref(args[0].Get()).(ast.Native)
	if !ok {
		return newError(InvalidHandle, "expected a native handle, got %s", deref(args[0].Get()).Kind())
	}
	log.Debugf("dropping sub-vm handle 0x%02X", h.Handle)
	return s.rt.handles.Drop(h)
}

func handleArg(s *Scope, r Result) (*Scope, error) {
	h, ok := deref(r.Get()).(ast.Native)
	if !ok {
		return nil, newError(InvalidHandle, "expected a native handle, got %s", deref(r.Get()).Kind())
	}
	return s.rt.handles.Get(h)
}

// ---------------------------------------------------------------------------
// I/O
// ---------------------------------------------------------------------------

func builtinStdoutFlush(s *Scope, _ []Result) error {
	return s.rt.Flush()
}

func builtinStdoutWrite(s *Scope, args []Result) error {
	for _, a := range args {
		v, err := resolve(a.Get())
		if err != nil {
			return err
		}
		if err := s.rt.write(v.String()); err != nil {
			return err
		}
	}
	return nil
}

// builtinStdinReadLine reads one line, without its terminator, into the
// mutable variable passed as the argument.
func builtinStdinReadLine(s *Scope, args []Result) error {
	place, ok := placeOf(args[0])
	if !ok {
		return typeMismatch(".io.stdin.read_line needs a variable to write into")
	}
	if err := s.rt.Flush(); err != nil {
		return err
	}
	line, err := s.rt.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return &Error{Kind: IO, Message: "read stdin", Err: err}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return place.Set(ast.String(line))
}

// ---------------------------------------------------------------------------
// Objects and memory
// ---------------------------------------------------------------------------

// builtinObjMutAccess pushes a mutable reference to a field of an object
// held in mutable storage.
func builtinObjMutAccess(s *Scope, args []Result) error {
	place, ok := placeOf(args[0])
	if !ok || !place.Kind().Assignable() {
		return newError(ImmutableAssignment, ".obj.mut_access receiver is not mutable")
	}
	if _, ok := objectFields(deref(place.Get())); !ok {
		return typeMismatch(".obj.mut_access receiver must be an object, got %s", deref(place.Get()).Kind())
	}
	key, ok := deref(args[1].Get()).(ast.String)
	if !ok {
		return typeMismatch("object keys must be strings, got %s", deref(args[1].Get()).Kind())
	}
	s.PushPrev(&Ref{RefKind: ast.Mut, Place: &FieldPlace{Parent: place, Key: string(key)}})
	return nil
}

// builtinMemReplace stores a new value into mutable storage and pushes the
// value it replaced.
func builtinMemReplace(s *Scope, args []Result) error {
	place, ok := placeOf(args[0])
	if !ok {
		return typeMismatch(".mem.replace needs a variable or reference")
	}
	old := place.Get()
	if err := place.Set(ast.Copy(deref(args[1].Get()))); err != nil {
		return err
	}
	s.PushPrev(old)
	return nil
}
