package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
)

var log = commonlog.GetLogger("amvm.vm")

// ParseFunc turns aml3 source into commands. The runtime does not depend on
// the front end; it is injected with UseParser so .vm.eval can work.
type ParseFunc func(source string) ([]ast.Command, error)

// Runtime owns the context arena, the handle table, and the builtin and
// native function registries.
type Runtime struct {
	out      *bufio.Writer
	in       *bufio.Reader
	arena    arena
	handles  *HandleTable
	builtins map[string]builtin
	natives  map[string]NativeFunc
	parse    ParseFunc
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutput sets where puts writes. Output is buffered until
// .io.stdout.flush or the end of a run.
func WithOutput(w io.Writer) Option {
	return func(rt *Runtime) { rt.out = bufio.NewWriter(w) }
}

// WithInput sets where .io.stdin.read_line reads from.
func WithInput(r io.Reader) Option {
	return func(rt *Runtime) { rt.in = bufio.NewReader(r) }
}

// WithParser sets the front end used by .vm.eval.
func WithParser(p ParseFunc) Option {
	return func(rt *Runtime) { rt.parse = p }
}

// New creates a runtime writing to stdout and reading from stdin unless
// configured otherwise.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		out:      bufio.NewWriter(os.Stdout),
		in:       bufio.NewReader(os.Stdin),
		handles:  NewHandleTable(),
		builtins: make(map[string]builtin),
		natives:  make(map[string]NativeFunc),
	}
	rt.registerBuiltins()
	rt.registerNatives()
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// UseParser installs the front end used by .vm.eval.
func (rt *Runtime) UseParser(p ParseFunc) {
	rt.parse = p
}

// Handles returns the runtime's native handle table.
func (rt *Runtime) Handles() *HandleTable {
	return rt.handles
}

// LiveContexts reports how many contexts are allocated.
func (rt *Runtime) LiveContexts() int {
	return rt.arena.live()
}

// NewScope creates a top-level scope. The builtin Iterator type is
// registered in it. Release the scope when done with it.
func (rt *Runtime) NewScope(h ast.Header) *Scope {
	s := &Scope{rt: rt, header: h, ctx: rt.arena.alloc(noContext)}
	s.DefineType(IteratorType, iteratorDefinition())
	return s
}

// Run executes a program in a fresh top-level scope and flushes output.
func (rt *Runtime) Run(p *bytecode.Program) error {
	s := rt.NewScope(p.Header)
	defer s.Release()

	err := s.Exec(p.Body)
	if ferr := rt.Flush(); err == nil {
		err = ferr
	}
	return err
}

// RunBytecode decodes and runs a bytecode file.
func (rt *Runtime) RunBytecode(data []byte) error {
	p, err := bytecode.Deserialize(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return rt.Run(p)
}

// Flush writes buffered output.
func (rt *Runtime) Flush() error {
	if err := rt.out.Flush(); err != nil {
		return &Error{Kind: IO, Message: "flush stdout", Err: err}
	}
	return nil
}

func (rt *Runtime) write(s string) error {
	if _, err := rt.out.WriteString(s); err != nil {
		return &Error{Kind: IO, Message: "write stdout", Err: err}
	}
	return nil
}
