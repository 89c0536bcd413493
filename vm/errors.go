package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/amvm/pkg/ast"
)

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

// ErrorKind classifies a runtime error.
type ErrorKind byte

const (
	TypeMismatch ErrorKind = iota + 1
	UndefinedVariable
	UndefinedType
	ImmutableAssignment
	ArithmeticOverflow
	KindMismatch
	NotCallable
	UnknownBuiltin
	Arity
	InvalidHandle
	NoPrevValue
	EscapedControl
	Parse
	IO
)

var (
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrUndefinedVariable   = errors.New("undefined variable")
	ErrUndefinedType       = errors.New("undefined type")
	ErrImmutableAssignment = errors.New("assignment to immutable variable")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrKindMismatch        = errors.New("variable kind mismatch")
	ErrNotCallable         = errors.New("value is not callable")
	ErrUnknownBuiltin      = errors.New("unknown builtin")
	ErrArity               = errors.New("wrong number of arguments")
	ErrInvalidHandle       = errors.New("invalid native handle")
	ErrNoPrevValue         = errors.New("no previous value")
	ErrEscapedControl      = errors.New("control flow escaped its boundary")
	ErrParse               = errors.New("parse error")
	ErrIO                  = errors.New("i/o error")
)

var kindSentinels = map[ErrorKind]error{
	TypeMismatch:        ErrTypeMismatch,
	UndefinedVariable:   ErrUndefinedVariable,
	UndefinedType:       ErrUndefinedType,
	ImmutableAssignment: ErrImmutableAssignment,
	ArithmeticOverflow:  ErrArithmeticOverflow,
	KindMismatch:        ErrKindMismatch,
	NotCallable:         ErrNotCallable,
	UnknownBuiltin:      ErrUnknownBuiltin,
	Arity:               ErrArity,
	InvalidHandle:       ErrInvalidHandle,
	NoPrevValue:         ErrNoPrevValue,
	EscapedControl:      ErrEscapedControl,
	Parse:               ErrParse,
	IO:                  ErrIO,
}

func (k ErrorKind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("error kind %d", byte(k))
}

// Frame is one entry of a backtrace: the source position of a command and
// the frame of the scope that was running when this one was entered.
// Frames are immutable once created.
type Frame struct {
	File   string
	Line   uint16
	Col    uint16
	Code   string
	Caller *Frame
}

func (f *Frame) String() string {
	file := f.File
	if file == "" {
		file = "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, f.Line, f.Col, f.Code)
}

// Error is a runtime error. Backtrace is attached by the executor at the
// innermost command that carried source metadata.
type Error struct {
	Kind      ErrorKind
	Message   string
	Backtrace *Frame
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the sentinel for the error's kind and the cause, if any.
func (e *Error) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Trace renders the error and its backtrace, innermost frame first.
func (e *Error) Trace() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	for f := e.Backtrace; f != nil; f = f.Caller {
		sb.WriteString("\n    at ")
		sb.WriteString(f.String())
	}
	return sb.String()
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func typeMismatch(format string, args ...any) *Error {
	return newError(TypeMismatch, format, args...)
}

// ---------------------------------------------------------------------------
// Control signals
// ---------------------------------------------------------------------------

// ReturnSignal unwinds to the nearest function call boundary.
// It travels through the error channel so every evaluator propagates it
// without special handling.
type ReturnSignal struct {
	Value ast.Value
}

func (r *ReturnSignal) Error() string {
	return "return outside of a function"
}

// IsReturn reports whether err is a return signal and yields its value.
func IsReturn(err error) (ast.Value, bool) {
	var r *ReturnSignal
	if errors.As(err, &r) {
		return r.Value, true
	}
	return nil, false
}

// BreakSignal unwinds to the nearest enclosing loop.
type BreakSignal struct{}

func (BreakSignal) Error() string {
	return "break outside of a loop"
}

// IsBreak reports whether err is a break signal.
func IsBreak(err error) bool {
	var b BreakSignal
	return errors.As(err, &b)
}

// escaped converts a control signal that reached the top of a program into
// a runtime error. Other errors pass through unchanged.
func escaped(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := IsReturn(err); ok {
		return newError(EscapedControl, "return outside of a function")
	}
	if IsBreak(err) {
		return newError(EscapedControl, "break outside of a loop")
	}
	return err
}
