package bytecode

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated   = errors.New("unexpected end of bytecode")
	ErrUnknownTag  = errors.New("unknown tag")
	ErrInvalidUTF8 = errors.New("invalid utf-8")
	ErrBadEscape   = errors.New("invalid escape sequence")
	ErrBadMagic    = errors.New("invalid bytecode magic")
	ErrMalformed   = errors.New("malformed operand")
	ErrTooDeep     = errors.New("nesting too deep")
	ErrUnencodable = errors.New("node cannot be encoded")
	ErrTooLong     = errors.New("length exceeds 255")
)

// DecodeError reports where decoding stopped. Byte is the offending byte, or
// -1 when the stream ended.
type DecodeError struct {
	Offset  int
	Byte    int
	Reading string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Byte < 0 {
		return fmt.Sprintf("%v reading %s at pos %d", e.Err, e.Reading, e.Offset)
	}
	return fmt.Sprintf("%v 0x%02X reading %s at pos %d", e.Err, e.Byte, e.Reading, e.Offset)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a node that has no wire representation.
type EncodeError struct {
	Node string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Node, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
