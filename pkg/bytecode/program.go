package bytecode

import (
	"bytes"
	"fmt"

	"github.com/chazu/amvm/pkg/ast"
)

// Magic is the bytecode file signature.
var Magic = []byte{0x08, 0x48, 0x30}

// HeaderLen is the size of the magic plus the casting byte.
const HeaderLen = 4

// Program is a decoded bytecode file: the header and the top-level body.
type Program struct {
	Header ast.Header
	Body   []ast.Command
}

// NewProgram creates a program with the given header and body.
func NewProgram(h ast.Header, body []ast.Command) *Program {
	if body == nil {
		body = []ast.Command{}
	}
	return &Program{Header: h, Body: body}
}

// Serialize converts the program to its binary form. Unlike nested bodies,
// the top-level body runs to the end of the stream and has no terminator.
func (p *Program) Serialize() ([]byte, error) {
	e := NewEncoder()
	if err := e.Header(p.Header); err != nil {
		return nil, err
	}
	for i, c := range p.Body {
		if err := e.Command(c); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}
	return e.Bytes(), nil
}

// Deserialize reconstructs a program from bytes produced by Serialize.
func Deserialize(data []byte) (*Program, error) {
	if len(data) < HeaderLen {
		return nil, &DecodeError{Offset: len(data), Byte: -1, Reading: "header", Err: ErrTruncated}
	}
	if !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, &DecodeError{Offset: 0, Byte: int(data[0]), Reading: "header", Err: ErrBadMagic}
	}
	casting := ast.Casting(data[len(Magic)])
	if !casting.Valid() {
		return nil, &DecodeError{Offset: len(Magic), Byte: int(casting), Reading: "casting policy", Err: ErrUnknownTag}
	}

	p := NewProgram(ast.Header{Casting: casting}, nil)
	d := &decoder{data: data, pos: HeaderLen}
	for d.pos < len(d.data) {
		c, err := d.command()
		if err != nil {
			return nil, err
		}
		p.Body = append(p.Body, c)
	}
	return p, nil
}

// IsBytecode reports whether data starts with the bytecode signature.
func IsBytecode(data []byte) bool {
	return len(data) >= HeaderLen && bytes.Equal(data[:len(Magic)], Magic)
}
