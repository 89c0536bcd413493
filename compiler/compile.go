// Package compiler is the aml3 front end. It parses the prefix-notation
// text syntax into ast commands and serializes them to AMVM bytecode.
package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
)

var log = commonlog.GetLogger("amvm.compiler")

// Options controls what the front end emits besides the program itself.
type Options struct {
	// File is recorded with a MetaFile command at the top of the program.
	File string
	// Debug emits a Meta command with the source position and line before
	// every command, so runtime errors carry a source backtrace.
	Debug bool
}

// Parse parses aml3 source without debug information.
func Parse(src string) ([]ast.Command, error) {
	return ParseWithOptions(src, Options{})
}

// ParseWithOptions parses aml3 source. The error, if any, is an ErrorList.
func ParseWithOptions(src string, opts Options) ([]ast.Command, error) {
	p := NewParser(src, opts)
	cmds := p.ParseProgram()
	if err := p.Errors().Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Compile parses src and returns the serialized program.
func Compile(src string, h ast.Header, opts Options) ([]byte, error) {
	cmds, err := ParseWithOptions(src, opts)
	if err != nil {
		return nil, err
	}
	data, err := bytecode.NewProgram(h, cmds).Serialize()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	log.Debugf("compiled %d commands into %d bytes (casting %s, debug %t)", len(cmds), len(data), h.Casting, opts.Debug)
	return data, nil
}
