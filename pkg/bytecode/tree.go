package bytecode

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/chazu/amvm/pkg/ast"
)

// TreeNode is the structural dump of one command, used by `amvm inspect
// -format yaml`. Expressions are rendered in aml3 syntax.
type TreeNode struct {
	Offset int        `yaml:"offset,omitempty"`
	Op     string     `yaml:"op"`
	Kind   string     `yaml:"kind,omitempty"`
	Name   string     `yaml:"name,omitempty"`
	Expr   string     `yaml:"expr,omitempty"`
	Args   []string   `yaml:"args,omitempty"`
	Params []string   `yaml:"params,omitempty"`
	Ret    string     `yaml:"ret,omitempty"`
	Fields []string   `yaml:"fields,omitempty"`
	Body   []TreeNode `yaml:"body,omitempty"`
	Else   []TreeNode `yaml:"else,omitempty"`
}

// Tree is the structural dump of a program.
type Tree struct {
	Casting  string     `yaml:"casting"`
	Commands []TreeNode `yaml:"commands"`
}

// Tree builds the structural dump of the program. Top-level nodes carry
// their byte offset in the serialized form.
func (p *Program) Tree() (*Tree, error) {
	t := &Tree{Casting: p.Header.Casting.String()}
	offset := HeaderLen
	for _, c := range p.Body {
		enc, err := Encode(c)
		if err != nil {
			return nil, err
		}
		n := commandTree(c)
		n.Offset = offset
		offset += len(enc)
		t.Commands = append(t.Commands, n)
	}
	return t, nil
}

// YAML renders the structural dump as YAML.
func (p *Program) YAML() ([]byte, error) {
	t, err := p.Tree()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("inspect: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("inspect: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// CommandTag returns the wire tag of a command.
func CommandTag(c ast.Command) (Tag, bool) {
	switch c.(type) {
	case ast.Meta:
		return CmdMeta, true
	case ast.MetaFile:
		return CmdMetaFile, true
	case ast.DeclareVariable:
		return CmdDeclare, true
	case ast.AssignVariable:
		return CmdAssign, true
	case ast.Puts:
		return CmdPuts, true
	case ast.Push:
		return CmdPush, true
	case ast.Scope:
		return CmdScope, true
	case ast.Loop:
		return CmdLoop, true
	case ast.Conditional:
		return CmdConditional, true
	case ast.Break:
		return CmdBreak, true
	case ast.Builtin:
		return CmdBuiltin, true
	case ast.Call:
		return CmdCall, true
	case ast.For:
		return CmdFor, true
	case ast.DeclareFunction:
		return CmdFunction, true
	case ast.Return:
		return CmdReturn, true
	case ast.Struct:
		return CmdStruct, true
	}
	return 0, false
}

func commandTree(c ast.Command) TreeNode {
	tag, _ := CommandTag(c)
	n := TreeNode{Op: TagName(CatCommand, tag)}
	switch c := c.(type) {
	case ast.Meta:
		n.Name = fmt.Sprintf("%d:%d", c.Line, c.Col)
		n.Expr = c.Code
	case ast.MetaFile:
		n.Name = c.File
	case ast.DeclareVariable:
		n.Kind = c.Kind.String()
		n.Name = c.Name
		n.Expr = FormatExpression(c.Value)
	case ast.AssignVariable:
		n.Name = c.Name
		n.Expr = FormatExpression(c.Value)
	case ast.Puts:
		n.Expr = FormatExpression(c.Value)
	case ast.Push:
		n.Expr = FormatExpression(c.Value)
	case ast.Return:
		n.Expr = FormatExpression(c.Value)
	case ast.Scope:
		n.Body = bodyTree(c.Body)
	case ast.Loop:
		n.Body = bodyTree(c.Body)
	case ast.Conditional:
		n.Expr = FormatExpression(c.Condition)
		n.Body = bodyTree(c.Body)
		n.Else = bodyTree(c.Otherwise)
	case ast.Builtin:
		n.Name = c.Name
		n.Args = argStrings(c.Args)
	case ast.Call:
		n.Expr = FormatExpression(c.Callee)
		n.Args = argStrings(c.Args)
	case ast.For:
		n.Name = c.Var
		n.Expr = FormatExpression(c.Iterator)
		n.Body = bodyTree(c.Body)
	case ast.DeclareFunction:
		n.Name = c.Name
		for _, p := range c.Params {
			n.Params = append(n.Params, p.Name+" "+p.Kind.String()+" "+p.Type.String())
		}
		n.Ret = c.Ret.String()
		n.Body = bodyTree(c.Body)
	case ast.Struct:
		n.Name = c.Name
		for _, f := range c.Fields {
			n.Fields = append(n.Fields, f.Name+" "+f.Type.String())
		}
	}
	return n
}

func bodyTree(body []ast.Command) []TreeNode {
	var out []TreeNode
	for _, c := range body {
		out = append(out, commandTree(c))
	}
	return out
}

func argStrings(args []ast.Expression) []string {
	var out []string
	for _, a := range args {
		out = append(out, FormatExpression(a))
	}
	return out
}
