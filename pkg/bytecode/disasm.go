package bytecode

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/chazu/amvm/pkg/ast"
)

// Disassemble returns an aml3 listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns an aml3 listing with a name header. Meta
// commands are rendered as comments, so the listing parses back to the same
// program minus its debug information.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("// === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("// AMVM bytecode, casting %s, %d commands\n", p.Header.Casting, len(p.Body)))
	sb.WriteString(FormatCommands(p.Body))
	return sb.String()
}

// FormatCommands renders a command list in aml3 syntax.
func FormatCommands(cmds []ast.Command) string {
	pr := &printer{}
	pr.body(cmds)
	return pr.sb.String()
}

// FormatExpression renders an expression in aml3 syntax.
func FormatExpression(x ast.Expression) string {
	pr := &printer{}
	return pr.expr(x)
}

type printer struct {
	sb     strings.Builder
	indent int
}

func (p *printer) line(s string) {
	p.sb.WriteString(strings.Repeat("  ", p.indent))
	p.sb.WriteString(s)
	p.sb.WriteByte('\n')
}

func (p *printer) body(cmds []ast.Command) {
	for _, c := range cmds {
		p.command(c)
	}
}

// block writes "head {", the indented body, then "}" followed by tail.
func (p *printer) block(head string, body []ast.Command, tail string) {
	if head == "" {
		p.line("{")
	} else {
		p.line(head + " {")
	}
	p.indent++
	p.body(body)
	p.indent--
	p.line("}" + tail)
}

func (p *printer) command(c ast.Command) {
	switch c := c.(type) {
	case ast.Meta:
		p.line(fmt.Sprintf("// %d:%d %s", c.Line, c.Col, c.Code))
	case ast.MetaFile:
		p.line("// file " + c.File)
	case ast.DeclareVariable:
		p.line("@declare " + c.Kind.String() + " $" + c.Name + " " + p.expr(c.Value))
	case ast.AssignVariable:
		p.line("=$" + c.Name + " " + p.expr(c.Value))
	case ast.Puts:
		p.line("@puts " + p.expr(c.Value))
	case ast.Push:
		p.line("@push " + p.expr(c.Value))
	case ast.Scope:
		p.block("", c.Body, "")
	case ast.Loop:
		p.block("@loop", c.Body, "")
	case ast.Conditional:
		head := "@if " + p.expr(c.Condition)
		if c.Otherwise == nil {
			p.block(head, c.Body, "")
			return
		}
		p.line(head + " {")
		p.indent++
		p.body(c.Body)
		p.indent--
		p.block("} @else", c.Otherwise, "")
	case ast.Break:
		p.line("@break")
	case ast.Builtin:
		p.line("@builtin " + c.Name + p.args(c.Args))
	case ast.Call:
		p.line("@call " + p.expr(c.Callee) + p.args(c.Args))
	case ast.For:
		p.block("@for $"+c.Var+" in "+p.expr(c.Iterator), c.Body, "")
	case ast.DeclareFunction:
		p.block("@fn $"+c.Name+" "+p.signature(c.Params, c.Ret), c.Body, "")
	case ast.Return:
		if c.Value == nil {
			p.line("@return null")
			return
		}
		p.line("@return " + p.expr(c.Value))
	case ast.Struct:
		if len(c.Fields) == 0 {
			p.line("@struct #" + c.Name + " {}")
			return
		}
		p.line("@struct #" + c.Name + " {")
		p.indent++
		for _, f := range c.Fields {
			p.line(f.Name + " " + typeString(f.Type))
		}
		p.indent--
		p.line("}")
	default:
		p.line(fmt.Sprintf("// unknown command %T", c))
	}
}

func (p *printer) args(args []ast.Expression) string {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteByte(' ')
		sb.WriteString(p.expr(a))
	}
	return sb.String()
}

func (p *printer) signature(params []ast.Param, ret ast.Type) string {
	parts := make([]string, len(params))
	for i, prm := range params {
		parts[i] = "$" + prm.Name + " " + prm.Kind.String() + " " + typeString(prm.Type)
	}
	return "(" + strings.Join(parts, ", ") + ") " + typeString(ret)
}

// typeString renders an omitted annotation as the anonymous type.
func typeString(t ast.Type) string {
	if t == nil {
		return "#"
	}
	return t.String()
}

func (p *printer) expr(x ast.Expression) string {
	switch x := x.(type) {
	case ast.ValueExpr:
		if fn, ok := x.Value.(*ast.Function); ok {
			return p.function(fn)
		}
		return ast.Literal(x.Value)
	case ast.VarExpr:
		return "$" + x.Name
	case ast.PropertyExpr:
		if key, ok := x.Key.(ast.ValueExpr); ok {
			if s, ok := key.Value.(ast.String); ok && IsIdent(string(s)) {
				return ". " + p.expr(x.Base) + " " + string(s)
			}
		}
		return ". " + p.expr(x.Base) + " " + p.expr(x.Key)
	case ast.BinaryExpr:
		return x.Op.String() + " " + p.expr(x.Left) + " " + p.expr(x.Right)
	case ast.PrevExpr:
		return "prev"
	case ast.RangeExpr:
		return ".. " + p.expr(x.From) + " " + p.expr(x.To)
	case ast.RefExpr:
		return "& " + x.Kind.String() + " " + p.expr(x.Inner)
	case ast.StructExpr:
		if len(x.Fields) == 0 {
			return x.Type.String() + " {}"
		}
		var sb strings.Builder
		sb.WriteString(x.Type.String())
		sb.WriteString(" {")
		for _, f := range x.Fields {
			sb.WriteString(" " + f.Name + " " + p.expr(f.Value))
		}
		sb.WriteString(" }")
		return sb.String()
	}
	return fmt.Sprintf("<%T>", x)
}

// function renders a function literal; its body is indented one level
// deeper than the line it appears on.
func (p *printer) function(fn *ast.Function) string {
	head := "@fn "
	if fn.Mutable {
		head += "mut "
	}
	head += p.signature(fn.Params, fn.Ret) + " {"
	inner := &printer{indent: p.indent + 1}
	inner.body(fn.Body)
	return head + "\n" + inner.sb.String() + strings.Repeat("  ", p.indent) + "}"
}

// IsIdent reports whether s can be written as a bare aml3 identifier.
func IsIdent(s string) bool {
	if s == "" || keywords[s] {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// keywords cannot be used as bare property keys.
var keywords = map[string]bool{
	"true": true, "false": true, "null": true, "prev": true, "in": true, "_": true,
	"const": true, "let": true, "mut": true, "var": true,
}
