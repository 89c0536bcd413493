package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/chazu/amvm/dist"
	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
)

// handleInspectCommand processes `amvm inspect [-format text|yaml] [file]`.
func handleInspectCommand(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	format := fs.String("format", "text", "Output format: text or yaml")
	fs.Parse(args)

	path := ""
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	} else {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		path = m.OutputPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read file %s: %w", path, err)
	}
	color := w == io.Writer(os.Stdout) && term.IsTerminal(int(os.Stdout.Fd()))
	return inspect(w, data, *format, color)
}

func inspect(w io.Writer, data []byte, format string, color bool) error {
	code, b, err := dist.Unpack(data)
	if err != nil {
		return err
	}
	p, err := bytecode.Deserialize(code)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		out, err := p.YAML()
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "text":
		if b != nil {
			fmt.Fprintf(w, "// bundle %s, build %s, sha256 %x\n", b.Name, b.BuildID, b.Hash[:8])
		}
		fmt.Fprintf(w, "// casting %s, %d commands\n", p.Header.Casting, len(p.Body))
		_, err := io.WriteString(w, listing(p.Body, color))
		return err
	}
	return fmt.Errorf("unknown format %q (use text or yaml)", format)
}

// listing prints each top-level command in aml3 syntax, every line
// prefixed with the command's index in hex.
func listing(cmds []ast.Command, color bool) string {
	var sb strings.Builder
	for i, c := range cmds {
		idx := fmt.Sprintf("%03x", i)
		if color {
			idx = "\x1b[32m" + idx + "\x1b[0m"
		}
		text := strings.TrimSuffix(bytecode.FormatCommands([]ast.Command{c}), "\n")
		for _, line := range strings.Split(text, "\n") {
			sb.WriteString(idx)
			sb.WriteByte(' ')
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
