package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/lmorg/readline"

	"github.com/chazu/amvm/compiler"
	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/vm"
)

var commandWords = []string{
	"@break", "@builtin", "@call", "@declare", "@else", "@fn", "@for",
	"@if", "@loop", "@push", "@puts", "@return", "@struct",
}

// trackingWriter remembers whether the last byte written was a newline,
// so the REPL can finish a line that puts left open.
type trackingWriter struct {
	w       io.Writer
	written bool
	newline bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.written = true
		t.newline = p[len(p)-1] == '\n'
	}
	return t.w.Write(p)
}

// repl is an interactive session: every entry runs in the same top-level
// scope, so declarations persist between lines.
type repl struct {
	header ast.Header
	out    *trackingWriter
	rt     *vm.Runtime
	scope  *vm.Scope
	buf    strings.Builder
}

func newREPL(h ast.Header, out io.Writer, opts ...vm.Option) *repl {
	tw := &trackingWriter{w: out}
	rt := newRuntime(append([]vm.Option{vm.WithOutput(tw)}, opts...)...)
	return &repl{header: h, out: tw, rt: rt, scope: rt.NewScope(h)}
}

func (r *repl) close() {
	r.scope.Release()
}

func (r *repl) prompt() string {
	if r.buf.Len() > 0 {
		return ".. "
	}
	return ">> "
}

// feed handles one line of input. It returns false when the session ends.
func (r *repl) feed(line string) bool {
	if r.buf.Len() == 0 {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return true
		}
		if strings.HasPrefix(trimmed, ":") {
			return r.meta(trimmed)
		}
	}

	if r.buf.Len() > 0 {
		r.buf.WriteByte('\n')
	}
	r.buf.WriteString(line)
	if braceDepth(r.buf.String()) > 0 {
		return true
	}

	src := r.buf.String()
	r.buf.Reset()
	r.eval(src)
	return true
}

func (r *repl) eval(src string) {
	cmds, err := compiler.Parse(src)
	if err != nil {
		fmt.Fprintf(r.out, "Parse error: %v\n", err)
		return
	}

	r.out.written = false
	err = r.scope.Exec(cmds)
	if ferr := r.rt.Flush(); err == nil {
		err = ferr
	}
	if r.out.written && !r.out.newline {
		fmt.Fprintln(r.out)
	}
	if err != nil {
		var vmErr *vm.Error
		if errors.As(err, &vmErr) {
			fmt.Fprintf(r.out, "Error: %s\n", vmErr.Trace())
		} else {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	}
}

// meta handles REPL commands, which start with ':'.
func (r *repl) meta(cmd string) bool {
	switch cmd {
	case ":quit", ":q", ":exit":
		return false
	case ":help", ":h", ":?":
		fmt.Fprintln(r.out, "REPL Commands:")
		fmt.Fprintln(r.out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(r.out, "  :vars             List visible variables")
		fmt.Fprintln(r.out, "  :reset            Discard all declarations")
		fmt.Fprintln(r.out, "  :quit, :q         Exit REPL")
		fmt.Fprintln(r.out, "Lines with an open { continue until it is closed.")
	case ":vars":
		for _, name := range r.scope.Visible() {
			fmt.Fprintf(r.out, "$%s\n", name)
		}
	case ":reset":
		r.scope.Release()
		r.scope = r.rt.NewScope(r.header)
		fmt.Fprintln(r.out, "Scope reset")
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
	return true
}

// braceDepth counts unclosed braces, ignoring those inside literals.
func braceDepth(src string) int {
	depth := 0
	for _, tok := range compiler.NewLexer(src).Tokens() {
		switch tok.Type {
		case compiler.TokenLBrace:
			depth++
		case compiler.TokenRBrace:
			depth--
		}
	}
	return depth
}

// candidates returns completions for a sigiled word fragment.
func (r *repl) candidates(prefix string) []string {
	var pool []string
	switch {
	case strings.HasPrefix(prefix, "@"):
		pool = commandWords
	case strings.HasPrefix(prefix, "."):
		pool = r.rt.Builtins()
	case strings.HasPrefix(prefix, "$"):
		for _, name := range r.scope.Visible() {
			pool = append(pool, "$"+name)
		}
	}
	var out []string
	for _, c := range pool {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func (r *repl) tab(line []rune, pos int, dtx readline.DelayedTabContext) (string, []string, map[string]string, readline.TabDisplayType) {
	start := pos
	for start > 0 && !strings.ContainsRune(" \t({", line[start-1]) {
		start--
	}
	prefix := string(line[start:pos])

	var suggestions []string
	for _, c := range r.candidates(prefix) {
		suggestions = append(suggestions, c[len(prefix):])
	}
	return prefix, suggestions, nil, readline.TabDisplayGrid
}

// readline reports ^C and ^D as plain errors carrying these messages.
func isCtrlC(err error) bool { return err.Error() == readline.ErrCtrlC }
func isEOF(err error) bool   { return err.Error() == readline.ErrEOF }

// handleReplCommand processes `amvm repl [-casting policy]`.
func handleReplCommand(args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	resolve := buildFlags(fs, m)
	fs.Parse(args)
	opts, err := resolve()
	if err != nil {
		return err
	}

	r := newREPL(opts.Header, os.Stdout)
	defer r.close()

	fmt.Printf("AMVM aml3 REPL, casting %s (:help for commands, :quit to exit)\n", opts.Header.Casting)

	rl := readline.NewInstance()
	rl.TabCompleter = r.tab
	for {
		rl.SetPrompt(r.prompt())
		line, err := rl.Readline()
		if err != nil {
			if isCtrlC(err) {
				r.buf.Reset()
				continue
			}
			if isEOF(err) {
				fmt.Println()
				return nil
			}
			return err
		}
		if !r.feed(line) {
			return nil
		}
	}
}
