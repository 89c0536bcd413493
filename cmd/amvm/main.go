// AMVM CLI - compiles aml3 source to bytecode and runs it
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"github.com/chazu/amvm/manifest"
	"github.com/chazu/amvm/server"
	"github.com/chazu/amvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("amvm.cli")

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }
func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

func main() {
	var verbose verbosity
	flag.Var(&verbose, "v", "Verbose logging (repeat for more)")
	logFile := flag.String("log", "", "Write log output to `file` instead of stderr")

	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	var logPath *string
	if *logFile != "" {
		logPath = logFile
	}
	commonlog.Configure(int(verbose), logPath)

	args := flag.Args()
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cmd, rest := args[0], args[1:]
	log.Debugf("command %s %v", cmd, rest)

	var err error
	switch cmd {
	case "compile":
		err = handleCompileCommand(rest)
	case "run":
		err = handleRunCommand(rest)
	case "jit":
		err = handleJitCommand(rest)
	case "inspect":
		err = handleInspectCommand(rest, os.Stdout)
	case "aml3":
		err = handleAml3Command(rest, os.Stdout)
	case "repl":
		err = handleReplCommand(rest)
	case "lsp":
		err = server.NewLSP().Run()
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		fatal(err)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: amvm [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  compile [source] [output]  Compile aml3 to bytecode (or a bundle with -bundle)\n")
	fmt.Fprintf(w, "  run [file]                 Execute a bytecode file or bundle\n")
	fmt.Fprintf(w, "  jit [source]               Compile aml3 and run it, using the compile cache\n")
	fmt.Fprintf(w, "  inspect [file]             Read bytecode and show all commands\n")
	fmt.Fprintf(w, "  aml3 [source]              Parse aml3 and show the commands and declarations\n")
	fmt.Fprintf(w, "  repl                       Start an interactive aml3 session\n")
	fmt.Fprintf(w, "  lsp                        Start the aml3 language server on stdio\n")
	fmt.Fprintf(w, "  help                       Show this help\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fmt.Fprintf(w, "  -v          Verbose logging (repeat for more)\n")
	fmt.Fprintf(w, "  -log FILE   Write log output to FILE\n")
	fmt.Fprintf(w, "\nWithout a path, commands use the entry and output of the nearest %s.\n", manifest.FileName)
}

// fatal reports err and exits. Runtime errors are shown with their
// backtrace.
func fatal(err error) {
	prefix := "Error:"
	if term.IsTerminal(int(os.Stderr.Fd())) {
		prefix = "\x1b[31mError:\x1b[0m"
	}
	var vmErr *vm.Error
	if errors.As(err, &vmErr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", prefix, vmErr.Trace())
	} else {
		fmt.Fprintf(os.Stderr, "%s %v\n", prefix, err)
	}
	os.Exit(1)
}

// loadManifest returns the nearest amvm.toml, or the defaults when the
// working directory is not inside a project.
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		return manifest.Default(), nil
	}
	log.Debugf("using manifest %s", m.Dir)
	return m, nil
}
