package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/amvm/cache"
	"github.com/chazu/amvm/compiler"
	"github.com/chazu/amvm/dist"
	"github.com/chazu/amvm/manifest"
	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
	"github.com/chazu/amvm/vm"
)

// buildOptions is the manifest's [build] section after flag overrides.
type buildOptions struct {
	Header ast.Header
	Debug  bool
	Bundle bool
	Name   string
	Cache  *cache.Cache // nil compiles every time
}

// buildFlags registers the flags shared by compile and jit. The returned
// function resolves them against the manifest once the set is parsed.
func buildFlags(fs *flag.FlagSet, m *manifest.Manifest) func() (buildOptions, error) {
	casting := fs.String("casting", "", "Casting policy: strict, type-casting-strict, type-casting-string, strictless-string")
	debug := fs.Bool("debug", m.Build.Debug, "Emit source positions for runtime backtraces")
	bundle := fs.Bool("bundle", m.Build.Bundle, "Write a CBOR bundle instead of raw bytecode")

	return func() (buildOptions, error) {
		h, err := m.Header()
		if err != nil {
			return buildOptions{}, err
		}
		if *casting != "" {
			c, err := ast.ParseCasting(*casting)
			if err != nil {
				return buildOptions{}, err
			}
			h.Casting = c
		}
		return buildOptions{Header: h, Debug: *debug, Bundle: *bundle, Name: m.Project.Name}, nil
	}
}

// compileFile compiles one aml3 file, consulting the cache when opts has one.
func compileFile(path string, opts buildOptions) ([]byte, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("can't read file %s: %w", path, err)
	}
	src := string(content)

	copts := compiler.Options{Debug: opts.Debug}
	if opts.Debug {
		copts.File = filepath.Base(path)
	}

	var key cache.Key
	if opts.Cache != nil {
		key = cache.KeyFor(opts.Header, copts.Debug, copts.File, src)
		code, err := opts.Cache.Get(key)
		if err == nil {
			return code, src, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warningf("compile cache: %v", err)
		}
	}

	code, err := compiler.Compile(src, opts.Header, copts)
	if err != nil {
		return nil, "", fmt.Errorf("can't parse file %s\n%w", path, err)
	}

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, code); err != nil {
			log.Warningf("compile cache: %v", err)
		}
	}
	return code, src, nil
}

// pack returns what compile writes: the bytecode itself or a bundle.
func pack(code []byte, src, path string, opts buildOptions) ([]byte, error) {
	if !opts.Bundle {
		return code, nil
	}
	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	b, err := dist.New(name, code, src)
	if err != nil {
		return nil, err
	}
	log.Debugf("bundle %s build %s", b.Name, b.BuildID)
	return dist.Encode(b)
}

// handleCompileCommand processes `amvm compile [source] [output]`.
func handleCompileCommand(args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	resolve := buildFlags(fs, m)
	fs.Parse(args)
	opts, err := resolve()
	if err != nil {
		return err
	}

	source, output := m.EntryPath(), m.OutputPath()
	if fs.NArg() > 0 {
		source = fs.Arg(0)
		output = strings.TrimSuffix(source, filepath.Ext(source)) + ".amvm"
	}
	if fs.NArg() > 1 {
		output = fs.Arg(1)
	}

	code, src, err := compileFile(source, opts)
	if err != nil {
		return err
	}
	data, err := pack(code, src, source, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("cannot write file %s: %w", output, err)
	}
	log.Infof("compiled %s to %s (%d bytes)", source, output, len(data))
	return nil
}

// newRuntime returns a runtime wired to the aml3 front end.
func newRuntime(opts ...vm.Option) *vm.Runtime {
	return vm.New(append(opts, vm.WithParser(compiler.Parse))...)
}

// runFile runs a bytecode file or bundle.
func runFile(path string, opts ...vm.Option) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read file %s: %w", path, err)
	}
	code, b, err := dist.Unpack(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if b != nil {
		log.Debugf("running bundle %s build %s", b.Name, b.BuildID)
	}
	return newRuntime(opts...).RunBytecode(code)
}

// handleRunCommand processes `amvm run [file]`.
func handleRunCommand(args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	path := m.OutputPath()
	if len(args) > 0 {
		path = args[0]
	}
	return runFile(path)
}

// handleJitCommand processes `amvm jit [source]`.
func handleJitCommand(args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("jit", flag.ExitOnError)
	resolve := buildFlags(fs, m)
	useCache := fs.Bool("cache", m.Cache.Enabled, "Reuse bytecode from the compile cache")
	fs.Parse(args)
	opts, err := resolve()
	if err != nil {
		return err
	}

	if *useCache {
		c, err := cache.Open(m.CachePath())
		if err != nil {
			return err
		}
		defer c.Close()
		opts.Cache = c
	}

	source := m.EntryPath()
	if fs.NArg() > 0 {
		source = fs.Arg(0)
	}
	code, _, err := compileFile(source, opts)
	if err != nil {
		return err
	}
	return newRuntime().RunBytecode(code)
}

// handleAml3Command processes `amvm aml3 [source]`: it parses the file and
// prints the commands and declarations it found.
func handleAml3Command(args []string, w io.Writer) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	path := m.EntryPath()
	if len(args) > 0 {
		path = args[0]
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read file %s: %w", path, err)
	}
	return describeSource(w, path, string(content))
}

func describeSource(w io.Writer, path, src string) error {
	p := compiler.NewParser(src, compiler.Options{})
	cmds := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(w, "%s:%s\n", path, e)
		}
		return fmt.Errorf("can't parse file %s: %w", path, errs)
	}

	fmt.Fprintf(w, "// %s: %d commands\n", path, len(cmds))
	fmt.Fprint(w, bytecode.FormatCommands(cmds))

	if syms := p.Symbols(); len(syms) > 0 {
		fmt.Fprintf(w, "\n// declarations\n")
		for _, s := range syms {
			fmt.Fprintf(w, "// %-8s %-6s %s\n", s.Pos, s.Kind, s.Detail)
		}
	}
	return nil
}
