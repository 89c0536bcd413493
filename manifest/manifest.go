// Package manifest handles amvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/amvm/pkg/ast"
)

// FileName is the name of the project configuration file.
const FileName = "amvm.toml"

// Manifest represents an amvm.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	Build   BuildConfig `toml:"build"`
	Cache   CacheConfig `toml:"cache"`

	// Dir is the directory containing the amvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the program entry point.
type Source struct {
	Entry string `toml:"entry"`
	// File is the name recorded in debug builds for backtraces. It
	// defaults to Entry.
	File string `toml:"file"`
}

// BuildConfig configures bytecode output.
type BuildConfig struct {
	Output  string `toml:"output"`
	Casting string `toml:"casting"`
	Debug   bool   `toml:"debug"`
	Bundle  bool   `toml:"bundle"`
}

// CacheConfig configures the compile cache used by jit.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no amvm.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = "main.aml3"
	}
	if m.Source.File == "" {
		m.Source.File = m.Source.Entry
	}
	if m.Build.Output == "" {
		m.Build.Output = strings.TrimSuffix(m.Source.Entry, filepath.Ext(m.Source.Entry)) + ".amvm"
	}
	if m.Build.Casting == "" {
		m.Build.Casting = ast.CastStrictlessString.String()
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".amvm", "cache.db")
	}
}

// Load parses an amvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if _, err := ast.ParseCasting(m.Build.Casting); err != nil {
		return nil, fmt.Errorf("%s: build.casting: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an amvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Header returns the program header for the configured casting policy.
func (m *Manifest) Header() (ast.Header, error) {
	c, err := ast.ParseCasting(m.Build.Casting)
	if err != nil {
		return ast.Header{}, err
	}
	return ast.Header{Casting: c}, nil
}

// EntryPath returns the path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// OutputPath returns the path compiled bytecode is written to.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Build.Output)
}

// CachePath returns the path of the compile cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
