package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/amvm/pkg/ast"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetPut(t *testing.T) {
	c := openTemp(t)
	k := KeyFor(ast.DefaultHeader(), false, "main.aml3", "@puts 1")

	if _, err := c.Get(k); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty cache = %v, want ErrMiss", err)
	}

	code := []byte{0x08, 0x48, 0x30, 0x03, 0x53, 0x11, 0x34, 0x01}
	if err := c.Put(k, code); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.Get(k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, code) {
		t.Errorf("Get = % x, want % x", got, code)
	}

	replaced := append(code[:len(code):len(code)], 0x58)
	if err := c.Put(k, replaced); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	if got, _ := c.Get(k); !bytes.Equal(got, replaced) {
		t.Errorf("Get after replace = % x, want % x", got, replaced)
	}
	if n, err := c.Len(); err != nil || n != 1 {
		t.Errorf("Len = %d, %v, want 1", n, err)
	}
}

func TestKeyForDistinguishesOptions(t *testing.T) {
	base := KeyFor(ast.DefaultHeader(), false, "a.aml3", "@puts 1")
	tests := []struct {
		name string
		key  Key
	}{
		{"casting", KeyFor(ast.Header{Casting: ast.CastStrict}, false, "a.aml3", "@puts 1")},
		{"debug", KeyFor(ast.DefaultHeader(), true, "a.aml3", "@puts 1")},
		{"file", KeyFor(ast.DefaultHeader(), false, "b.aml3", "@puts 1")},
		{"source", KeyFor(ast.DefaultHeader(), false, "a.aml3", "@puts 2")},
		{"file/source boundary", KeyFor(ast.DefaultHeader(), false, "a.aml3@", "puts 1")},
	}
	for _, tt := range tests {
		if tt.key == base {
			t.Errorf("%s: key equals base key", tt.name)
		}
	}
	if again := KeyFor(ast.DefaultHeader(), false, "a.aml3", "@puts 1"); again != base {
		t.Error("KeyFor is not deterministic")
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	k := KeyFor(ast.DefaultHeader(), false, "", "@puts 1")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(k, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	got, err := c.Get(k)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Get = %v, want [1 2 3]", got)
	}
}

func TestClear(t *testing.T) {
	c := openTemp(t)
	for i, src := range []string{"a", "b", "c"} {
		if err := c.Put(KeyFor(ast.DefaultHeader(), false, "", src), []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := c.Len(); n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len after Clear = %d, want 0", n)
	}
}
