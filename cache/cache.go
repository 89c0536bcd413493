// Package cache stores compiled bytecode in SQLite, keyed by a hash of the
// source text and the options it was compiled with. The jit command uses it
// to skip recompiling unchanged aml3 files.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("amvm.cache")

// ErrMiss is returned by Get when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Key identifies one compilation.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyFor hashes everything that influences the compiler's output.
func KeyFor(h ast.Header, debug bool, file, source string) Key {
	d := sha256.New()
	d.Write([]byte{byte(h.Casting)})
	if debug {
		d.Write([]byte{1})
	} else {
		d.Write([]byte{0})
	}
	d.Write([]byte(file))
	d.Write([]byte{0})
	d.Write([]byte(source))
	var k Key
	copy(k[:], d.Sum(nil))
	return k
}

// Cache is a compile cache backed by one SQLite file.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS bytecode (
		key TEXT PRIMARY KEY,
		code BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened compile cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Path returns the database file the cache was opened on.
func (c *Cache) Path() string { return c.path }

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the bytecode stored under k, or ErrMiss.
func (c *Cache) Get(k Key) ([]byte, error) {
	var code []byte
	err := c.db.QueryRow("SELECT code FROM bytecode WHERE key = ?", k.String()).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", k)
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying bytecode: %w", err)
	}
	log.Debugf("hit %s (%d bytes)", k, len(code))
	return code, nil
}

// Put stores code under k, replacing any previous entry.
func (c *Cache) Put(k Key, code []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO bytecode (key, code, created) VALUES (?, ?, ?)",
		k.String(), code, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving bytecode: %w", err)
	}
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM bytecode").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM bytecode"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}
