// Package dist packages compiled AMVM programs as content-hashed bundles.
// A bundle is a canonical CBOR envelope around the raw bytecode that
// records where the program came from, so a receiver can check it before
// running it.
package dist

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/chazu/amvm/pkg/ast"
	"github.com/chazu/amvm/pkg/bytecode"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Version is the bundle format written by this package.
const Version uint8 = 1

var (
	ErrHashMismatch   = errors.New("bundle hash mismatch")
	ErrVersion        = errors.New("unsupported bundle version")
	ErrCastingHeader  = errors.New("bundle casting does not match bytecode header")
	ErrUnknownPayload = errors.New("neither bytecode nor bundle")
)

// Bundle is the unit of program distribution.
type Bundle struct {
	Version  uint8     `cbor:"1,keyasint"`
	BuildID  uuid.UUID `cbor:"2,keyasint"`
	Name     string    `cbor:"3,keyasint,omitempty"`
	Casting  uint8     `cbor:"4,keyasint"`
	Hash     [32]byte  `cbor:"5,keyasint"`
	Bytecode []byte    `cbor:"6,keyasint"`
	Source   string    `cbor:"7,keyasint,omitempty"` // aml3 text, when built from source
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// New wraps compiled bytecode in a bundle with a fresh build id. The
// casting policy is read from the bytecode header.
func New(name string, code []byte, source string) (*Bundle, error) {
	if !bytecode.IsBytecode(code) {
		return nil, fmt.Errorf("dist: %w", bytecode.ErrBadMagic)
	}
	return &Bundle{
		Version:  Version,
		BuildID:  uuid.New(),
		Name:     name,
		Casting:  code[len(bytecode.Magic)],
		Hash:     sha256.Sum256(code),
		Bytecode: code,
		Source:   source,
	}, nil
}

// Header returns the program header recorded in the bundle.
func (b *Bundle) Header() ast.Header {
	return ast.Header{Casting: ast.Casting(b.Casting)}
}

// Verify checks the version, the content hash and that the recorded
// casting policy agrees with the bytecode header.
func (b *Bundle) Verify() error {
	if b.Version != Version {
		return fmt.Errorf("dist: %w: %d", ErrVersion, b.Version)
	}
	if got := sha256.Sum256(b.Bytecode); got != b.Hash {
		return fmt.Errorf("dist: %w: declared %x, computed %x", ErrHashMismatch, b.Hash[:8], got[:8])
	}
	if !bytecode.IsBytecode(b.Bytecode) {
		return fmt.Errorf("dist: %w", bytecode.ErrBadMagic)
	}
	if b.Bytecode[len(bytecode.Magic)] != b.Casting {
		return fmt.Errorf("dist: %w", ErrCastingHeader)
	}
	return nil
}

// Encode serializes a bundle to canonical CBOR.
func Encode(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// Decode deserializes a bundle. It does not verify it.
func Decode(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("dist: unmarshal bundle: %w", err)
	}
	return &b, nil
}

// IsBundle reports whether data looks like an encoded bundle (a CBOR map).
// Bytecode never matches since its first byte is 0x08.
func IsBundle(data []byte) bool {
	return len(data) > 0 && data[0]>>5 == 5
}

// Unpack returns runnable bytecode from either raw bytecode or a bundle.
// Bundles are verified first.
func Unpack(data []byte) ([]byte, *Bundle, error) {
	switch {
	case bytecode.IsBytecode(data):
		return data, nil, nil
	case IsBundle(data):
		b, err := Decode(data)
		if err != nil {
			return nil, nil, err
		}
		if err := b.Verify(); err != nil {
			return nil, nil, err
		}
		return b.Bytecode, b, nil
	}
	return nil, nil, fmt.Errorf("dist: %w", ErrUnknownPayload)
}
