package vm

import "github.com/chazu/amvm/pkg/ast"

// HandleTable maps opaque native handles to sub-VM scopes. Handles start at
// 1 and are never reused within a runtime.
type HandleTable struct {
	scopes map[uint32]*Scope
	nextID uint32
}

// NewHandleTable creates an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{scopes: make(map[uint32]*Scope), nextID: 1}
}

// Register stores s and returns its handle. The table takes ownership of
// the scope until Drop.
func (h *HandleTable) Register(s *Scope) ast.Native {
	id := h.nextID
	h.nextID++
	h.scopes[id] = s
	return ast.Native{Handle: id}
}

// Get resolves a handle.
func (h *HandleTable) Get(n ast.Native) (*Scope, error) {
	s, ok := h.scopes[n.Handle]
	if !ok {
		return nil, newError(InvalidHandle, "handle 0x%02X is not live", n.Handle)
	}
	return s, nil
}

// Drop releases the scope behind a handle.
func (h *HandleTable) Drop(n ast.Native) error {
	s, err := h.Get(n)
	if err != nil {
		return err
	}
	delete(h.scopes, n.Handle)
	s.Release()
	return nil
}

// Len returns the number of live handles.
func (h *HandleTable) Len() int {
	return len(h.scopes)
}
