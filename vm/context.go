package vm

import "github.com/chazu/amvm/pkg/ast"

// prevCapacity bounds each context's prev stack. Pushing onto a full stack
// drops the oldest entry.
const prevCapacity = 16

// contextID addresses a Context in the runtime's arena.
type contextID int32

const noContext contextID = -1

// Context is one level of the scope chain: local bindings, registered
// types, the prev stack, and the index of the enclosing context.
type Context struct {
	vars   map[string]*Variable
	types  map[string]ast.TypeDefinition
	prev   []ast.Value
	parent contextID
	refs   int
}

// ---------------------------------------------------------------------------
// Arena
// ---------------------------------------------------------------------------

// arena stores contexts by index. A context is reference counted: each
// scope holding it and each live child context count once. Parent links
// only point from child to parent, so counts can never form a cycle.
type arena struct {
	slots []*Context
	free  []contextID
}

// alloc creates an empty context under parent and returns it with one
// reference held by the caller.
func (a *arena) alloc(parent contextID) contextID {
	if parent != noContext {
		a.get(parent).refs++
	}
	c := &Context{
		vars:   make(map[string]*Variable),
		types:  make(map[string]ast.TypeDefinition),
		parent: parent,
		refs:   1,
	}
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[id] = c
		return id
	}
	a.slots = append(a.slots, c)
	return contextID(len(a.slots) - 1)
}

func (a *arena) get(id contextID) *Context {
	return a.slots[id]
}

func (a *arena) retain(id contextID) {
	a.get(id).refs++
}

// release drops one reference, freeing the context and walking up the
// parent chain as counts reach zero.
func (a *arena) release(id contextID) {
	for id != noContext {
		c := a.slots[id]
		c.refs--
		if c.refs > 0 {
			return
		}
		a.slots[id] = nil
		a.free = append(a.free, id)
		id = c.parent
	}
}

// live returns the number of allocated contexts.
func (a *arena) live() int {
	return len(a.slots) - len(a.free)
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// lookup resolves a variable through the chain starting at id.
func (a *arena) lookup(id contextID, name string) (*Variable, bool) {
	for id != noContext {
		c := a.slots[id]
		if v, ok := c.vars[name]; ok {
			return v, true
		}
		id = c.parent
	}
	return nil, false
}

// lookupType resolves a type name through the chain starting at id.
func (a *arena) lookupType(id contextID, name string) (ast.TypeDefinition, bool) {
	for id != noContext {
		c := a.slots[id]
		if d, ok := c.types[name]; ok {
			return d, true
		}
		id = c.parent
	}
	return nil, false
}

// visible lists the variable names reachable from id, innermost first.
func (a *arena) visible(id contextID) []string {
	seen := make(map[string]bool)
	var names []string
	for id != noContext {
		c := a.slots[id]
		for _, n := range sortedVarNames(c.vars) {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
		id = c.parent
	}
	return names
}

// pushPrev pushes onto the context's bounded prev stack. It reports
// whether the oldest entry was dropped.
func (c *Context) pushPrev(v ast.Value) bool {
	dropped := false
	if len(c.prev) == prevCapacity {
		copy(c.prev, c.prev[1:])
		c.prev = c.prev[:prevCapacity-1]
		dropped = true
	}
	c.prev = append(c.prev, v)
	return dropped
}

func (c *Context) popPrev() (ast.Value, bool) {
	n := len(c.prev)
	if n == 0 {
		return nil, false
	}
	v := c.prev[n-1]
	c.prev[n-1] = nil
	c.prev = c.prev[:n-1]
	return v, true
}
