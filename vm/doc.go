// Package vm implements the AMVM tree-walking interpreter.
//
// This package contains:
//   - Variables and shared storage cells with kind-based mutability
//   - An arena of contexts forming lexical scope chains
//   - Expression evaluation, including checked arithmetic and casting
//   - Command execution with break/return propagation
//   - The function call convention
//   - Builtin dispatch and the native function registry (iterators)
//   - A typed handle table for sub-VM scopes
//
// A Runtime owns all state. It is not safe for concurrent use; callers that
// share one across goroutines must serialize access.
package vm
