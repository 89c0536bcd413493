// Package ast defines the AMVM node model: commands, expressions, values and
// types, plus the program header that selects the numeric casting policy.
//
// Nodes are plain Go values. Interfaces (Command, Expression, Value, Type)
// are closed over the concrete types in this package, except Value, which the
// runtime extends with references and native handles that never reach the
// wire format.
//
// # Equality
//
// Decoding the bytecode of a node yields a node that is reflect.DeepEqual to
// the original, provided the original follows the package conventions:
// command bodies are non-nil slices (possibly empty) and every other list is
// nil when it has no elements.
package ast
