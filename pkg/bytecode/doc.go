// Package bytecode implements the AMVM wire format: a byte-exact encoder and
// a recursive-descent decoder for the node model in package ast.
//
// A bytecode file is
//
//	<magic 0x08 0x48 0x30> <casting:u8> <command>*
//
// Every node starts with a tag byte. Tags are grouped by category:
//
//   - Types (0x00-0x0F)
//   - Binary operator sub-kinds (0x00-0x0F), only after an ExprBinary tag
//   - Expressions (0x10-0x2F)
//   - Values (0x30-0x4F)
//   - Commands (0x50-0x6F)
//   - Variable kinds (0x01-0x04), only where a kind is expected
//
// # Strings
//
// Identifiers are written as <length><bytes>, where the length counts the
// logical bytes. String values are written as <bytes> 0x00. In both forms a
// literal 0x00 is escaped as 0xFF 0x00 and a literal 0xFF as 0xFF 0xFF, so a
// bare 0x00 always terminates a string value.
//
// # Bodies
//
// Nested command bodies are terminated by 0x00, which is not a command tag.
// The top-level body runs to the end of the stream.
//
// Decode errors are *DecodeError values carrying the offset and the
// offending byte; use errors.Is with the Err* sentinels to classify them.
package bytecode
