// Package vm implements CubeScript: a small, dynamically-typed,
// command-oriented scripting language meant to be embedded into a host
// application. The package covers the whole language pipeline:
//
//   - string interning (strings.go)
//   - the identifier table of aliases, variables, commands and specials
//     (ident.go, table.go)
//   - the tagged Value union (value.go)
//   - a single-pass recursive-descent parser and bytecode code generator
//     with no intermediate AST (compiler.go)
//   - a switch-dispatched bytecode interpreter with an alias-argument
//     call-frame model (interpreter.go)
//
// and exposes them through State, the embedding-facing façade (state.go).
//
// A host registers native commands and variables on a State, compiles
// script text with Compile, and invokes the result with Call. The core
// never touches a filesystem, a network, or another goroutine: an
// interpreter State is meant to be driven by exactly one goroutine at a
// time, and a host that wants concurrency runs one State per thread.
package vm
