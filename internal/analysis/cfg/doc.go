// # Description
//
// Package cfg provides a Control Flow Graph (CFG) view over an instruction stream.
//
// ## Control Flow Graph (CFG)
//
// A CFG is a representation, using graph notation, of all paths that might be traversed
// through a program during its execution. In this package:
//
//   - Each node in the graph is a single instruction, addressed by its index.
//   - The directed edges are normal transfers (fallthrough, jumps, token jumps) and
//     exceptional transfers to handlers.
//
// ## Package Functionality
//
// The main features of this package include:
//
//  1. CFG Construction: use `New` to build the graph of an `instr.Program`.
//  2. Loop detection: `IsLoopHead` reports the targets of back edges, which is where
//     the interpreter counts revisits and widens.
//  3. Rendering: `PrintDot` writes the graph in Graphviz DOT format.
package cfg
