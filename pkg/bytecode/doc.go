// Package bytecode defines the instruction set executed by the host
// interpreter and compiled by the JIT.
//
// The encoding is fixed width: every instruction is an (opcode, oparg) byte
// pair. Opargs wider than one byte are spelled with EXTENDED_ARG prefixes,
// each contributing eight more high bits to the oparg of the instruction it
// precedes. Jump targets are byte offsets and always point at the first
// prefix of the target instruction.
//
// # Components
//
//   - Opcodes: the opcode table with per-opcode stack effects and control
//     flow flags
//
//   - Decode: turns raw bytes into a slice of Instr, folding EXTENDED_ARG
//     prefixes into the instruction they extend
//
//   - Assembler: emits instructions against symbolic labels and resolves
//     jumps, growing prefixes until offsets are stable
//
//   - Disassemble: a human-readable listing used by tests, the CLI and the
//     JIT's IL dump
package bytecode
