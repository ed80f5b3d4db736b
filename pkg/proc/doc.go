// Package proc is a low-level package that provides the building blocks
// used to manipulate the process we are debugging.
//
// proc implements:
//   - the process state machine and stop events
//   - software breakpoint bookkeeping and code patching
//   - ELF symbol resolution
//   - disassembly of raw memory
//
// The ptrace backend that drives a real process lives in proc/native.
package proc
