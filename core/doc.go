// Package core defines the shared vocabulary of the agent engine: the Turn
// lifecycle and its ReAct execution history, tool invocation records, the
// typed outbound event stream, and the per-turn execution context handed to
// the reasoner.
//
// Everything here is plain data plus small invariant-preserving methods.
// Orchestration lives in the agent and conductor packages; persistence
// lives behind the store package.
package core
