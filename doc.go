// Package regalloc implements a backtracking register allocator for SSA
// virtual-register code. It takes a function in SSA form (a CFG of basic
// blocks, each a list of instructions whose operands reference virtual
// registers with role/position/policy constraints) plus a description of the
// target machine's physical registers, and produces a concrete allocation
// for every operand, a sorted list of edits (moves, spills, reloads,
// block-parameter transfers) keyed to program points, and the number of
// spill slots used.
//
// The algorithm: liveness analysis over SSA, live-range and bundle
// construction, priority-driven allocation with backtracking (eviction) and
// splitting, spill-slot packing, and move insertion/resolution on control
// flow edges.
//
// References:
//   - https://dl.acm.org/doi/10.1145/3276935 (SSA-based register allocation)
//   - https://pfalcon.github.io/ssabook/latest/book-full.pdf, ch. 9 (liveness)
package regalloc
