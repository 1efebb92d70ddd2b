package regalloc

// This file defines the collaborator interfaces the allocator consumes. A
// caller (an SSA-based compiler backend) implements Function over its own IR;
// the allocator never depends on any concrete IR representation.

type (
	// Function is the top-level collaborator: a CFG of Blocks in a function
	// to allocate registers for.
	Function interface {
		// NumVRegs returns the number of virtual registers, which are
		// numbered 0..NumVRegs()-1.
		NumVRegs() int
		// NumInsts returns the number of instructions, numbered
		// 0..NumInsts()-1 across the whole function (not per-block).
		NumInsts() int
		// Blocks returns every block, in a stable order consistent with
		// block IDs (Block.ID()); the allocator uses this both to iterate
		// in ID order and to size per-block arrays.
		Blocks() []Block
		// EntryBlock returns the function's single entry block.
		EntryBlock() Block
		// BlockInsns returns the first and last instruction index
		// (inclusive) belonging to block b. A block with no instructions
		// returns (i, i-1) for some i.
		BlockInsns(b Block) (first, last int)
		// BlockPreds returns the predecessor blocks of b.
		BlockPreds(b Block) []Block
		// BlockSuccs returns the successor blocks of b.
		BlockSuccs(b Block) []Block
		// BlockParams returns the block-parameter vregs of b, in the order
		// branch instructions targeting b must supply their arguments.
		BlockParams(b Block) []VReg

		// InstOperands returns the operand descriptors of instruction i, in
		// a stable order; Allocation results are reported back in this same
		// order via Output.InstAllocs.
		InstOperands(i int) []Operand
		// InstClobbers returns the physical registers clobbered by
		// instruction i (e.g. caller-saved registers at a call).
		InstClobbers(i int) []PReg

		// IsBranch reports whether instruction i is a control-flow
		// transfer out of its block. When true, its trailing operands are
		// assumed laid out as one contiguous group of Use operands per
		// successor, in successor order (the blockparam arguments).
		IsBranch(i int) bool
		// IsRet reports whether instruction i is a function return.
		IsRet(i int) bool
		// IsCall reports whether instruction i is a call (its clobber set
		// is expected to cover the caller-saved registers).
		IsCall(i int) bool
		// IsMove reports whether instruction i is a pure register-to-
		// register move, and if so the source and destination vregs.
		IsMove(i int) (src, dst VReg, ok bool)

		// SpillSlotSize returns the size, in slot units, required to spill
		// a vreg of the given class; must be a power of two.
		SpillSlotSize(class RegClass) uint32
		// MultiSpillslotNamedByLastSlot reports which sub-slot of a
		// multi-unit spill slot group should be reported as its identity
		// (see spillslot.go); true = last, false = first.
		MultiSpillslotNamedByLastSlot() bool
	}

	// Block is a basic block. IDs must form a valid reverse-postorder
	// numbering of the CFG (required by the loop-detection backedge test in
	// hotcode.go); see ValidateRPO in debug.go.
	Block interface {
		// ID returns this block's unique index, 0..len(Function.Blocks())-1.
		ID() int
		// Entry reports whether this is the function's entry block.
		Entry() bool
	}

	// Instr is opaque to the allocator beyond what Function reports about
	// it by index; this interface exists only so callers have a named type
	// to hang instruction values off of in their own code, and is not used
	// by the allocator directly (all queries go through Function by index).
	Instr interface {
		InstIndex() int
	}
)

// OperandKind distinguishes a Def from a Use.
type OperandKind uint8

const (
	OperandDef OperandKind = iota
	OperandUse
)

// OperandPos is the nominal position of an operand within its instruction,
// before resolution to an exact ProgPoint (see liveness.go, which promotes
// some Before uses to After around reused-input defs and branches).
type OperandPos uint8

const (
	OperandBefore OperandPos = iota
	OperandAfter
	OperandBoth
)

// OperandPolicyKind is the allocation constraint an operand imposes.
type OperandPolicyKind uint8

const (
	// PolicyAny allows either a register or a stack slot.
	PolicyAny OperandPolicyKind = iota
	// PolicyReg requires some register of the operand's class.
	PolicyReg
	// PolicyFixedReg requires a specific physical register.
	PolicyFixedReg
	// PolicyReuse requires the same allocation as another operand (by
	// index) of the same instruction; only valid on a Def.
	PolicyReuse
)

// Operand packs a virtual register, its class, its def/use kind, its
// nominal position, and its allocation policy into one word, so operand
// slices stay flat and cheap to copy.
type Operand uint64

const (
	operandVRegBits   = 24
	operandClassBits  = 4
	operandKindBits   = 1
	operandPosBits    = 2
	operandPolBits    = 3
	operandPolArgBits = 16

	operandVRegShift   = 0
	operandClassShift  = operandVRegShift + operandVRegBits
	operandKindShift   = operandClassShift + operandClassBits
	operandPosShift    = operandKindShift + operandKindBits
	operandPolShift    = operandPosShift + operandPosBits
	operandPolArgShift = operandPolShift + operandPolBits

	operandVRegMask   = uint64(1)<<operandVRegBits - 1
	operandClassMask  = uint64(1)<<operandClassBits - 1
	operandKindMask   = uint64(1)<<operandKindBits - 1
	operandPosMask    = uint64(1)<<operandPosBits - 1
	operandPolMask    = uint64(1)<<operandPolBits - 1
	operandPolArgMask = uint64(1)<<operandPolArgBits - 1
)

// MakeOperand builds a plain (non-fixed, non-reuse) operand.
func MakeOperand(v VReg, class RegClass, kind OperandKind, pos OperandPos, policy OperandPolicyKind) Operand {
	return makeOperandRaw(v, class, kind, pos, policy, 0)
}

// MakeFixedOperand builds an operand constrained to a specific physical
// register.
func MakeFixedOperand(v VReg, class RegClass, kind OperandKind, pos OperandPos, preg PReg) Operand {
	return makeOperandRaw(v, class, kind, pos, PolicyFixedReg, uint64(preg))
}

// MakeReuseOperand builds a Def operand that must receive the same
// allocation as use-operand index reuseIdx of the same instruction.
func MakeReuseOperand(v VReg, class RegClass, pos OperandPos, reuseIdx int) Operand {
	return makeOperandRaw(v, class, OperandDef, pos, PolicyReuse, uint64(reuseIdx))
}

func makeOperandRaw(v VReg, class RegClass, kind OperandKind, pos OperandPos, policy OperandPolicyKind, arg uint64) Operand {
	return Operand(
		uint64(v)&operandVRegMask<<operandVRegShift |
			uint64(class)&operandClassMask<<operandClassShift |
			uint64(kind)&operandKindMask<<operandKindShift |
			uint64(pos)&operandPosMask<<operandPosShift |
			uint64(policy)&operandPolMask<<operandPolShift |
			arg&operandPolArgMask<<operandPolArgShift,
	)
}

// VReg returns the operand's virtual register.
func (o Operand) VReg() VReg {
	return VReg(uint64(o) >> operandVRegShift & operandVRegMask)
}

// Class returns the operand's register class.
func (o Operand) Class() RegClass {
	return RegClass(uint64(o) >> operandClassShift & operandClassMask)
}

// Kind returns Def or Use.
func (o Operand) Kind() OperandKind {
	return OperandKind(uint64(o) >> operandKindShift & operandKindMask)
}

// Pos returns the nominal Before/After/Both position.
func (o Operand) Pos() OperandPos {
	return OperandPos(uint64(o) >> operandPosShift & operandPosMask)
}

// PolicyKind returns the allocation constraint kind.
func (o Operand) PolicyKind() OperandPolicyKind {
	return OperandPolicyKind(uint64(o) >> operandPolShift & operandPolMask)
}

// FixedReg returns the fixed physical register; only meaningful when
// PolicyKind() == PolicyFixedReg.
func (o Operand) FixedReg() PReg {
	return PReg(uint64(o) >> operandPolArgShift & operandPolArgMask)
}

// ReuseIdx returns the reused input's operand index; only meaningful when
// PolicyKind() == PolicyReuse.
func (o Operand) ReuseIdx() int {
	return int(uint64(o) >> operandPolArgShift & operandPolArgMask)
}

// MachineEnv describes the target machine's physical register file.
type MachineEnv struct {
	// RegsByClass lists the physical registers allocatable for each
	// class. The allocator probes them in a rotated order (see
	// candidatesFor in priority.go), so list position is not a preference.
	RegsByClass [NumRegClasses][]PReg
	// ScratchByClass is the per-class register reserved for breaking
	// parallel-move cycles; it must not appear in RegsByClass.
	ScratchByClass [NumRegClasses]PReg
}
