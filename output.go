package regalloc

import "fmt"

// AllocationKind distinguishes the three possible outcomes for an operand.
type AllocationKind uint8

const (
	AllocationNone AllocationKind = iota
	AllocationReg
	AllocationStack
)

// Allocation is the concrete result of allocating one operand or live
// range: either nothing (unallocated, never reported to a caller), a
// physical register, or a stack slot.
type Allocation struct {
	Kind AllocationKind
	Reg  PReg
	Slot SpillSlotIndex
}

// AllocationNoneVal is the zero Allocation.
var AllocationNoneVal = Allocation{Kind: AllocationNone}

// AllocReg builds a register Allocation.
func AllocReg(r PReg) Allocation { return Allocation{Kind: AllocationReg, Reg: r} }

// AllocStack builds a stack-slot Allocation.
func AllocStack(s SpillSlotIndex) Allocation { return Allocation{Kind: AllocationStack, Slot: s} }

// IsReg reports whether this is a register allocation.
func (a Allocation) IsReg() bool { return a.Kind == AllocationReg }

// IsStack reports whether this is a stack allocation.
func (a Allocation) IsStack() bool { return a.Kind == AllocationStack }

// String implements fmt.Stringer.
func (a Allocation) String() string {
	switch a.Kind {
	case AllocationReg:
		return a.Reg.String()
	case AllocationStack:
		return fmt.Sprintf("stack%d", a.Slot)
	default:
		return "none"
	}
}

// EditPriority orders edits that land on the same ProgPoint. The numeric
// order below is significant: in-edge fixups apply first, then the block's
// parameter record, then intra-block moves; multi-fixed and reused-input
// copies run logically just before their instruction executes, and out-edge
// moves go after the branch has read its operands.
type EditPriority uint8

const (
	PriorityInEdgeMoves EditPriority = iota
	PriorityBlockParam
	PriorityRegular
	PriorityMultiFixedReg
	PriorityReusedInput
	PriorityOutEdgeMoves
)

// EditKind distinguishes the two edit payload shapes.
type EditKind uint8

const (
	EditMove EditKind = iota
	EditBlockParams
)

// Edit is one entry of the allocator's output edit stream: either a move
// between two Allocations, or (at a block entry, for a checker's benefit) a
// record of the block's parameter vregs and their allocations.
type Edit struct {
	Point    ProgPoint
	Priority EditPriority
	Kind     EditKind

	// Valid when Kind == EditMove.
	MoveFrom, MoveTo Allocation
	MoveClass        RegClass

	// Valid when Kind == EditBlockParams.
	BlockParamVRegs  []VReg
	BlockParamAllocs []Allocation
}

// String implements fmt.Stringer, mostly for test failure messages.
func (e Edit) String() string {
	switch e.Kind {
	case EditMove:
		return fmt.Sprintf("%s: move %s -> %s", e.Point, e.MoveFrom, e.MoveTo)
	default:
		return fmt.Sprintf("%s: blockparams %v = %v", e.Point, e.BlockParamVRegs, e.BlockParamAllocs)
	}
}

// Stats reports simple allocator statistics, useful for regression-testing
// quality (e.g. "did this change increase spill count").
type Stats struct {
	NumSpilledBundles int
	NumSplits         int
	NumEvictions      int
	NumMoves          int
	NumReloads        int
	NumSpillStores    int
}

// Output is everything the allocator produces for one Function.
type Output struct {
	// Edits is sorted by (Point, Priority).
	Edits []Edit
	// InstAllocs[i] holds the allocation for each operand returned by
	// Function.InstOperands(i), in the same order.
	InstAllocs [][]Allocation
	// NumSpillSlots is a tight upper bound on distinct stack offsets
	// appearing in Edits/InstAllocs.
	NumSpillSlots int
	// StackMaps is reserved for GC root reporting; see stackmap.go.
	StackMaps []StackMap
	Stats     Stats
}
