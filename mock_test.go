package regalloc

import "fmt"

// Following mock types are used for testing.
type (
	// mockFunction implements Function.
	mockFunction struct {
		numVRegs    int
		blocks      []*mockBlock
		insts       []*mockInstr
		slotSizes   [NumRegClasses]uint32
		namedByLast bool
	}

	// mockBlock implements Block.
	mockBlock struct {
		id           int
		_entry       bool
		first, last  int
		preds, succs []*mockBlock
		params       []VReg
		instrs       []*mockInstr
	}

	// mockInstr implements Instr.
	mockInstr struct {
		index    int
		operands []Operand
		clobbers []PReg
		branch   bool
		ret      bool
		call     bool
		isMove   bool
		src, dst VReg
	}
)

func newMockFunction(numVRegs int, blocks ...*mockBlock) *mockFunction {
	f := &mockFunction{numVRegs: numVRegs, blocks: blocks}
	idx := 0
	for _, b := range blocks {
		b.first = idx
		for _, ins := range b.instrs {
			ins.index = idx
			f.insts = append(f.insts, ins)
			idx++
		}
		b.last = idx - 1
	}
	for c := RegClass(0); c < NumRegClasses; c++ {
		f.slotSizes[c] = 1
	}
	return f
}

func newMockBlock(id int, instrs ...*mockInstr) *mockBlock {
	return &mockBlock{id: id, instrs: instrs}
}

func newMockInstr() *mockInstr {
	return &mockInstr{}
}

func (m *mockBlock) entry() *mockBlock {
	m._entry = true
	return m
}

func (m *mockBlock) blockParam(vs ...VReg) *mockBlock {
	m.params = append(m.params, vs...)
	return m
}

func (m *mockBlock) addPred(b *mockBlock) {
	m.preds = append(m.preds, b)
	b.succs = append(b.succs, m)
}

func (m *mockInstr) ops(ops ...Operand) *mockInstr {
	m.operands = append(m.operands, ops...)
	return m
}

func (m *mockInstr) asBranch() *mockInstr {
	m.branch = true
	return m
}

func (m *mockInstr) asRet() *mockInstr {
	m.ret = true
	return m
}

func (m *mockInstr) asCall(clobbers ...PReg) *mockInstr {
	m.call = true
	m.clobbers = clobbers
	return m
}

func (m *mockInstr) asMove(src, dst VReg) *mockInstr {
	m.isMove, m.src, m.dst = true, src, dst
	m.operands = []Operand{
		MakeOperand(src, RegClassInt, OperandUse, OperandBefore, PolicyReg),
		MakeOperand(dst, RegClassInt, OperandDef, OperandAfter, PolicyReg),
	}
	return m
}

func (m *mockFunction) NumVRegs() int { return m.numVRegs }
func (m *mockFunction) NumInsts() int { return len(m.insts) }

func (m *mockFunction) Blocks() []Block {
	out := make([]Block, len(m.blocks))
	for i, b := range m.blocks {
		out[i] = b
	}
	return out
}

func (m *mockFunction) EntryBlock() Block {
	for _, b := range m.blocks {
		if b._entry {
			return b
		}
	}
	return m.blocks[0]
}

func (m *mockFunction) BlockInsns(b Block) (int, int) {
	mb := b.(*mockBlock)
	return mb.first, mb.last
}

func (m *mockFunction) BlockPreds(b Block) []Block {
	mb := b.(*mockBlock)
	out := make([]Block, len(mb.preds))
	for i, p := range mb.preds {
		out[i] = p
	}
	return out
}

func (m *mockFunction) BlockSuccs(b Block) []Block {
	mb := b.(*mockBlock)
	out := make([]Block, len(mb.succs))
	for i, s := range mb.succs {
		out[i] = s
	}
	return out
}

func (m *mockFunction) BlockParams(b Block) []VReg { return b.(*mockBlock).params }

func (m *mockFunction) InstOperands(i int) []Operand { return m.insts[i].operands }
func (m *mockFunction) InstClobbers(i int) []PReg    { return m.insts[i].clobbers }
func (m *mockFunction) IsBranch(i int) bool          { return m.insts[i].branch }
func (m *mockFunction) IsRet(i int) bool             { return m.insts[i].ret }
func (m *mockFunction) IsCall(i int) bool            { return m.insts[i].call }

func (m *mockFunction) IsMove(i int) (VReg, VReg, bool) {
	ins := m.insts[i]
	return ins.src, ins.dst, ins.isMove
}

func (m *mockFunction) SpillSlotSize(class RegClass) uint32 { return m.slotSizes[class] }
func (m *mockFunction) MultiSpillslotNamedByLastSlot() bool { return m.namedByLast }

func (m *mockBlock) ID() int     { return m.id }
func (m *mockBlock) Entry() bool { return m._entry }

func (m *mockInstr) InstIndex() int { return m.index }

// String implements fmt.Stringer for debugging.
func (m *mockInstr) String() string {
	return fmt.Sprintf("mockInstr{index=%d, operands=%v}", m.index, m.operands)
}

// Operand shorthands for tests; everything is RegClassInt unless a test
// builds its own.
func defReg(v VReg) Operand {
	return MakeOperand(v, RegClassInt, OperandDef, OperandAfter, PolicyReg)
}

func defAny(v VReg) Operand {
	return MakeOperand(v, RegClassInt, OperandDef, OperandAfter, PolicyAny)
}

func useReg(v VReg) Operand {
	return MakeOperand(v, RegClassInt, OperandUse, OperandBefore, PolicyReg)
}

func useAny(v VReg) Operand {
	return MakeOperand(v, RegClassInt, OperandUse, OperandBefore, PolicyAny)
}

func defFixed(v VReg, p PReg) Operand {
	return MakeFixedOperand(v, RegClassInt, OperandDef, OperandAfter, p)
}

func useFixed(v VReg, p PReg) Operand {
	return MakeFixedOperand(v, RegClassInt, OperandUse, OperandBefore, p)
}

func defReuse(v VReg, reuseIdx int) Operand {
	return MakeReuseOperand(v, RegClassInt, OperandAfter, reuseIdx)
}

func intReg(n uint8) PReg { return MakePReg(n, RegClassInt) }

// testMachineEnv builds a machine with n allocatable integer registers
// (int0..int{n-1}) and int14 reserved as the scratch register.
func testMachineEnv(n int) *MachineEnv {
	me := &MachineEnv{}
	for i := 0; i < n; i++ {
		me.RegsByClass[RegClassInt] = append(me.RegsByClass[RegClassInt], intReg(uint8(i)))
	}
	for c := RegClass(0); c < NumRegClasses; c++ {
		me.ScratchByClass[c] = MakePReg(14, c)
	}
	return me
}

// moveEdits filters out's edit stream down to the Move edits.
func moveEdits(out *Output) []Edit {
	var moves []Edit
	for _, ed := range out.Edits {
		if ed.Kind == EditMove {
			moves = append(moves, ed)
		}
	}
	return moves
}
