package regalloc

import "fmt"

// Allocate runs the full pipeline over f: liveness and live-range
// construction, hot-code detection, bundle merging, priority-driven
// allocation with eviction and splitting, spill-slot packing, and move
// insertion/resolution. On success it returns the per-operand allocations,
// the sorted edit stream, and the number of spill slots used; on failure the
// function is unchanged and the error says why.
func Allocate(f Function, menv *MachineEnv, opts Options) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = newInternalError(fmt.Sprintf("%v", r), "panic during allocation")
		}
	}()

	if err := validateSSA(f); err != nil {
		return nil, err
	}
	if ValidateRPO {
		if err := validateRPOOrder(f); err != nil {
			return nil, err
		}
	}

	e := newEnv(f, menv, opts)
	if err := e.computeLiveness(); err != nil {
		return nil, err
	}
	e.computeHotCode()
	e.mergeVRegBundles()
	e.queueBundles()

	for {
		idx, ok := e.queue.pop()
		if !ok {
			break
		}
		if err := e.processBundle(idx); err != nil {
			return nil, err
		}
	}
	e.retrySpilledBundles()
	numSlots := e.allocateSpillSlots()

	if err := e.insertMoves(); err != nil {
		return nil, err
	}

	out = &Output{
		Edits:         e.edits,
		InstAllocs:    e.instAllocs,
		NumSpillSlots: numSlots,
		StackMaps:     e.computeStackmaps(),
		Stats:         e.stats,
	}
	if e.opts.Validate {
		if err := e.validateOutput(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// validateSSA rejects malformed input up front: a vreg defined more than
// once (by an instruction or a block parameter), or an operand referencing a
// vreg outside 0..NumVRegs()-1.
func validateSSA(f Function) error {
	defined := make([]bool, f.NumVRegs())
	markDef := func(v VReg, what string) error {
		if int(v) >= len(defined) {
			return newSSAError("%s defines out-of-range vreg %s", what, v)
		}
		if defined[v] {
			return newSSAError("vreg %s defined more than once (%s)", v, what)
		}
		defined[v] = true
		return nil
	}

	for _, b := range f.Blocks() {
		for _, v := range f.BlockParams(b) {
			if err := markDef(v, fmt.Sprintf("block %d parameter", b.ID())); err != nil {
				return err
			}
		}
	}
	for i := 0; i < f.NumInsts(); i++ {
		for _, op := range f.InstOperands(i) {
			if int(op.VReg()) >= len(defined) {
				return newSSAError("instruction %d references out-of-range vreg %s", i, op.VReg())
			}
			if op.Kind() == OperandDef {
				if err := markDef(op.VReg(), fmt.Sprintf("instruction %d", i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// validateRPOOrder checks that block IDs form a valid reverse-postorder
// numbering: along every non-back edge discovered by a DFS from the entry,
// the successor's ID must exceed the predecessor's. The hot-code pass's
// backedge test relies on this property of the numbering.
func validateRPOOrder(f Function) error {
	n := len(f.Blocks())
	const (
		white = iota
		gray
		black
	)
	state := make([]uint8, n)

	type frame struct {
		b    Block
		next int
	}
	stack := []frame{{b: f.EntryBlock()}}
	state[f.EntryBlock().ID()] = gray
	for len(stack) > 0 {
		fr := &stack[len(stack)-1]
		succs := f.BlockSuccs(fr.b)
		if fr.next >= len(succs) {
			state[fr.b.ID()] = black
			stack = stack[:len(stack)-1]
			continue
		}
		s := succs[fr.next]
		fr.next++
		if state[s.ID()] == gray {
			continue // back edge
		}
		if s.ID() <= fr.b.ID() {
			return newSSAError("block IDs are not a reverse postorder: non-back edge %d -> %d", fr.b.ID(), s.ID())
		}
		if state[s.ID()] == white {
			state[s.ID()] = gray
			stack = append(stack, frame{b: s})
		}
	}
	return nil
}

// validateOutput runs the cheap invariant checks against the finished
// output: operand policies are satisfied, the edit stream is sorted by
// (point, priority), and no move is a no-op.
func (e *Env) validateOutput(out *Output) error {
	f := e.f
	for i := 0; i < f.NumInsts(); i++ {
		ops := f.InstOperands(i)
		for slot, op := range ops {
			a := out.InstAllocs[i][slot]
			if e.isDemoted(i, slot) {
				// The multi-fixed cleanup rewrote this operand's policy;
				// its value reaches the demanded preg via a MultiFixedReg
				// move instead.
				continue
			}
			switch op.PolicyKind() {
			case PolicyFixedReg:
				if !a.IsReg() || a.Reg != op.FixedReg() {
					return newInternalError("", "instruction %d operand %d requires %s but got %s", i, slot, op.FixedReg(), a)
				}
			case PolicyReg:
				if !a.IsReg() {
					return newInternalError("", "instruction %d operand %d requires a register but got %s", i, slot, a)
				}
			case PolicyReuse:
				if other := out.InstAllocs[i][op.ReuseIdx()]; a != other {
					return newInternalError("", "instruction %d operand %d reuses operand %d but got %s vs %s", i, slot, op.ReuseIdx(), a, other)
				}
			}
		}
	}

	for k := 1; k < len(out.Edits); k++ {
		prev, cur := &out.Edits[k-1], &out.Edits[k]
		if cur.Point < prev.Point || (cur.Point == prev.Point && cur.Priority < prev.Priority) {
			return newInternalError("", "edits out of order at index %d: %s then %s", k, prev, cur)
		}
	}
	for k := range out.Edits {
		ed := &out.Edits[k]
		if ed.Kind == EditMove && ed.MoveFrom == ed.MoveTo {
			return newInternalError("", "no-op move in edit stream: %s", ed)
		}
	}
	return nil
}
