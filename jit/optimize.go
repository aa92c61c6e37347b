package jit

// optimizeFunction runs the pass pipeline for level until nothing changes.
// Level 1 folds constants, forwards stores inside a block, simplifies
// constant branches and drops dead code. Level 2 also promotes stack slots
// that are written once to plain SSA values.
func optimizeFunction(f *Function, level int) {
	if level <= 0 || !f.defined || f.optLevel >= level {
		return
	}
	for changed := true; changed; {
		changed = false
		if level >= 2 {
			changed = promoteSingleStores(f) || changed
		}
		changed = forwardStores(f) || changed
		changed = foldConstants(f) || changed
		changed = simplifyBranches(f) || changed
		changed = removeUnreachable(f) || changed
		changed = eliminateDeadCode(f) || changed
	}
	f.code = nil
	f.optLevel = level
}

func slotUses(f *Function, slot *Instr) (loads, stores []*Instr, other bool) {
	for _, b := range f.blocks {
		for _, ins := range b.instrs {
			for n, arg := range ins.args {
				if arg != value(slot) {
					continue
				}
				switch {
				case ins.op == InsLoad:
					loads = append(loads, ins)
				case ins.op == InsStore && n == 1:
					stores = append(stores, ins)
				default:
					other = true
				}
			}
		}
	}
	return loads, stores, other
}

func promoteSingleStores(f *Function) bool {
	entry := f.entry()
	if entry == nil {
		return false
	}
	dom := computeDominators(f)
	dead := map[*Instr]bool{}
	for _, slot := range entry.instrs {
		if slot.op != InsAlloca {
			continue
		}
		loads, stores, other := slotUses(f, slot)
		if other || len(stores) != 1 {
			continue
		}
		store := stores[0]
		ok := true
		for _, load := range loads {
			if load.block == store.block {
				ok = store.block.index(store) < load.block.index(load)
			} else {
				ok = dom.dominates(store.block, load.block)
			}
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		for _, load := range loads {
			f.replaceUses(load, store.args[0])
			dead[load] = true
		}
		dead[store] = true
		dead[slot] = true
	}
	f.removeInstrs(dead)
	return len(dead) > 0
}

// forwardStores replaces loads with the value last stored to, or loaded
// from, the same slot earlier in the block. Slots never escape, so calls
// cannot clobber them.
func forwardStores(f *Function) bool {
	dead := map[*Instr]bool{}
	for _, b := range f.blocks {
		known := map[*Instr]value{}
		for _, ins := range b.instrs {
			switch ins.op {
			case InsStore:
				known[ins.args[1].(*Instr)] = ins.args[0]
			case InsLoad:
				slot := ins.args[0].(*Instr)
				if v, ok := known[slot]; ok {
					f.replaceUses(ins, v)
					dead[ins] = true
				} else {
					known[slot] = ins
				}
			}
		}
	}
	f.removeInstrs(dead)
	return len(dead) > 0
}

func foldInstr(ins *Instr) (value, bool) {
	switch ins.op {
	case InsFAdd, InsFSub, InsFMul, InsFDiv, InsFCmpLt, InsFCmpNe:
		x, okx := ins.args[0].(Const)
		y, oky := ins.args[1].(Const)
		if !okx || !oky {
			return nil, false
		}
		switch ins.op {
		case InsFAdd:
			return x + y, true
		case InsFSub:
			return x - y, true
		case InsFMul:
			return x * y, true
		case InsFDiv:
			return x / y, true
		case InsFCmpLt:
			// unordered: true when either side is NaN
			return BoolConst(!(x >= y)), true
		default:
			// ordered: false when either side is NaN
			return BoolConst(x < y || x > y), true
		}
	case InsUIToFP:
		if c, ok := ins.args[0].(BoolConst); ok {
			if c {
				return Const(1), true
			}
			return Const(0), true
		}
	case InsPhi:
		if len(ins.args) == 0 {
			return nil, false
		}
		first := ins.args[0]
		for _, arg := range ins.args[1:] {
			if arg != first {
				return nil, false
			}
		}
		if first == value(ins) {
			return nil, false
		}
		return first, true
	}
	return nil, false
}

func foldConstants(f *Function) bool {
	dead := map[*Instr]bool{}
	for _, b := range f.blocks {
		for _, ins := range b.instrs {
			if v, ok := foldInstr(ins); ok {
				f.replaceUses(ins, v)
				dead[ins] = true
			}
		}
	}
	f.removeInstrs(dead)
	return len(dead) > 0
}

// removeIncoming drops the phi entries flowing from pred into b.
func removeIncoming(b, pred *Block) {
	for _, phi := range b.phis() {
		for n := 0; n < len(phi.blocks); {
			if phi.blocks[n] == pred {
				phi.blocks = append(phi.blocks[:n], phi.blocks[n+1:]...)
				phi.args = append(phi.args[:n], phi.args[n+1:]...)
				continue
			}
			n++
		}
	}
}

func simplifyBranches(f *Function) bool {
	changed := false
	for _, b := range f.blocks {
		term := b.terminator()
		if term == nil || term.op != InsCondBr {
			continue
		}
		cond, ok := term.args[0].(BoolConst)
		if !ok {
			continue
		}
		taken, dropped := term.blocks[0], term.blocks[1]
		if !cond {
			taken, dropped = dropped, taken
		}
		if taken != dropped {
			removeIncoming(dropped, b)
		}
		term.op = InsBr
		term.args = nil
		term.blocks = []*Block{taken}
		changed = true
	}
	return changed
}

func removeUnreachable(f *Function) bool {
	reachable := map[*Block]bool{}
	for _, b := range reversePostorder(f) {
		reachable[b] = true
	}
	if len(reachable) == len(f.blocks) {
		return false
	}
	kept := f.blocks[:0]
	var gone []*Block
	for _, b := range f.blocks {
		if reachable[b] {
			kept = append(kept, b)
		} else {
			gone = append(gone, b)
		}
	}
	f.blocks = kept
	for _, b := range gone {
		b.placed = false
		for _, succ := range b.successors() {
			if reachable[succ] {
				removeIncoming(succ, b)
			}
		}
	}
	return true
}

func eliminateDeadCode(f *Function) bool {
	changed := false
	for {
		uses := f.useCounts()
		dead := map[*Instr]bool{}
		for _, b := range f.blocks {
			for _, ins := range b.instrs {
				if ins.op == InsAlloca {
					if loads, _, other := slotUses(f, ins); len(loads) == 0 && !other {
						dead[ins] = true
					}
					continue
				}
				if !ins.hasSideEffects() && uses[ins] == 0 {
					dead[ins] = true
				}
			}
		}
		// stores into a slot nobody reads go with the slot
		for _, b := range f.blocks {
			for _, ins := range b.instrs {
				if ins.op == InsStore && dead[ins.args[1].(*Instr)] {
					dead[ins] = true
				}
			}
		}
		if len(dead) == 0 {
			return changed
		}
		f.removeInstrs(dead)
		changed = true
	}
}
