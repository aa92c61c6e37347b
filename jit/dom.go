package jit

// domTree holds immediate dominators for the blocks reachable from entry,
// computed with the iterative Cooper-Harvey-Kennedy scheme.
type domTree struct {
	idom  map[*Block]*Block
	order map[*Block]int
}

func reversePostorder(f *Function) []*Block {
	entry := f.entry()
	if entry == nil {
		return nil
	}
	seen := map[*Block]bool{}
	var post []*Block
	var walk func(b *Block)
	walk = func(b *Block) {
		seen[b] = true
		for _, succ := range b.successors() {
			if !seen[succ] {
				walk(succ)
			}
		}
		post = append(post, b)
	}
	walk(entry)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

func computeDominators(f *Function) *domTree {
	rpo := reversePostorder(f)
	d := &domTree{idom: map[*Block]*Block{}, order: map[*Block]int{}}
	if len(rpo) == 0 {
		return d
	}
	for i, b := range rpo {
		d.order[b] = i
	}
	preds := f.predecessors()
	entry := rpo[0]
	d.idom[entry] = entry

	intersect := func(a, b *Block) *Block {
		for a != b {
			for d.order[a] > d.order[b] {
				a = d.idom[a]
			}
			for d.order[b] > d.order[a] {
				b = d.idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var idom *Block
			for _, p := range preds[b] {
				if _, done := d.idom[p]; !done {
					continue
				}
				if idom == nil {
					idom = p
				} else {
					idom = intersect(p, idom)
				}
			}
			if idom != nil && d.idom[b] != idom {
				d.idom[b] = idom
				changed = true
			}
		}
	}
	return d
}

func (d *domTree) reachable(b *Block) bool {
	_, ok := d.order[b]
	return ok
}

// dominates reports whether every path from entry to b passes through a.
func (d *domTree) dominates(a, b *Block) bool {
	if !d.reachable(a) || !d.reachable(b) {
		return false
	}
	for {
		if a == b {
			return true
		}
		next := d.idom[b]
		if next == b {
			return false
		}
		b = next
	}
}
