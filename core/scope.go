package core

import "github.com/ajkachnic/kal/backend"

type shadowed struct {
	name  string
	slot  backend.Slot
	found bool
}

// Scope maps variable names to stack slots inside one function body.
// Bindings are pushed and popped in LIFO order; popping restores whatever
// the name meant before.
type Scope struct {
	slots map[string]backend.Slot
	saved []shadowed
}

func NewScope() *Scope {
	return &Scope{slots: map[string]backend.Slot{}}
}

func (s *Scope) Push(name string, slot backend.Slot) {
	old, found := s.slots[name]
	s.saved = append(s.saved, shadowed{name: name, slot: old, found: found})
	s.slots[name] = slot
}

func (s *Scope) Pop() {
	last := s.saved[len(s.saved)-1]
	s.saved = s.saved[:len(s.saved)-1]
	if last.found {
		s.slots[last.name] = last.slot
	} else {
		delete(s.slots, last.name)
	}
}

func (s *Scope) Lookup(name string) (backend.Slot, bool) {
	slot, ok := s.slots[name]
	return slot, ok
}
