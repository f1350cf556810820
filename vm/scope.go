package vm

import "github.com/chazu/avm2/vm/heap"

// Scope is one link of an immutable scope chain. Closures and class
// methods capture the chain by reference; pushing returns a new link.
type Scope struct {
	parent *Scope
	object Object
	with   bool
}

// Push returns a chain with obj innermost.
func (s *Scope) Push(obj Object, with bool) *Scope {
	return &Scope{parent: s, object: obj, with: with}
}

// Object returns the scope object of this link.
func (s *Scope) Object() Object { return s.object }

// Parent returns the enclosing link.
func (s *Scope) Parent() *Scope { return s.parent }

// Depth returns the number of links.
func (s *Scope) Depth() int {
	n := 0
	for ; s != nil; s = s.parent {
		n++
	}
	return n
}

// Outermost returns the global end of the chain.
func (s *Scope) Outermost() *Scope {
	if s == nil {
		return nil
	}
	for s.parent != nil {
		s = s.parent
	}
	return s
}

func (s *Scope) trace(t *heap.Tracer) {
	for ; s != nil; s = s.parent {
		if s.object != nil {
			t.Mark(s.object)
		}
	}
}
