package heap

// Mutation is the capability to write into heap cells. It exists only for the
// duration of a Heap.Mutate call and must not be retained past it.
type Mutation struct {
	h        *Heap
	released bool
	writes   int
}

// Mutate runs fn with the heap's mutation capability. If a scope is already
// open the existing token is reused, so nested entry points compose. The
// token is released when the outermost scope exits, including when fn
// panics.
func (h *Heap) Mutate(fn func(mc *Mutation) error) error {
	if h.active != nil {
		return fn(h.active)
	}
	mc := &Mutation{h: h}
	h.active = mc
	defer func() {
		mc.released = true
		h.active = nil
	}()
	return fn(mc)
}

// Active returns the open mutation token, or nil.
func (h *Heap) Active() *Mutation { return h.active }

// Heap returns the heap this token grants access to.
func (mc *Mutation) Heap() *Heap { return mc.h }

// Writes returns how many writes were recorded through this token.
func (mc *Mutation) Writes() int { return mc.writes }

// Write records that obj is about to be mutated. While a cycle is marking,
// a black cell that is written to is turned grey again so the new references
// it may acquire are scanned before the sweep.
func (mc *Mutation) Write(obj Traceable) {
	mc.check(nil)
	mc.writes++
	mc.h.stats.Writes++
	hdr := obj.GCHeader()
	if hdr.index == 0 || mc.h.phase != phaseMarking || hdr.color != black {
		return
	}
	hdr.color = gray
	mc.h.grays = append(mc.h.grays, obj)
	mc.h.stats.BarrierHits++
}

func (mc *Mutation) check(h *Heap) {
	if mc == nil {
		panic("heap: nil mutation token")
	}
	if mc.released {
		panic("heap: mutation token used after its scope ended")
	}
	if h != nil && mc.h != h {
		panic("heap: mutation token belongs to a different heap")
	}
}
