package heap

// Weak refers to a cell without keeping it alive. Upgrade fails once the
// cell has been reclaimed, even if its slot has since been reused.
type Weak struct {
	index uint32
	gen   uint32
}

// NewWeak returns a weak handle to obj. Handles to unallocated values never
// upgrade.
func NewWeak(obj Traceable) Weak {
	hdr := obj.GCHeader()
	return Weak{index: hdr.index, gen: hdr.gen}
}

// IsZero reports whether w was never bound.
func (w Weak) IsZero() bool { return w.index == 0 }

// Upgrade returns the target of w if it is still allocated.
func (h *Heap) Upgrade(w Weak) (Traceable, bool) {
	if w.index == 0 || int(w.index) >= len(h.cells) {
		return nil, false
	}
	s := h.cells[w.index]
	if s.obj == nil || s.gen != w.gen {
		return nil, false
	}
	return s.obj, true
}

// Static wraps a value that holds no heap references, such as an OS thread
// handle, a channel endpoint or a mutex. The tracer never looks inside it,
// which is what lets cross-thread primitives live in heap objects.
type Static[T any] struct {
	v T
}

// NewStatic wraps v.
func NewStatic[T any](v T) Static[T] { return Static[T]{v: v} }

// Get returns the wrapped value.
func (s Static[T]) Get() T { return s.v }
