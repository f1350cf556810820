// Package heap implements the managed heap shared by every object a VM
// allocates: an arena of indexed cells, an incremental tri-colour mark-sweep
// collector, a write barrier driven by a scoped mutation capability, and
// weak handles that observe reclamation without keeping a cell alive.
//
// A Heap is owned by exactly one goroutine. Workers each get their own.
package heap

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("avm2.heap")

// ErrMutationActive is returned when collection is requested while a
// mutation scope is open.
var ErrMutationActive = errors.New("heap: collection requested inside a mutation scope")

// ---------------------------------------------------------------------------
// Cells
// ---------------------------------------------------------------------------

type color uint8

const (
	white color = iota // not yet reached this cycle
	gray               // reached, children not yet scanned
	black              // reached and scanned
)

// Header is embedded in every heap-managed value. The zero Header describes
// a value that has not been allocated.
type Header struct {
	index uint32 // 1-based arena slot, 0 when unallocated
	gen   uint32
	color color
}

// GCHeader returns the header itself so embedding types satisfy Traceable.
func (h *Header) GCHeader() *Header { return h }

// Allocated reports whether the value lives in a heap.
func (h *Header) Allocated() bool { return h.index != 0 }

// Traceable is implemented by every value stored in a heap cell. Trace must
// report each heap reference the value holds; fields that are not heap
// references (including anything wrapped in Static) are simply not reported.
type Traceable interface {
	GCHeader() *Header
	Trace(t *Tracer)
}

// Finalizer is implemented by values that own resources outside the heap,
// such as renderer textures. Finalize runs once, when the sweep reclaims
// the value.
type Finalizer interface {
	Finalize()
}

type slot struct {
	obj Traceable
	gen uint32
}

// Stats summarises heap activity.
type Stats struct {
	Allocated   uint64 // cells ever allocated
	Freed       uint64 // cells reclaimed
	Live        int    // cells currently allocated
	Cycles      uint64 // completed collection cycles
	BarrierHits uint64 // writes that re-greyed a black cell
	Writes      uint64 // writes recorded through a Mutation
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseMarking
)

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Heap is an arena of cells plus the collector state that governs them.
type Heap struct {
	cells []slot // cells[0] is never used
	free  []uint32

	roots  []func(*Tracer)
	pinned map[uint32]int

	phase phase
	grays []Traceable

	active *Mutation
	stats  Stats
	debt   int
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{
		cells:  make([]slot, 1, 64),
		pinned: make(map[uint32]int),
	}
}

// AddRootSource registers a function that marks a set of roots at the start
// of every cycle.
func (h *Heap) AddRootSource(fn func(*Tracer)) {
	h.roots = append(h.roots, fn)
}

// Pin keeps obj alive until a matching Unpin. Pins nest.
func (h *Heap) Pin(obj Traceable) {
	hdr := obj.GCHeader()
	if hdr.index == 0 {
		return
	}
	h.pinned[hdr.index]++
}

// Unpin releases one Pin of obj.
func (h *Heap) Unpin(obj Traceable) {
	hdr := obj.GCHeader()
	if n := h.pinned[hdr.index]; n > 1 {
		h.pinned[hdr.index] = n - 1
	} else {
		delete(h.pinned, hdr.index)
	}
}

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.Live = len(h.cells) - 1 - len(h.free)
	return s
}

// Debt returns the number of allocations since the last completed cycle.
func (h *Heap) Debt() int { return h.debt }

// Contains reports whether obj currently occupies a cell of this heap.
func (h *Heap) Contains(obj Traceable) bool {
	hdr := obj.GCHeader()
	if hdr.index == 0 || int(hdr.index) >= len(h.cells) {
		return false
	}
	s := h.cells[hdr.index]
	return s.obj == obj && s.gen == hdr.gen
}

// Allocate places obj in a cell. It must be called with the active mutation
// token. Objects allocated while a cycle is marking are born grey: they
// survive the cycle that observed their birth, and their children are traced
// even when a constructor fills them without going through Write.
func (h *Heap) Allocate(mc *Mutation, obj Traceable) {
	mc.check(h)
	hdr := obj.GCHeader()
	if hdr.index != 0 {
		panic(fmt.Sprintf("heap: %T allocated twice", obj))
	}
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.cells = append(h.cells, slot{})
		idx = uint32(len(h.cells) - 1)
	}
	s := &h.cells[idx]
	s.gen++
	s.obj = obj
	hdr.index = idx
	hdr.gen = s.gen
	if h.phase == phaseMarking {
		hdr.color = gray
		h.grays = append(h.grays, obj)
	} else {
		hdr.color = white
	}
	h.stats.Allocated++
	h.debt++
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collecting reports whether a marking cycle is in progress.
func (h *Heap) Collecting() bool { return h.phase == phaseMarking }

// Step performs up to budget units of marking work, starting a new cycle if
// none is in progress. When marking completes the heap is swept in the same
// call and done is true.
func (h *Heap) Step(budget int) (done bool, err error) {
	if h.active != nil {
		return false, ErrMutationActive
	}
	if h.phase == phaseIdle {
		h.beginCycle()
	}
	t := &Tracer{h: h}
	for budget > 0 && len(h.grays) > 0 {
		n := len(h.grays) - 1
		obj := h.grays[n]
		h.grays = h.grays[:n]
		hdr := obj.GCHeader()
		if hdr.color == black {
			continue
		}
		hdr.color = black
		obj.Trace(t)
		budget--
	}
	if len(h.grays) > 0 {
		return false, nil
	}
	// Roots may have changed since the cycle began; rescan them before
	// declaring marking finished.
	h.markRoots(t)
	for len(h.grays) > 0 {
		n := len(h.grays) - 1
		obj := h.grays[n]
		h.grays = h.grays[:n]
		hdr := obj.GCHeader()
		if hdr.color == black {
			continue
		}
		hdr.color = black
		obj.Trace(t)
	}
	h.sweep()
	return true, nil
}

// Collect runs a complete cycle, finishing any cycle already in progress
// first.
func (h *Heap) Collect() error {
	if h.active != nil {
		return ErrMutationActive
	}
	if h.phase == phaseMarking {
		if _, err := h.Step(int(^uint(0) >> 1)); err != nil {
			return err
		}
	}
	_, err := h.Step(int(^uint(0) >> 1))
	return err
}

func (h *Heap) beginCycle() {
	for i := 1; i < len(h.cells); i++ {
		if obj := h.cells[i].obj; obj != nil {
			obj.GCHeader().color = white
		}
	}
	h.phase = phaseMarking
	h.grays = h.grays[:0]
	h.markRoots(&Tracer{h: h})
}

func (h *Heap) markRoots(t *Tracer) {
	for _, fn := range h.roots {
		fn(t)
	}
	for idx := range h.pinned {
		if int(idx) < len(h.cells) {
			t.Mark(h.cells[idx].obj)
		}
	}
}

func (h *Heap) sweep() {
	var freed int
	for i := 1; i < len(h.cells); i++ {
		s := &h.cells[i]
		if s.obj == nil {
			continue
		}
		hdr := s.obj.GCHeader()
		if hdr.color != white {
			hdr.color = white
			continue
		}
		if f, ok := s.obj.(Finalizer); ok {
			f.Finalize()
		}
		hdr.index = 0
		s.obj = nil
		s.gen++
		h.free = append(h.free, uint32(i))
		freed++
	}
	h.stats.Freed += uint64(freed)
	h.stats.Cycles++
	h.phase = phaseIdle
	h.debt = 0
	log.Debugf("cycle %d: freed %d cells, %d live", h.stats.Cycles, freed, len(h.cells)-1-len(h.free))
}

// ---------------------------------------------------------------------------
// Tracer
// ---------------------------------------------------------------------------

// Tracer is handed to Traceable.Trace during marking.
type Tracer struct {
	h *Heap
}

// Mark reports a reference to obj. Nil and unallocated values are ignored.
func (t *Tracer) Mark(obj Traceable) {
	if obj == nil {
		return
	}
	hdr := obj.GCHeader()
	if hdr.index == 0 || hdr.color != white {
		return
	}
	hdr.color = gray
	t.h.grays = append(t.h.grays, obj)
}
