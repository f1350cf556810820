package heap

import (
	"errors"
	"testing"
)

type node struct {
	Header
	name  string
	edges []*node
}

func (n *node) Trace(t *Tracer) {
	for _, e := range n.edges {
		if e != nil {
			t.Mark(e)
		}
	}
}

func alloc(t *testing.T, h *Heap, names ...string) []*node {
	t.Helper()
	var out []*node
	err := h.Mutate(func(mc *Mutation) error {
		for _, name := range names {
			n := &node{name: name}
			h.Allocate(mc, n)
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Reachability
// ---------------------------------------------------------------------------

func TestCollectReclaimsCycle(t *testing.T) {
	h := New()
	var root *node
	h.AddRootSource(func(tr *Tracer) {
		if root != nil {
			tr.Mark(root)
		}
	})

	ns := alloc(t, h, "root", "a", "b")
	root = ns[0]
	a, b := ns[1], ns[2]
	h.Mutate(func(mc *Mutation) error {
		mc.Write(root)
		root.edges = append(root.edges, a)
		mc.Write(a)
		a.edges = append(a.edges, b)
		mc.Write(b)
		b.edges = append(b.edges, a)
		return nil
	})

	wa, wb := NewWeak(a), NewWeak(b)
	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := h.Upgrade(wa); !ok {
		t.Fatal("a collected while reachable")
	}

	h.Mutate(func(mc *Mutation) error {
		mc.Write(root)
		root.edges = nil
		return nil
	})
	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := h.Upgrade(wa); ok {
		t.Error("a survived after its cycle became unreachable")
	}
	if _, ok := h.Upgrade(wb); ok {
		t.Error("b survived after its cycle became unreachable")
	}
	if got := h.Stats().Live; got != 1 {
		t.Errorf("Live = %d, want 1", got)
	}
}

func TestPinKeepsAlive(t *testing.T) {
	h := New()
	n := alloc(t, h, "pinned")[0]
	h.Pin(n)
	h.Collect()
	if !h.Contains(n) {
		t.Fatal("pinned node collected")
	}
	h.Unpin(n)
	h.Collect()
	if h.Contains(n) {
		t.Error("unpinned node survived")
	}
}

func TestWeakDoesNotUpgradeAfterReuse(t *testing.T) {
	h := New()
	n := alloc(t, h, "first")[0]
	w := NewWeak(n)
	h.Collect()
	reused := alloc(t, h, "second")[0]
	if reused.index != w.index {
		t.Fatalf("slot not reused: got %d, want %d", reused.index, w.index)
	}
	if _, ok := h.Upgrade(w); ok {
		t.Error("stale weak handle upgraded to the new occupant")
	}
}

// ---------------------------------------------------------------------------
// Incremental marking and the write barrier
// ---------------------------------------------------------------------------

func TestWriteBarrierRescansBlackCell(t *testing.T) {
	h := New()
	var root *node
	h.AddRootSource(func(tr *Tracer) { tr.Mark(root) })
	ns := alloc(t, h, "root", "filler1", "filler2")
	root = ns[0]
	h.Mutate(func(mc *Mutation) error {
		mc.Write(root)
		root.edges = append(root.edges, ns[1], ns[2])
		return nil
	})

	// Mark only the root so it turns black with its children still grey.
	if done, err := h.Step(1); err != nil || done {
		t.Fatalf("Step = %v, %v; want unfinished", done, err)
	}
	if root.color != black {
		t.Fatalf("root color = %d, want black", root.color)
	}

	// A node born mid-cycle is linked into the already scanned root.
	var late *node
	h.Mutate(func(mc *Mutation) error {
		late = &node{name: "late"}
		h.Allocate(mc, late)
		mc.Write(root)
		root.edges = append(root.edges, late)
		return nil
	})
	if got := h.Stats().BarrierHits; got != 1 {
		t.Errorf("BarrierHits = %d, want 1", got)
	}
	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !h.Contains(late) {
		t.Error("node linked during marking was swept")
	}
}

func TestNodeBornDuringMarkingIsTraced(t *testing.T) {
	h := New()
	ns := alloc(t, h, "holder", "x")
	holder, x := ns[0], ns[1]
	h.Mutate(func(mc *Mutation) error {
		mc.Write(holder)
		holder.edges = []*node{x}
		return nil
	})
	h.Pin(holder)

	// Start a cycle without doing any marking work.
	if done, err := h.Step(0); err != nil || done {
		t.Fatalf("Step(0) = %v, %v; want unfinished", done, err)
	}

	// Move x from the holder into a node whose edges are filled before it
	// is allocated, with no Write on the new node.
	var arr *node
	h.Mutate(func(mc *Mutation) error {
		mc.Write(holder)
		holder.edges = nil
		arr = &node{name: "arr", edges: []*node{x}}
		h.Allocate(mc, arr)
		return nil
	})
	h.Pin(arr)

	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !h.Contains(arr) {
		t.Error("node allocated during marking was swept")
	}
	if !h.Contains(x) {
		t.Error("child of a node allocated during marking was swept")
	}
}

func TestCollectInsideMutationFails(t *testing.T) {
	h := New()
	err := h.Mutate(func(mc *Mutation) error {
		return h.Collect()
	})
	if !errors.Is(err, ErrMutationActive) {
		t.Errorf("err = %v, want ErrMutationActive", err)
	}
}

func TestMutationScopeReleasedOnPanic(t *testing.T) {
	h := New()
	var leaked *Mutation
	func() {
		defer func() { recover() }()
		h.Mutate(func(mc *Mutation) error {
			leaked = mc
			panic("boom")
		})
	}()
	if h.Active() != nil {
		t.Fatal("mutation scope still open after panic")
	}
	defer func() {
		if recover() == nil {
			t.Error("stale token did not panic")
		}
	}()
	leaked.Write(&node{})
}

func TestNestedMutateReusesToken(t *testing.T) {
	h := New()
	h.Mutate(func(outer *Mutation) error {
		return h.Mutate(func(inner *Mutation) error {
			if inner != outer {
				t.Error("nested Mutate opened a second token")
			}
			return nil
		})
	})
}

func TestStaticIsOpaque(t *testing.T) {
	type endpoint struct{ ch chan int }
	s := NewStatic(&endpoint{ch: make(chan int)})
	if s.Get().ch == nil {
		t.Error("Static lost its value")
	}
}

type finalNode struct {
	node
	finalized *int
}

func (f *finalNode) Finalize() { *f.finalized++ }

func TestSweepRunsFinalizerOnce(t *testing.T) {
	h := New()
	count := 0
	var kept *finalNode
	h.AddRootSource(func(tr *Tracer) {
		if kept != nil {
			tr.Mark(kept)
		}
	})
	err := h.Mutate(func(mc *Mutation) error {
		kept = &finalNode{finalized: &count}
		h.Allocate(mc, kept)
		h.Allocate(mc, &finalNode{finalized: &count})
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if count != 1 {
		t.Errorf("finalizers run = %d, want 1", count)
	}
	kept = nil
	h.Collect()
	h.Collect()
	if count != 2 {
		t.Errorf("finalizers run = %d after dropping the root, want 2", count)
	}
}
