package vm

import "github.com/chazu/avm2/vm/heap"

// PropertyMap is the dynamic property bag of a non-sealed object. It keeps
// insertion order for enumeration. Deleting a name leaves a tombstone so
// enumeration cursors stay valid, and re-adding a deleted name appends it
// at the end.
type PropertyMap struct {
	index map[QName]int
	keys  []QName
	vals  []Value
	live  []bool
	count int
}

// NewPropertyMap returns an empty bag.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{index: make(map[QName]int)}
}

// Len returns the number of live entries.
func (m *PropertyMap) Len() int { return m.count }

// Get returns the value stored under q.
func (m *PropertyMap) Get(q QName) (Value, bool) {
	if i, ok := m.index[q]; ok {
		return m.vals[i], true
	}
	return Undefined, false
}

// Has reports whether q is present.
func (m *PropertyMap) Has(q QName) bool {
	_, ok := m.index[q]
	return ok
}

// Set stores v under q, updating in place when q is already present.
func (m *PropertyMap) Set(q QName, v Value) {
	if i, ok := m.index[q]; ok {
		m.vals[i] = v
		return
	}
	m.index[q] = len(m.keys)
	m.keys = append(m.keys, q)
	m.vals = append(m.vals, v)
	m.live = append(m.live, true)
	m.count++
}

// Delete removes q and reports whether it was present.
func (m *PropertyMap) Delete(q QName) bool {
	i, ok := m.index[q]
	if !ok {
		return false
	}
	delete(m.index, q)
	m.live[i] = false
	m.vals[i] = Undefined
	m.count--
	if m.count == 0 {
		m.keys, m.vals, m.live = m.keys[:0], m.vals[:0], m.live[:0]
	}
	return true
}

// Range calls fn for each live entry in insertion order until fn returns
// false.
func (m *PropertyMap) Range(fn func(q QName, v Value) bool) {
	for i, k := range m.keys {
		if m.live[i] && !fn(k, m.vals[i]) {
			return
		}
	}
}

// Keys returns the live names in insertion order.
func (m *PropertyMap) Keys() []QName {
	out := make([]QName, 0, m.count)
	m.Range(func(q QName, _ Value) bool {
		out = append(out, q)
		return true
	})
	return out
}

// next returns the 1-based cursor of the first live entry after cursor, or
// 0 when the bag is exhausted.
func (m *PropertyMap) next(cursor int) int {
	for i := cursor; i < len(m.keys); i++ {
		if m.live[i] {
			return i + 1
		}
	}
	return 0
}

func (m *PropertyMap) at(cursor int) (QName, Value, bool) {
	i := cursor - 1
	if i < 0 || i >= len(m.keys) || !m.live[i] {
		return QName{}, Undefined, false
	}
	return m.keys[i], m.vals[i], true
}

func (m *PropertyMap) trace(t *heap.Tracer) {
	for i, v := range m.vals {
		if m.live[i] {
			markValue(t, v)
		}
	}
}
