package vm

import "github.com/chazu/avm2/vm/heap"

// Object is implemented by every heap-allocated script object. All variants
// embed ScriptObject, which carries the state common to every object.
type Object interface {
	heap.Traceable
	Base() *ScriptObject
}

// ScriptObject is the common base of all objects: the class, the resolved
// vtable, fixed slots, the dynamic property bag (nil for sealed classes)
// and the prototype link.
type ScriptObject struct {
	heap.Header
	class  *ClassObject
	vtable *VTable
	slots  []Value
	dyn    *PropertyMap
	proto  Object
}

// Base returns the object itself.
func (o *ScriptObject) Base() *ScriptObject { return o }

func (o *ScriptObject) Trace(t *heap.Tracer) { o.traceBase(t) }

func (o *ScriptObject) traceBase(t *heap.Tracer) {
	if o.class != nil {
		t.Mark(o.class)
	}
	for _, v := range o.slots {
		markValue(t, v)
	}
	if o.dyn != nil {
		o.dyn.trace(t)
	}
	if o.proto != nil {
		t.Mark(o.proto)
	}
}

// Class returns the object's class.
func (o *ScriptObject) Class() *ClassObject { return o.class }

// VTable returns the resolved trait table of the object's class.
func (o *ScriptObject) VTable() *VTable { return o.vtable }

// Proto returns the prototype link.
func (o *ScriptObject) Proto() Object { return o.proto }

// Sealed reports whether dynamic properties are rejected.
func (o *ScriptObject) Sealed() bool { return o.dyn == nil }

// Dynamic returns the dynamic property bag, or nil for sealed objects.
func (o *ScriptObject) Dynamic() *PropertyMap { return o.dyn }

// Slot returns fixed slot i (0-based).
func (o *ScriptObject) Slot(i int) Value {
	if i < 0 || i >= len(o.slots) {
		return Undefined
	}
	return o.slots[i]
}

func markValue(t *heap.Tracer, v Value) {
	if v.kind == KindObject {
		t.Mark(v.obj)
	}
}

// propertyHook lets a variant claim names before the dynamic bag is
// consulted: array indices, XML child names, ByteArray indices and global
// definitions.
type propertyHook interface {
	getHook(a *Activation, mn *Multiname, local string) (Value, bool, error)
	setHook(a *Activation, mn *Multiname, local string, v Value) (bool, error)
	hasHook(a *Activation, mn *Multiname, local string) bool
	deleteHook(a *Activation, mn *Multiname, local string) (handled, deleted bool)
}

// enumerator lets a variant take over for..in enumeration. Cursors are
// 1-based; 0 ends the enumeration.
type enumerator interface {
	enumNext(cursor int) int
	enumName(cursor int) Value
	enumValue(cursor int) Value
}

// ---------------------------------------------------------------------------
// Allocation and initialisation
// ---------------------------------------------------------------------------

// alloc places obj in the heap.
func (a *Activation) alloc(obj Object) {
	a.vm.heap.Allocate(a.mc, obj)
}

// write records a mutation of obj for the write barrier.
func (a *Activation) write(obj Object) {
	if obj != nil {
		a.mc.Write(obj)
	}
}

// initObject fills in the base of a freshly allocated variant for cls and
// places it in the heap. Slots receive their declared defaults.
func (a *Activation) initObject(obj Object, cls *ClassObject) {
	b := obj.Base()
	b.class = cls
	if cls != nil {
		b.vtable = cls.instance
		b.slots = cls.instance.defaults()
		if !cls.def.Attrs.Has(ClassSealed) {
			b.dyn = NewPropertyMap()
		}
		if cls.prototype != nil {
			b.proto = cls.prototype
		}
	}
	a.alloc(obj)
}

// NewObject returns a plain dynamic Object.
func (a *Activation) NewObject() *ScriptObject {
	o := &ScriptObject{}
	a.initObject(o, a.vm.classes.object)
	return o
}

// NewObjectFrom returns a plain Object with the given public properties in
// order.
func (a *Activation) NewObjectFrom(pairs ...any) *ScriptObject {
	o := a.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.dyn.Set(PublicName(pairs[i].(string)), pairs[i+1].(Value))
	}
	return o
}

// setDynamic stores a public dynamic property, bypassing traits.
func (a *Activation) setDynamic(obj Object, name string, v Value) {
	b := obj.Base()
	if b.dyn == nil {
		return
	}
	a.write(obj)
	b.dyn.Set(PublicName(name), v)
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

func (a *Activation) enumNext(o Object, cursor int) int {
	if e, ok := o.(enumerator); ok {
		return e.enumNext(cursor)
	}
	if d := o.Base().dyn; d != nil {
		return d.next(cursor)
	}
	return 0
}

func (a *Activation) enumName(o Object, cursor int) Value {
	if e, ok := o.(enumerator); ok {
		return e.enumName(cursor)
	}
	if d := o.Base().dyn; d != nil {
		if q, _, ok := d.at(cursor); ok {
			return String(q.Local)
		}
	}
	return Undefined
}

func (a *Activation) enumValue(o Object, cursor int) Value {
	if e, ok := o.(enumerator); ok {
		return e.enumValue(cursor)
	}
	if d := o.Base().dyn; d != nil {
		if _, v, ok := d.at(cursor); ok {
			return v
		}
	}
	return Undefined
}
