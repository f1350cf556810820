package vm

import (
	"github.com/chazu/avm2/vm/heap"
)

// ClassObject is the runtime representation of a class. Its embedded base
// is the static side: static traits resolve against it and its class is
// Class. The instance vtable is resolved once, when the class object is
// created, and shared by every instance.
type ClassObject struct {
	ScriptObject
	def       *Class
	domain    *Domain
	super     *ClassObject
	ifaces    []*ClassObject // flattened, including super-interfaces
	instance  *VTable
	prototype *ScriptObject
	scope     *Scope

	protoInstalled bool
}

func (c *ClassObject) Trace(t *heap.Tracer) {
	c.traceBase(t)
	if c.super != nil {
		t.Mark(c.super)
	}
	for _, i := range c.ifaces {
		t.Mark(i)
	}
	if c.prototype != nil {
		t.Mark(c.prototype)
	}
	c.scope.trace(t)
}

// Name returns the class's qualified name.
func (c *ClassObject) Name() QName { return c.def.Name }

// Def returns the class definition.
func (c *ClassObject) Def() *Class { return c.def }

// Domain returns the domain the class was materialised in.
func (c *ClassObject) Domain() *Domain { return c.domain }

// Super returns the superclass, or nil for Object and interfaces.
func (c *ClassObject) Super() *ClassObject { return c.super }

// Interfaces returns every interface the class implements, including
// inherited and super-interfaces.
func (c *ClassObject) Interfaces() []*ClassObject { return c.ifaces }

// InstanceVTable returns the memoized instance trait table. Repeated calls
// return the same table.
func (c *ClassObject) InstanceVTable() *VTable { return c.instance }

// StaticVTable returns the trait table of the class object itself.
func (c *ClassObject) StaticVTable() *VTable { return c.vtable }

// Prototype returns the prototype object shared by instances.
func (c *ClassObject) Prototype() *ScriptObject { return c.prototype }

// IsInterface reports whether the class is an interface.
func (c *ClassObject) IsInterface() bool { return c.def.Attrs.Has(ClassInterface) }

// IsSubclassOf reports whether c is other, inherits from it, or implements
// it.
func (c *ClassObject) IsSubclassOf(other *ClassObject) bool {
	for k := c; k != nil; k = k.super {
		if k == other {
			return true
		}
	}
	if other.IsInterface() {
		for k := c; k != nil; k = k.super {
			for _, i := range k.ifaces {
				if i == other {
					return true
				}
			}
		}
	}
	return false
}

// isDisplayNode reports whether instances are display-tree nodes.
func (c *ClassObject) isDisplayNode() bool {
	for k := c; k != nil; k = k.super {
		if k.def.Attrs.Has(ClassDisplayNode) {
			return true
		}
	}
	return false
}

// allocator returns the nearest native allocator up the chain.
func (c *ClassObject) allocator() Allocator {
	for k := c; k != nil; k = k.super {
		if k.def.Alloc != nil {
			return k.def.Alloc
		}
	}
	return nil
}

// newClassObject builds and allocates the class object for def. The
// instance table is built and interface obligations are checked before
// anything is allocated, so a failing class leaves no trace in the heap.
func (d *Domain) newClassObject(a *Activation, def *Class, super *ClassObject, ifaces []*ClassObject) (*ClassObject, error) {
	cls := &ClassObject{def: def, domain: d, super: super, ifaces: ifaces}
	var superVT *VTable
	if super != nil {
		superVT = super.instance
	}
	vt, err := buildVTable(cls, superVT, def.Instance)
	if err != nil {
		return nil, err
	}
	if !cls.IsInterface() {
		if err := checkInterfaces(cls, vt, ifaces); err != nil {
			return nil, err
		}
	}
	cls.instance = vt

	var classVT *VTable
	if cc := a.vm.classes.class; cc != nil {
		classVT = cc.instance
		cls.class = cc
		cls.proto = cc.prototype
	}
	if cls.vtable, err = buildVTable(cls, classVT, def.Static); err != nil {
		return nil, err
	}
	cls.slots = cls.vtable.defaults()

	proto := &ScriptObject{dyn: NewPropertyMap()}
	if oc := a.vm.classes.object; oc != nil {
		proto.class, proto.vtable = oc, oc.instance
	}
	if super != nil {
		proto.proto = super.prototype
	}
	cls.prototype = proto
	a.alloc(proto)
	a.alloc(cls)
	cls.scope = d.scope.Push(cls, false)
	cls.installPrototype(a)
	return cls, nil
}

// installPrototype places the definition's prototype methods on the
// prototype object once Function exists.
func (c *ClassObject) installPrototype(a *Activation) {
	if c.protoInstalled || a.vm.classes.function == nil {
		return
	}
	c.protoInstalled = true
	a.write(c.prototype)
	for _, t := range c.def.Prototype {
		f := a.NewFunction(t.Method, c.scope)
		f.class = c
		c.prototype.dyn.Set(t.Name, FromObject(f))
	}
	if c.prototype.dyn != nil {
		c.prototype.dyn.Set(PublicName("constructor"), FromObject(c))
	}
}

// finishBootstrap fixes up a class created before Class, Object or
// Function existed.
func (c *ClassObject) finishBootstrap(a *Activation) error {
	a.write(c)
	cc := a.vm.classes.class
	c.class, c.proto = cc, cc.prototype
	vt, err := buildVTable(c, cc.instance, c.def.Static)
	if err != nil {
		return err
	}
	c.vtable = vt
	c.slots = vt.defaults()
	c.scope = c.domain.scope.Push(c, false)
	oc := a.vm.classes.object
	a.write(c.prototype)
	c.prototype.class, c.prototype.vtable = oc, oc.instance
	c.installPrototype(a)
	return nil
}
