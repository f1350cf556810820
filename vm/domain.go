package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/avm2/vm/abc"
	"github.com/chazu/avm2/vm/heap"
)

// Domain is a namespace of class definitions and globals. The system
// domain holds the builtins; each loaded program lives in an application
// domain whose parent is the system domain. Definitions in a parent take
// precedence over a child's.
//
// Classes are materialised lazily: a definition becomes a ClassObject the
// first time something names it.
type Domain struct {
	vm      *VM
	parent  *Domain
	defs    map[QName]*Class
	order   []QName
	classes map[QName]*ClassObject
	loading map[QName]bool
	pending map[QName]*ClassObject // built, static initialiser running
	global  *GlobalObject
	scope   *Scope
	assets  map[string]*abc.Asset
}

func newDomain(vm *VM, parent *Domain) *Domain {
	return &Domain{
		vm:      vm,
		parent:  parent,
		defs:    make(map[QName]*Class),
		classes: make(map[QName]*ClassObject),
		loading: make(map[QName]bool),
		pending: make(map[QName]*ClassObject),
		assets:  make(map[string]*abc.Asset),
	}
}

// Parent returns the parent domain, or nil for the system domain.
func (d *Domain) Parent() *Domain { return d.parent }

// Global returns the domain's global object.
func (d *Domain) Global() *GlobalObject { return d.global }

// Define registers a class definition. Redefining a name in the same
// domain is an error.
func (d *Domain) Define(def *Class) error {
	if _, ok := d.defs[def.Name]; ok {
		return verifyErr(def.Name.String(), "Class %s is already defined.", def.Name)
	}
	d.defs[def.Name] = def
	d.order = append(d.order, def.Name)
	return nil
}

// Definition returns the definition of q and the domain that holds it.
func (d *Domain) Definition(q QName) (*Class, *Domain) {
	if d.parent != nil {
		if def, owner := d.parent.Definition(q); def != nil {
			return def, owner
		}
	}
	if def, ok := d.defs[q]; ok {
		return def, d
	}
	return nil, nil
}

// DefinitionNames returns this domain's own definition names in
// registration order.
func (d *Domain) DefinitionNames() []QName { return append([]QName(nil), d.order...) }

// Classes returns the class objects materialised in this domain, sorted by
// name.
func (d *Domain) Classes() []*ClassObject {
	out := make([]*ClassObject, 0, len(d.classes))
	for _, c := range d.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name().String() < out[j].Name().String() })
	return out
}

// ClassFor returns the class object for q, materialising it on first use.
// It returns nil and no error when q is not defined anywhere.
func (d *Domain) ClassFor(a *Activation, q QName) (*ClassObject, error) {
	def, owner := d.Definition(q)
	if def == nil {
		return nil, nil
	}
	if owner != d {
		return owner.ClassFor(a, q)
	}
	if cls, ok := d.classes[q]; ok {
		return cls, nil
	}
	if cls, ok := d.pending[q]; ok {
		return cls, nil
	}
	if d.loading[q] {
		return nil, verifyErr(q.String(), "Superclass cycle detected at %s.", q)
	}
	d.loading[q] = true
	defer delete(d.loading, q)

	var super *ClassObject
	if def.Super != nil {
		s, err := d.FindClass(a, def.Super)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, verifyErr(q.String(), "Superclass %s of %s could not be found.", def.Super, q)
		}
		if s.def.Attrs.Has(ClassFinal) {
			return nil, verifyErr(q.String(), "Class %s cannot extend final class %s.", q, s.Name())
		}
		if s.IsInterface() {
			return nil, verifyErr(q.String(), "Class %s cannot extend interface %s.", q, s.Name())
		}
		super = s
	}

	var ifaces []*ClassObject
	seen := make(map[*ClassObject]bool)
	add := func(i *ClassObject) {
		if !seen[i] {
			seen[i] = true
			ifaces = append(ifaces, i)
		}
	}
	for _, mn := range def.Interfaces {
		i, err := d.FindClass(a, mn)
		if err != nil {
			return nil, err
		}
		if i == nil {
			return nil, verifyErr(q.String(), "Interface %s of %s could not be found.", mn, q)
		}
		if !i.IsInterface() {
			return nil, verifyErr(q.String(), "%s is not an interface.", i.Name())
		}
		add(i)
		for _, sup := range i.ifaces {
			add(sup)
		}
	}

	cls, err := d.newClassObject(a, def, super, ifaces)
	if err != nil {
		log.Warningf("class %s rejected: %s", q, err)
		return nil, err
	}
	// The class is visible to its own static initialiser through the
	// pending table; it is cached only once the initialiser succeeds.
	d.pending[q] = cls
	defer delete(d.pending, q)
	if def.ClassInit != nil {
		if _, err := a.CallMethod(def.ClassInit, FromObject(cls), nil, cls.scope, cls); err != nil {
			log.Warningf("class %s static initialiser failed: %s", q, err)
			return nil, err
		}
	}
	d.classes[q] = cls
	log.Debugf("materialised class %s", q)
	return cls, nil
}

// FindClass resolves mn against every namespace it names.
func (d *Domain) FindClass(a *Activation, mn *Multiname) (*ClassObject, error) {
	for _, q := range mn.QNames(mn.Local) {
		cls, err := d.ClassFor(a, q)
		if err != nil || cls != nil {
			return cls, err
		}
	}
	return nil, nil
}

// MustClass returns the class named q or an error naming it.
func (d *Domain) MustClass(a *Activation, q QName) (*ClassObject, error) {
	cls, err := d.ClassFor(a, q)
	if err == nil && cls == nil {
		err = fmt.Errorf("vm: class %s is not defined", q)
	}
	return cls, err
}

// Asset returns an embedded asset registered in this domain or a parent.
func (d *Domain) Asset(name string) (*abc.Asset, bool) {
	for k := d; k != nil; k = k.parent {
		if as, ok := k.assets[name]; ok {
			return as, true
		}
	}
	return nil, false
}

// setupGlobal allocates the global object and the base scope. It runs once
// Object exists.
func (d *Domain) setupGlobal(a *Activation) {
	g := &GlobalObject{domain: d, vars: make(map[QName]Value), consts: make(map[QName]bool)}
	a.initObject(g, a.vm.classes.object)
	d.global = g
	d.scope = (*Scope)(nil).Push(g, false)
}

// DefineGlobal creates or replaces a global variable.
func (d *Domain) DefineGlobal(a *Activation, q QName, v Value, isConst bool) {
	a.write(d.global)
	d.global.vars[q] = v
	if isConst {
		d.global.consts[q] = true
	}
}

// DefineFunction installs a native global function.
func (d *Domain) DefineFunction(a *Activation, q QName, fn NativeMethod) {
	f := a.NewFunction(NewNativeMethod(q.Local, fn), d.scope)
	d.DefineGlobal(a, q, FromObject(f), true)
}

// lookupGlobal finds a global variable in this domain or a parent.
func (d *Domain) lookupGlobal(q QName) (Value, *Domain, bool) {
	for k := d; k != nil; k = k.parent {
		if k.global == nil {
			continue
		}
		if v, ok := k.global.vars[q]; ok {
			return v, k, true
		}
	}
	return Undefined, nil, false
}

func (d *Domain) trace(t *heap.Tracer) {
	if d.global != nil {
		t.Mark(d.global)
	}
	for _, c := range d.classes {
		t.Mark(c)
	}
	for _, c := range d.pending {
		t.Mark(c)
	}
}

// ---------------------------------------------------------------------------
// Global object
// ---------------------------------------------------------------------------

// GlobalObject is the outermost scope of a domain. Global variables live
// in its variable table and class definitions resolve through its domain,
// so findproperty reaches both.
type GlobalObject struct {
	ScriptObject
	domain *Domain
	vars   map[QName]Value
	consts map[QName]bool
}

func (g *GlobalObject) Trace(t *heap.Tracer) {
	g.traceBase(t)
	for _, v := range g.vars {
		markValue(t, v)
	}
}

// Domain returns the domain the global object belongs to.
func (g *GlobalObject) Domain() *Domain { return g.domain }

func (g *GlobalObject) getHook(a *Activation, mn *Multiname, local string) (Value, bool, error) {
	for _, q := range mn.QNames(local) {
		if v, _, ok := g.domain.lookupGlobal(q); ok {
			return v, true, nil
		}
		cls, err := g.domain.ClassFor(a, q)
		if err != nil {
			return Undefined, false, err
		}
		if cls != nil {
			return FromObject(cls), true, nil
		}
	}
	return Undefined, false, nil
}

func (g *GlobalObject) setHook(a *Activation, mn *Multiname, local string, v Value) (bool, error) {
	for _, q := range mn.QNames(local) {
		_, owner, ok := g.domain.lookupGlobal(q)
		if !ok {
			if def, _ := g.domain.Definition(q); def != nil {
				return true, a.ReferenceError(1074, "Illegal write to read-only property %s on global.", local)
			}
			continue
		}
		if owner.global.consts[q] {
			return true, a.ReferenceError(1074, "Illegal write to read-only property %s on global.", local)
		}
		a.write(owner.global)
		owner.global.vars[q] = v
		return true, nil
	}
	return false, nil
}

func (g *GlobalObject) hasHook(a *Activation, mn *Multiname, local string) bool {
	for _, q := range mn.QNames(local) {
		if _, _, ok := g.domain.lookupGlobal(q); ok {
			return true
		}
		if def, _ := g.domain.Definition(q); def != nil {
			return true
		}
	}
	return false
}

func (g *GlobalObject) deleteHook(*Activation, *Multiname, string) (bool, bool) {
	return false, false
}
