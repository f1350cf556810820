package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Receiver classification
// ---------------------------------------------------------------------------

// classOf returns the class of v and, for objects, the object itself.
// Primitives resolve against the instance table of their wrapper class.
func (a *Activation) classOf(v Value) (*ClassObject, Object) {
	c := &a.vm.classes
	switch v.kind {
	case KindObject:
		return v.obj.Base().class, v.obj
	case KindString:
		return c.str, nil
	case KindInt:
		return c.int_, nil
	case KindUint:
		return c.uint_, nil
	case KindNumber:
		return c.number, nil
	case KindBool:
		return c.boolean, nil
	}
	return nil, nil
}

func (a *Activation) nullReceiver(v Value) error {
	if v.kind == KindNull {
		return a.TypeError(1009, "Cannot access a property or method of a null object reference.")
	}
	return a.TypeError(1010, "A term is undefined and has no properties.")
}

// protoStart returns the first prototype to search for v.
func protoStart(cls *ClassObject, obj Object) Object {
	if obj != nil {
		return obj.Base().proto
	}
	if cls != nil && cls.prototype != nil {
		return cls.prototype
	}
	return nil
}

func vtableOf(cls *ClassObject, obj Object) *VTable {
	if obj != nil {
		return obj.Base().vtable
	}
	if cls != nil {
		return cls.instance
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

// GetProperty reads mn from recv.
func (a *Activation) GetProperty(recv Value, mn *Multiname) (Value, error) {
	return a.getProperty(recv, mn, mn.Local)
}

// Get reads the public property name from recv.
func (a *Activation) Get(recv Value, name string) (Value, error) {
	return a.getProperty(recv, NewMultiname(name), name)
}

func (a *Activation) getProperty(recv Value, mn *Multiname, local string) (Value, error) {
	if recv.IsNullish() {
		return Undefined, a.nullReceiver(recv)
	}
	cls, obj := a.classOf(recv)
	if vt := vtableOf(cls, obj); vt != nil {
		if _, p, ok := vt.find(mn, local); ok {
			return a.readTrait(recv, obj, vt, p)
		}
	}
	if obj != nil {
		if h, ok := obj.(propertyHook); ok {
			v, found, err := h.getHook(a, mn, local)
			if err != nil || found {
				return v, err
			}
		}
		if dyn := obj.Base().dyn; dyn != nil && mn.HasPublic() {
			if v, ok := dyn.Get(PublicName(local)); ok {
				return v, nil
			}
		}
	}
	if mn.HasPublic() {
		for p := protoStart(cls, obj); p != nil; p = p.Base().proto {
			if dyn := p.Base().dyn; dyn != nil {
				if v, ok := dyn.Get(PublicName(local)); ok {
					return v, nil
				}
			}
		}
	}
	if obj == nil || obj.Base().dyn == nil {
		return Undefined, a.ReferenceError(1069, "Property %s not found on %s and there is no default value.",
			local, a.describe(recv))
	}
	return Undefined, nil
}

func (a *Activation) readTrait(recv Value, obj Object, vt *VTable, p Property) (Value, error) {
	switch p.Kind {
	case PropSlot, PropConst:
		if obj == nil {
			return Undefined, nil
		}
		return obj.Base().Slot(p.Slot), nil
	case PropMethod:
		return FromObject(a.bindMethod(vt.methods[p.Disp], recv, vt.defining[p.Disp])), nil
	}
	if p.Get < 0 {
		return Undefined, a.ReferenceError(1077, "Illegal read of write-only property on %s.", a.describe(recv))
	}
	def := vt.defining[p.Get]
	return a.CallMethod(vt.methods[p.Get], recv, nil, scopeOfClass(def), def)
}

func scopeOfClass(c *ClassObject) *Scope {
	if c == nil {
		return nil
	}
	return c.scope
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

// SetProperty writes v to mn on recv.
func (a *Activation) SetProperty(recv Value, mn *Multiname, v Value) error {
	return a.setProperty(recv, mn, mn.Local, v, false)
}

// Set writes the public property name on recv.
func (a *Activation) Set(recv Value, name string, v Value) error {
	return a.setProperty(recv, NewMultiname(name), name, v, false)
}

// InitProperty is SetProperty that may also initialise constants.
func (a *Activation) InitProperty(recv Value, mn *Multiname, v Value) error {
	return a.setProperty(recv, mn, mn.Local, v, true)
}

func (a *Activation) setProperty(recv Value, mn *Multiname, local string, v Value, init bool) error {
	if recv.IsNullish() {
		return a.nullReceiver(recv)
	}
	cls, obj := a.classOf(recv)
	if vt := vtableOf(cls, obj); vt != nil {
		if _, p, ok := vt.find(mn, local); ok {
			switch p.Kind {
			case PropConst:
				if !init {
					return a.ReferenceError(1074, "Illegal write to read-only property %s on %s.", local, a.describe(recv))
				}
				fallthrough
			case PropSlot:
				if obj == nil {
					return a.ReferenceError(1056, "Cannot create property %s on %s.", local, a.describe(recv))
				}
				return a.writeSlot(obj, p.Slot, v)
			case PropMethod:
				return a.ReferenceError(1037, "Cannot assign to a method %s on %s.", local, a.describe(recv))
			}
			if p.Set < 0 {
				return a.ReferenceError(1074, "Illegal write to read-only property %s on %s.", local, a.describe(recv))
			}
			def := vt.defining[p.Set]
			_, err := a.CallMethod(vt.methods[p.Set], recv, []Value{v}, scopeOfClass(def), def)
			return err
		}
	}
	if obj == nil {
		return a.ReferenceError(1056, "Cannot create property %s on %s.", local, a.describe(recv))
	}
	if h, ok := obj.(propertyHook); ok {
		handled, err := h.setHook(a, mn, local, v)
		if err != nil || handled {
			return err
		}
	}
	b := obj.Base()
	if b.dyn == nil || !mn.HasPublic() {
		return a.ReferenceError(1056, "Cannot create property %s on %s.", local, a.describe(recv))
	}
	a.write(obj)
	b.dyn.Set(PublicName(local), v)
	return nil
}

// writeSlot stores v in slot i of obj after coercing it to the slot's
// declared type.
func (a *Activation) writeSlot(obj Object, i int, v Value) error {
	b := obj.Base()
	if i < 0 || i >= len(b.slots) {
		return verifyErr(a.describe(FromObject(obj)), "slot %d out of range", i+1)
	}
	if typ := b.vtable.slotType(i); typ != nil && typ.name != nil {
		d := a.domain
		if b.class != nil {
			d = b.class.domain
		}
		cls, err := typ.Resolve(a, d)
		if err != nil {
			return err
		}
		if v, err = a.coerceTo(v, cls); err != nil {
			return err
		}
	}
	a.write(obj)
	b.slots[i] = v
	return nil
}

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

// CallProperty calls the method mn on recv.
func (a *Activation) CallProperty(recv Value, mn *Multiname, args []Value) (Value, error) {
	return a.callProperty(recv, mn, mn.Local, args)
}

// Invoke calls the public method name on recv.
func (a *Activation) Invoke(recv Value, name string, args ...Value) (Value, error) {
	return a.callProperty(recv, NewMultiname(name), name, args)
}

func (a *Activation) callProperty(recv Value, mn *Multiname, local string, args []Value) (Value, error) {
	if recv.IsNullish() {
		return Undefined, a.nullReceiver(recv)
	}
	cls, obj := a.classOf(recv)
	if vt := vtableOf(cls, obj); vt != nil {
		if _, p, ok := vt.find(mn, local); ok && p.Kind == PropMethod {
			def := vt.defining[p.Disp]
			return a.CallMethod(vt.methods[p.Disp], recv, args, scopeOfClass(def), def)
		}
	}
	fn, err := a.getProperty(recv, mn, local)
	if err != nil {
		return Undefined, err
	}
	if !isCallable(fn) {
		return Undefined, a.TypeError(1006, "%s is not a function.", local)
	}
	return a.Call(fn, recv, args)
}

// callMethodDisp implements callmethod: dispatch by id on the receiver's
// table.
func (a *Activation) callMethodDisp(recv Value, disp int, args []Value) (Value, error) {
	if recv.IsNullish() {
		return Undefined, a.nullReceiver(recv)
	}
	cls, obj := a.classOf(recv)
	vt := vtableOf(cls, obj)
	if vt == nil || vt.Method(disp) == nil {
		return Undefined, verifyErr(a.describe(recv), "dispatch id %d out of range", disp)
	}
	def := vt.defining[disp]
	return a.CallMethod(vt.methods[disp], recv, args, scopeOfClass(def), def)
}

// ---------------------------------------------------------------------------
// Super
// ---------------------------------------------------------------------------

func (a *Activation) superTable() (*VTable, error) {
	if a.class == nil || a.class.super == nil {
		return nil, verifyErr(a.methodName(), "super used outside a subclass method")
	}
	return a.class.super.instance, nil
}

func (a *Activation) getSuper(recv Value, mn *Multiname, local string) (Value, error) {
	if recv.IsNullish() {
		return Undefined, a.nullReceiver(recv)
	}
	vt, err := a.superTable()
	if err != nil {
		return Undefined, err
	}
	_, obj := a.classOf(recv)
	if _, p, ok := vt.find(mn, local); ok {
		return a.readTrait(recv, obj, vt, p)
	}
	return a.getProperty(recv, mn, local)
}

func (a *Activation) setSuper(recv Value, mn *Multiname, local string, v Value) error {
	if recv.IsNullish() {
		return a.nullReceiver(recv)
	}
	vt, err := a.superTable()
	if err != nil {
		return err
	}
	if _, p, ok := vt.find(mn, local); ok && p.Kind == PropVirtual && p.Set >= 0 {
		def := vt.defining[p.Set]
		_, err := a.CallMethod(vt.methods[p.Set], recv, []Value{v}, scopeOfClass(def), def)
		return err
	}
	return a.setProperty(recv, mn, local, v, false)
}

func (a *Activation) callSuper(recv Value, mn *Multiname, local string, args []Value) (Value, error) {
	if recv.IsNullish() {
		return Undefined, a.nullReceiver(recv)
	}
	vt, err := a.superTable()
	if err != nil {
		return Undefined, err
	}
	_, p, ok := vt.find(mn, local)
	if !ok || p.Kind != PropMethod {
		return Undefined, a.ReferenceError(1070, "Method %s not found on %s", local, a.class.super.Name())
	}
	def := vt.defining[p.Disp]
	return a.CallMethod(vt.methods[p.Disp], recv, args, scopeOfClass(def), def)
}

// ---------------------------------------------------------------------------
// Has / delete
// ---------------------------------------------------------------------------

// HasProperty reports whether mn resolves on recv, including the prototype
// chain.
func (a *Activation) HasProperty(recv Value, mn *Multiname) bool {
	return a.hasProperty(recv, mn, mn.Local, true)
}

func (a *Activation) hasProperty(recv Value, mn *Multiname, local string, protos bool) bool {
	if recv.IsNullish() {
		return false
	}
	cls, obj := a.classOf(recv)
	if vt := vtableOf(cls, obj); vt != nil {
		if _, _, ok := vt.find(mn, local); ok {
			return true
		}
	}
	if obj != nil {
		if h, ok := obj.(propertyHook); ok && h.hasHook(a, mn, local) {
			return true
		}
		if dyn := obj.Base().dyn; dyn != nil && mn.HasPublic() && dyn.Has(PublicName(local)) {
			return true
		}
	}
	if protos && mn.HasPublic() {
		for p := protoStart(cls, obj); p != nil; p = p.Base().proto {
			if dyn := p.Base().dyn; dyn != nil && dyn.Has(PublicName(local)) {
				return true
			}
		}
	}
	return false
}

// HasOwnProperty reports whether name is a trait or own dynamic property.
func (a *Activation) HasOwnProperty(recv Value, name string) bool {
	return a.hasProperty(recv, NewMultiname(name), name, false)
}

// DeleteProperty removes a dynamic property. Fixed traits cannot be
// deleted.
func (a *Activation) DeleteProperty(recv Value, mn *Multiname) (bool, error) {
	return a.deleteProperty(recv, mn, mn.Local)
}

func (a *Activation) deleteProperty(recv Value, mn *Multiname, local string) (bool, error) {
	if recv.IsNullish() {
		return false, a.nullReceiver(recv)
	}
	cls, obj := a.classOf(recv)
	if vt := vtableOf(cls, obj); vt != nil {
		if _, _, ok := vt.find(mn, local); ok {
			return false, nil
		}
	}
	if obj == nil {
		return true, nil
	}
	if h, ok := obj.(propertyHook); ok {
		if handled, deleted := h.deleteHook(a, mn, local); handled {
			return deleted, nil
		}
	}
	b := obj.Base()
	if b.dyn == nil || !mn.HasPublic() {
		return false, nil
	}
	a.write(obj)
	b.dyn.Delete(PublicName(local))
	return true, nil
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// IsType reports whether v is an instance of cls. A nil class is "*" and
// matches everything. Numeric classes test the value, not the storage.
func (a *Activation) IsType(v Value, cls *ClassObject) bool {
	if cls == nil {
		return true
	}
	c := &a.vm.classes
	switch cls {
	case c.object:
		return !v.IsNullish()
	case c.number:
		return v.IsNumeric()
	case c.int_:
		if !v.IsNumeric() {
			return false
		}
		f := v.Float()
		return f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32
	case c.uint_:
		if !v.IsNumeric() {
			return false
		}
		f := v.Float()
		return f == math.Trunc(f) && f >= 0 && f <= math.MaxUint32
	case c.str:
		return v.kind == KindString
	case c.boolean:
		return v.kind == KindBool
	}
	if v.kind != KindObject {
		return false
	}
	own := v.obj.Base().class
	return own != nil && own.IsSubclassOf(cls)
}

// coerceTo converts v to the declared type cls, raising TypeError #1034
// when an object of the wrong class is assigned.
func (a *Activation) coerceTo(v Value, cls *ClassObject) (Value, error) {
	if cls == nil {
		return v, nil
	}
	c := &a.vm.classes
	switch cls {
	case c.int_:
		i, err := a.ToInt32(v)
		return Int(i), err
	case c.uint_:
		u, err := a.ToUint32(v)
		return Uint(u), err
	case c.number:
		f, err := a.ToNumber(v)
		return Number(f), err
	case c.boolean:
		return Bool(ToBoolean(v)), nil
	case c.str:
		if v.IsNullish() {
			return Null, nil
		}
		s, err := a.ToString(v)
		return String(s), err
	case c.object:
		if v.IsUndefined() {
			return Null, nil
		}
		return v, nil
	}
	if v.IsNullish() {
		return Null, nil
	}
	if a.IsType(v, cls) {
		return v, nil
	}
	return Undefined, a.TypeError(1034, "Type Coercion failed: cannot convert %s to %s.", a.describeValue(v), cls.Name())
}

// describeValue renders a value the way coercion messages do.
func (a *Activation) describeValue(v Value) string {
	if v.kind == KindObject {
		if cls, ok := v.obj.(*ClassObject); ok {
			return "[class " + cls.Name().Local + "]"
		}
		return "[object " + a.describeLocal(v) + "]"
	}
	return PrimitiveToString(v)
}

func (a *Activation) describeLocal(v Value) string {
	if c := v.obj.Base().class; c != nil {
		return c.Name().Local
	}
	return "Object"
}

// InstanceOf implements the instanceof operator: the prototype chain of v
// must contain the prototype of typ.
func (a *Activation) InstanceOf(v Value, typ Value) (bool, error) {
	var target Object
	switch t := typ.AsObject().(type) {
	case *ClassObject:
		if t.IsInterface() {
			return a.IsType(v, t), nil
		}
		target = t.prototype
	case *FunctionObject:
		p, _ := t.dyn.Get(PublicName("prototype"))
		target = p.AsObject()
	default:
		return false, a.TypeError(1040, "The right-hand side of instanceof must be a class or function.")
	}
	if target == nil {
		return false, nil
	}
	cls, obj := a.classOf(v)
	for p := protoStart(cls, obj); p != nil; p = p.Base().proto {
		if p == target {
			return true, nil
		}
	}
	return false, nil
}

// typeOperand resolves the class operand of istypelate and astypelate.
func (a *Activation) typeOperand(t Value) (*ClassObject, error) {
	cls, ok := t.AsObject().(*ClassObject)
	if !ok {
		return nil, a.TypeError(1041, "The right-hand side of operator must be a class.")
	}
	return cls, nil
}
