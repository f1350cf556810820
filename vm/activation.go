package vm

import (
	"github.com/chazu/avm2/vm/heap"
)

// scopeEntry is one entry of an activation's local scope stack.
type scopeEntry struct {
	object Object
	with   bool
}

// Activation is one call frame. It carries the VM, the heap mutation token
// of the current top-level execution, the receiver and arguments, the
// register file, the operand stack, the local scope stack and the captured
// outer scope chain. Native methods receive an Activation too and use it to
// allocate, raise errors and call back into script code.
type Activation struct {
	vm     *VM
	mc     *heap.Mutation
	domain *Domain
	method *Method
	class  *ClassObject // class whose trait table supplied the method
	this   Value
	args   []Value
	locals []Value
	stack  []Value
	scopes []scopeEntry
	outer  *Scope
	depth  int
	pc     int
}

// VM returns the virtual machine executing this frame.
func (a *Activation) VM() *VM { return a.vm }

// Mutation returns the heap mutation token of the current execution.
func (a *Activation) Mutation() *heap.Mutation { return a.mc }

// Domain returns the domain names are resolved in.
func (a *Activation) Domain() *Domain { return a.domain }

// This returns the receiver.
func (a *Activation) This() Value { return a.this }

// Method returns the executing method, or nil for a host frame.
func (a *Activation) Method() *Method { return a.method }

// Depth returns the call depth of this frame.
func (a *Activation) Depth() int { return a.depth }

func (a *Activation) methodName() string {
	name := "<anonymous>"
	if a.method != nil && a.method.Name != "" {
		name = a.method.Name
	}
	if a.class != nil {
		return a.class.Name().String() + "/" + name
	}
	return name
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// CallMethod invokes m with receiver this. outer is the scope chain the
// body closes over and class the class that supplied m (used by super).
// Native and bytecode methods take the same path.
func (a *Activation) CallMethod(m *Method, this Value, args []Value, outer *Scope, class *ClassObject) (Value, error) {
	d := m.domain
	if d == nil {
		d = a.domain
	}
	child := &Activation{
		vm:     a.vm,
		mc:     a.mc,
		domain: d,
		method: m,
		class:  class,
		this:   this,
		args:   args,
		outer:  outer,
		depth:  a.depth + 1,
	}
	if m.Native != nil {
		return m.Native(child, this, args)
	}
	if child.depth > a.vm.opts.MaxCallDepth {
		return Undefined, a.PlainError(1023, "Stack overflow occurred.")
	}
	return child.runScripted()
}

func (a *Activation) runScripted() (Value, error) {
	m := a.method
	className := ""
	if a.class != nil {
		className = a.class.Name().String()
	}
	prog, err := m.Program(className)
	if err != nil {
		return Undefined, err
	}

	required := m.RequiredParams()
	if len(a.args) < required || (len(a.args) > len(m.Params) && !m.NeedRest && !m.NeedArgs) {
		return Undefined, a.ArgumentError(1063, "Argument count mismatch on %s. Expected %d, got %d.",
			a.methodName(), required, len(a.args))
	}

	n := m.body.LocalCount
	if need := len(m.Params) + 2; n < need {
		n = need
	}
	a.locals = make([]Value, n)
	a.locals[0] = a.this
	m.prepareTypes()
	for i, p := range m.Params {
		v := p.Default
		if i < len(a.args) {
			v = a.args[i]
		}
		if p.Type != nil {
			cls, err := m.paramTypes[i].Resolve(a, a.domain)
			if err != nil {
				return Undefined, err
			}
			if v, err = a.coerceTo(v, cls); err != nil {
				return Undefined, err
			}
		}
		a.locals[i+1] = v
	}
	switch {
	case m.NeedRest:
		rest := []Value(nil)
		if len(a.args) > len(m.Params) {
			rest = a.args[len(m.Params):]
		}
		a.locals[len(m.Params)+1] = FromObject(a.NewArray(rest))
	case m.NeedArgs:
		a.locals[len(m.Params)+1] = FromObject(a.NewArray(a.args))
	}
	a.stack = make([]Value, 0, m.body.MaxStack)

	ret, err := a.interpret(prog)
	if err != nil {
		return Undefined, err
	}
	if m.ReturnType != nil {
		cls, err := m.returnType.Resolve(a, a.domain)
		if err != nil {
			return Undefined, err
		}
		if m.returnType.void {
			return Undefined, nil
		}
		return a.coerceTo(ret, cls)
	}
	return ret, nil
}

// Call invokes a callable value: a function object or a class used as a
// conversion function.
func (a *Activation) Call(fn Value, this Value, args []Value) (Value, error) {
	switch f := fn.AsObject().(type) {
	case *FunctionObject:
		if f.bound {
			this = f.this
		} else if this.IsNullish() {
			this = FromObject(a.domain.global)
		}
		return a.CallMethod(f.method, this, args, f.scope, f.class)
	case *ClassObject:
		if f.def.Call != nil {
			return a.CallMethod(f.def.Call, FromObject(f), args, f.scope, f)
		}
		if len(args) != 1 {
			return Undefined, a.ArgumentError(1112, "Argument count mismatch on class coercion. Expected 1, got %d.", len(args))
		}
		return a.coerceTo(args[0], f)
	}
	return Undefined, a.TypeError(1006, "value is not a function.")
}

// Construct creates an instance of cls: the nearest native allocator
// builds the object, slots receive their defaults, the instance
// initialiser runs, and display-node instances are announced to the host.
func (a *Activation) Construct(cls *ClassObject, args []Value) (Value, error) {
	if cls.IsInterface() {
		return Undefined, a.TypeError(1115, "%s is not a constructor.", cls.Name())
	}
	if cls.def.Attrs.Has(classPrimitive) {
		return a.CallMethod(cls.def.Call, FromObject(cls), args, cls.scope, cls)
	}
	var obj Object
	if alloc := cls.allocator(); alloc != nil {
		o, err := alloc(a, cls)
		if err != nil {
			return Undefined, err
		}
		obj = o
	} else {
		obj = &ScriptObject{}
	}
	if !obj.GCHeader().Allocated() {
		a.initObject(obj, cls)
	}
	v := FromObject(obj)
	if err := a.runInit(cls, v, args); err != nil {
		return Undefined, err
	}
	if hook := a.vm.opts.OnConstruct; hook != nil && cls.isDisplayNode() {
		hook(obj)
	}
	return v, nil
}

// runInit runs the nearest instance initialiser of cls on this.
func (a *Activation) runInit(cls *ClassObject, this Value, args []Value) error {
	for k := cls; k != nil; k = k.super {
		if m := k.def.Init; m != nil {
			_, err := a.CallMethod(m, this, args, k.scope, k)
			return err
		}
	}
	return nil
}

// ConstructValue implements the construct instruction: classes are
// instantiated and plain functions are run against a fresh object whose
// prototype is the function's prototype property.
func (a *Activation) ConstructValue(v Value, args []Value) (Value, error) {
	switch c := v.AsObject().(type) {
	case *ClassObject:
		return a.Construct(c, args)
	case *FunctionObject:
		if c.method.IsNative() || c.bound {
			break
		}
		obj := a.NewObject()
		if p, ok := c.dyn.Get(PublicName("prototype")); ok && p.IsObject() {
			obj.proto = p.obj
		}
		r, err := a.CallMethod(c.method, FromObject(obj), args, c.scope, c.class)
		if err != nil {
			return Undefined, err
		}
		if r.IsObject() {
			return r, nil
		}
		return FromObject(obj), nil
	}
	return Undefined, a.TypeError(1007, "Instantiation attempted on a non-constructor.")
}

// ---------------------------------------------------------------------------
// Operand stack helpers
// ---------------------------------------------------------------------------

func (a *Activation) push(v Value) { a.stack = append(a.stack, v) }

func (a *Activation) pop() Value {
	n := len(a.stack) - 1
	if n < 0 {
		return Undefined
	}
	v := a.stack[n]
	a.stack = a.stack[:n]
	return v
}

func (a *Activation) peek() Value {
	if len(a.stack) == 0 {
		return Undefined
	}
	return a.stack[len(a.stack)-1]
}

// popN removes and returns the top n values in push order.
func (a *Activation) popN(n int) []Value {
	if n <= 0 {
		return nil
	}
	if n > len(a.stack) {
		n = len(a.stack)
	}
	out := make([]Value, n)
	copy(out, a.stack[len(a.stack)-n:])
	a.stack = a.stack[:len(a.stack)-n]
	return out
}

// scopeChain returns the outer chain extended with the local scope stack,
// for closures created in this frame.
func (a *Activation) scopeChain() *Scope {
	s := a.outer
	for _, e := range a.scopes {
		s = s.Push(e.object, e.with)
	}
	return s
}
