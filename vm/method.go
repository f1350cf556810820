package vm

import (
	"errors"
	"sync"

	"github.com/chazu/avm2/vm/abc"
	"github.com/chazu/avm2/vm/heap"
)

// NativeMethod is the signature of every Go-implemented method. this is the
// receiver (a primitive for methods of String, Number and friends) and args
// are the call arguments, uncoerced.
type NativeMethod func(a *Activation, this Value, args []Value) (Value, error)

// Param declares one method parameter.
type Param struct {
	Name     string
	Type     *Multiname // nil is "*"
	Optional bool
	Default  Value
}

// Method is a callable body, native or bytecode. Both kinds dispatch
// through Activation.CallMethod and are indistinguishable to callers.
type Method struct {
	Name       string
	Params     []Param
	ReturnType *Multiname // nil is "*"
	NeedRest   bool
	NeedArgs   bool
	final      bool

	Native NativeMethod

	body   *abc.Body
	img    *image
	domain *Domain

	verifyOnce sync.Once
	program    *abc.Program
	verifyErr  error

	typesReady bool
	paramTypes []LazyClass
	returnType LazyClass
	catchTypes []LazyClass
}

// NewNativeMethod wraps fn.
func NewNativeMethod(name string, fn NativeMethod) *Method {
	return &Method{Name: name, Native: fn}
}

// IsNative reports whether the method is implemented in Go.
func (m *Method) IsNative() bool { return m.Native != nil }

// RequiredParams returns the number of non-optional parameters.
func (m *Method) RequiredParams() int {
	n := 0
	for _, p := range m.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// Program verifies the body the first time it is needed and caches the
// outcome, success or failure.
func (m *Method) Program(class string) (*abc.Program, error) {
	m.verifyOnce.Do(func() {
		if m.body == nil {
			m.verifyErr = &VerificationError{Class: class, Method: m.Name, Offset: -1, Reason: "method has no body"}
			return
		}
		p, err := m.img.file.DecodeBody(m.body)
		if err != nil {
			ve := &VerificationError{Class: class, Method: m.Name, Offset: -1, Reason: err.Error()}
			var ce *abc.CodeError
			if errors.As(err, &ce) {
				ve.Offset, ve.Reason = ce.Offset, ce.Reason
			}
			m.verifyErr = ve
			return
		}
		m.program = p
		m.catchTypes = make([]LazyClass, len(p.Handlers))
		for i, h := range p.Handlers {
			if h.Type != 0 {
				m.catchTypes[i].name = m.img.names[h.Type]
			}
		}
	})
	return m.program, m.verifyErr
}

// prepareTypes sets up the lazy parameter and return types on first call.
// Methods without parameters still carry a return type.
func (m *Method) prepareTypes() {
	if m.typesReady {
		return
	}
	m.typesReady = true
	m.paramTypes = make([]LazyClass, len(m.Params))
	for i, p := range m.Params {
		m.paramTypes[i].name = p.Type
	}
	m.returnType.name = m.ReturnType
}

// ---------------------------------------------------------------------------
// Lazy type references
// ---------------------------------------------------------------------------

// LazyClass is a declared type that is resolved on first use and then
// memoized. A zero LazyClass (or one with a nil name) means "*": any value.
// Resolution of a missing class is an explicit VerificationError; failures
// are not cached so a later definition can still satisfy the name.
type LazyClass struct {
	name  *Multiname
	class *ClassObject
	void  bool
}

// NewLazyClass returns an unresolved reference to name.
func NewLazyClass(name *Multiname) LazyClass { return LazyClass{name: name} }

// Name returns the referenced type name, or nil for "*".
func (l *LazyClass) Name() *Multiname { return l.name }

// Resolved reports whether resolution has already happened.
func (l *LazyClass) Resolved() bool { return l.class != nil || l.name == nil || l.void }

// Resolve returns the class, resolving it in d on first use. A nil class
// with a nil error means any type.
func (l *LazyClass) Resolve(a *Activation, d *Domain) (*ClassObject, error) {
	if l.class != nil || l.name == nil || l.void {
		return l.class, nil
	}
	if l.name.Local == "void" && l.name.HasPublic() {
		l.void = true
		return nil, nil
	}
	cls, err := d.FindClass(a, l.name)
	if err != nil {
		return nil, err
	}
	if cls == nil {
		return nil, verifyErr("", "Class %s could not be found.", l.name)
	}
	l.class = cls
	return cls, nil
}

// ---------------------------------------------------------------------------
// Function objects
// ---------------------------------------------------------------------------

// FunctionObject is a callable value: a closure created by newfunction, a
// method extracted from an object (bound to its receiver), or a native
// function installed on a prototype.
type FunctionObject struct {
	ScriptObject
	method *Method
	scope  *Scope
	class  *ClassObject // defining class, for super inside bound methods
	this   Value
	bound  bool
}

func (f *FunctionObject) Trace(t *heap.Tracer) {
	f.traceBase(t)
	f.scope.trace(t)
	if f.class != nil {
		t.Mark(f.class)
	}
	markValue(t, f.this)
}

// Method returns the wrapped method.
func (f *FunctionObject) Method() *Method { return f.method }

// Bound reports whether the function carries a fixed receiver.
func (f *FunctionObject) Bound() bool { return f.bound }

// NewFunction allocates a function object for m closing over scope.
func (a *Activation) NewFunction(m *Method, scope *Scope) *FunctionObject {
	f := &FunctionObject{method: m, scope: scope}
	a.initObject(f, a.vm.classes.function)
	if !m.IsNative() {
		proto := a.NewObject()
		f.dyn.Set(PublicName("prototype"), FromObject(proto))
	}
	return f
}

// bindMethod returns a method closure over receiver this.
func (a *Activation) bindMethod(m *Method, this Value, class *ClassObject) *FunctionObject {
	f := &FunctionObject{method: m, class: class, this: this, bound: true}
	if class != nil {
		f.scope = class.scope
	}
	a.initObject(f, a.vm.classes.function)
	return f
}

func isCallable(v Value) bool {
	switch v.obj.(type) {
	case *FunctionObject, *ClassObject:
		return v.kind == KindObject
	}
	return false
}
