package vm

import (
	"github.com/chazu/avm2/vm/heap"
)

// ErrorObject is an instance of Error or a subclass. The message and name
// live in ordinary slots so scripts can reassign them.
type ErrorObject struct {
	ScriptObject
	id int
}

func (e *ErrorObject) Trace(t *heap.Tracer) { e.traceBase(t) }

// ID returns the numeric error id.
func (e *ErrorObject) ID() int { return e.id }

func (e *ErrorObject) slotString(name string) string {
	if e.vtable == nil {
		return ""
	}
	p, ok := e.vtable.Get(PublicName(name))
	if !ok || (p.Kind != PropSlot && p.Kind != PropConst) {
		return ""
	}
	v := e.Slot(p.Slot)
	if v.IsNullish() {
		return ""
	}
	return PrimitiveToString(v)
}

// Message returns the current message slot.
func (e *ErrorObject) Message() string { return e.slotString("message") }

// Name returns the current name slot.
func (e *ErrorObject) Name() string { return e.slotString("name") }

// String renders "Name: message", or just the name when there is no
// message.
func (e *ErrorObject) String() string {
	name, msg := e.Name(), e.Message()
	if msg == "" {
		return name
	}
	return name + ": " + msg
}

// errorClasses defines Error, its top-level subclasses and flash.errors.
func errorClasses() []*Class {
	base := NewClass(errorQName, "Object", 0).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &ErrorObject{}, nil }).
		Slot("message", "String", String("")).
		Slot("name", "String", String("Error")).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			e, err := thisAs[*ErrorObject](a, this, "Error")
			if err != nil {
				return Undefined, err
			}
			msg, err := a.argString(args, 0, "")
			if err != nil {
				return Undefined, err
			}
			id, err := a.argInt(args, 1, 0)
			if err != nil {
				return Undefined, err
			}
			e.id = int(id)
			a.write(e)
			if err := a.Set(this, "message", String(msg)); err != nil {
				return Undefined, err
			}
			return Undefined, a.Set(this, "name", String(builtinName(a, e.class)))
		}).
		Getter("errorID", func(a *Activation, this Value, _ []Value) (Value, error) {
			e, err := thisAs[*ErrorObject](a, this, "Error")
			if err != nil {
				return Undefined, err
			}
			return Int(int32(e.id)), nil
		}).
		Method("getStackTrace", func(*Activation, Value, []Value) (Value, error) {
			return Null, nil
		}).
		ProtoMethod("toString", func(a *Activation, this Value, _ []Value) (Value, error) {
			if e, ok := this.AsObject().(*ErrorObject); ok {
				return String(e.String()), nil
			}
			return objectToString(a, this, nil)
		})

	classes := []*Class{base}
	for _, n := range []string{"TypeError", "RangeError", "ReferenceError", "ArgumentError",
		"VerifyError", "SecurityError", "EvalError", "URIError"} {
		classes = append(classes, NewClass(PublicName(n), "Error", 0))
	}
	for _, n := range []string{"IllegalOperationError", "ScriptTimeoutError", "EOFError"} {
		super := "Error"
		if n == "EOFError" {
			super = "flash.errors::IOError"
			classes = append(classes, NewClass(PackageName("flash.errors", "IOError"), "Error", 0))
		}
		classes = append(classes, NewClass(PackageName("flash.errors", n), super, 0))
	}
	return classes
}

// builtinName returns the local name of the nearest system class of cls,
// so a scripted subclass of RangeError still reports "RangeError".
func builtinName(a *Activation, cls *ClassObject) string {
	for k := cls; k != nil; k = k.super {
		if k.domain == a.vm.system {
			return k.Name().Local
		}
	}
	return "Error"
}
