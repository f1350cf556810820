package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// Error is a script-level exception. It carries the thrown Value, which is
// usually an instance of Error or one of its subclasses but may be any
// value a script threw. Errors of this type are catchable by try regions.
type Error struct {
	Value   Value
	message string
}

func (e *Error) Error() string { return e.message }

// ErrorID returns the numeric error id of a thrown Error object, or 0.
func (e *Error) ErrorID() int {
	if eo, ok := e.Value.AsObject().(*ErrorObject); ok {
		return eo.id
	}
	return 0
}

// ClassName returns the unqualified class name of the thrown value, such as
// "TypeError", or "" for primitives.
func (e *Error) ClassName() string {
	if o := e.Value.AsObject(); o != nil && o.Base().class != nil {
		return o.Base().class.Name().Local
	}
	return ""
}

// VerificationError reports malformed bytecode or an illegal class
// hierarchy. It is fatal to the method call or class that produced it and
// cannot be caught by script code.
type VerificationError struct {
	Class  string
	Method string
	Offset int // -1 when not tied to an instruction
	Reason string
}

func (e *VerificationError) Error() string {
	switch {
	case e.Method != "" && e.Offset >= 0:
		return fmt.Sprintf("VerifyError: %s: method %s at offset %d: %s", e.Class, e.Method, e.Offset, e.Reason)
	case e.Method != "":
		return fmt.Sprintf("VerifyError: %s: method %s: %s", e.Class, e.Method, e.Reason)
	case e.Class != "":
		return fmt.Sprintf("VerifyError: %s: %s", e.Class, e.Reason)
	}
	return "VerifyError: " + e.Reason
}

func verifyErr(class, format string, args ...any) *VerificationError {
	return &VerificationError{Class: class, Offset: -1, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports an operation the VM deliberately does not
// implement. It is never catchable and never silently ignored.
type UnsupportedError struct {
	Class     string
	Operation string
	Detail    string
}

func (e *UnsupportedError) Error() string {
	msg := "unsupported: " + e.Class + "." + e.Operation
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func unsupported(class, op, format string, args ...any) *UnsupportedError {
	e := &UnsupportedError{Class: class, Operation: op, Detail: fmt.Sprintf(format, args...)}
	log.Warningf("%s", e.Error())
	return e
}

// ---------------------------------------------------------------------------
// Raising script errors
// ---------------------------------------------------------------------------

var (
	errorQName            = PublicName("Error")
	typeErrorQName        = PublicName("TypeError")
	rangeErrorQName       = PublicName("RangeError")
	referenceErrorQName   = PublicName("ReferenceError")
	argumentErrorQName    = PublicName("ArgumentError")
	securityErrorQName    = PublicName("SecurityError")
	illegalOperationQName = PackageName("flash.errors", "IllegalOperationError")
	scriptTimeoutQName    = PackageName("flash.errors", "ScriptTimeoutError")
	eofErrorQName         = PackageName("flash.errors", "EOFError")
)

// Throw wraps an arbitrary value as a catchable error.
func (a *Activation) Throw(v Value) *Error {
	var msg string
	if eo, ok := v.AsObject().(*ErrorObject); ok {
		msg = eo.String()
	} else if v.IsPrimitive() {
		msg = PrimitiveToString(v)
	} else {
		msg = v.String()
	}
	return &Error{Value: v, message: msg}
}

// raise constructs an instance of the named error class and wraps it. The
// message is prefixed with "Error #id: " when id is non-zero.
func (a *Activation) raise(class QName, id int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if id != 0 {
		msg = fmt.Sprintf("Error #%d: %s", id, msg)
	}
	cls, err := a.vm.system.MustClass(a, class)
	if err != nil {
		return err
	}
	v, err := a.Construct(cls, []Value{String(msg), Int(int32(id))})
	if err != nil {
		return err
	}
	return a.Throw(v)
}

func (a *Activation) TypeError(id int, format string, args ...any) error {
	return a.raise(typeErrorQName, id, format, args...)
}

func (a *Activation) ReferenceError(id int, format string, args ...any) error {
	return a.raise(referenceErrorQName, id, format, args...)
}

func (a *Activation) RangeError(id int, format string, args ...any) error {
	return a.raise(rangeErrorQName, id, format, args...)
}

func (a *Activation) ArgumentError(id int, format string, args ...any) error {
	return a.raise(argumentErrorQName, id, format, args...)
}

func (a *Activation) SecurityError(id int, format string, args ...any) error {
	return a.raise(securityErrorQName, id, format, args...)
}

func (a *Activation) IllegalOperationError(id int, format string, args ...any) error {
	return a.raise(illegalOperationQName, id, format, args...)
}

func (a *Activation) ScriptTimeoutError(id int, format string, args ...any) error {
	return a.raise(scriptTimeoutQName, id, format, args...)
}

func (a *Activation) EOFError(id int, format string, args ...any) error {
	return a.raise(eofErrorQName, id, format, args...)
}

// PlainError raises an instance of Error itself.
func (a *Activation) PlainError(id int, format string, args ...any) error {
	return a.raise(errorQName, id, format, args...)
}

// describe names v for error messages: the class name for objects, the
// kind name otherwise.
func (a *Activation) describe(v Value) string {
	switch v.kind {
	case KindObject:
		if c := v.obj.Base().class; c != nil {
			if cls, ok := v.obj.(*ClassObject); ok {
				return cls.Name().String() + "$"
			}
			return c.Name().String()
		}
		return "Object"
	case KindString:
		return "String"
	case KindInt, KindUint, KindNumber:
		return "Number"
	case KindBool:
		return "Boolean"
	}
	return v.kind.String()
}
