package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Value: the tagged union every register, slot and stack entry holds
// ---------------------------------------------------------------------------

// Kind identifies which member of the union a Value holds.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindUint
	KindNumber
	KindString
	KindObject
)

var kindNames = [...]string{"undefined", "null", "Boolean", "int", "uint", "Number", "String", "Object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is an immutable script value. The zero Value is undefined.
// Numbers keep their storage kind (int, uint, Number) so typed slots and
// registers can avoid float conversions; comparisons treat all three as one
// numeric type.
type Value struct {
	kind Kind
	bits uint64 // bool, int32, uint32 or float64 bits
	str  string
	obj  Object
}

var (
	Undefined = Value{}
	Null      = Value{kind: KindNull}
	True      = Value{kind: KindBool, bits: 1}
	False     = Value{kind: KindBool}
)

// Bool returns a Boolean value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int(i int32) Value      { return Value{kind: KindInt, bits: uint64(uint32(i))} }
func Uint(u uint32) Value    { return Value{kind: KindUint, bits: uint64(u)} }
func Number(f float64) Value { return Value{kind: KindNumber, bits: math.Float64bits(f)} }
func String(s string) Value  { return Value{kind: KindString, str: s} }

// FromObject wraps o. A nil object becomes null.
func FromObject(o Object) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, obj: o}
}

// IntOrNumber returns an int when f is an integral value in int32 range
// (and not -0), otherwise a Number.
func IntOrNumber(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 && !(f == 0 && math.Signbit(f)) {
		return Int(int32(f))
	}
	return Number(f)
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsString() bool    { return v.kind == KindString }
func (v Value) IsObject() bool    { return v.kind == KindObject }

// IsNullish reports whether v is null or undefined.
func (v Value) IsNullish() bool { return v.kind <= KindNull }

// IsNumeric reports whether v holds an int, uint or Number.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindUint || v.kind == KindNumber
}

// IsPrimitive reports whether v is not an object.
func (v Value) IsPrimitive() bool { return v.kind != KindObject }

// AsBool returns the raw boolean of a Bool value.
func (v Value) AsBool() bool { return v.kind == KindBool && v.bits != 0 }

// AsInt returns the raw int32 of an Int value.
func (v Value) AsInt() int32 { return int32(uint32(v.bits)) }

// AsUint returns the raw uint32 of a Uint value.
func (v Value) AsUint() uint32 { return uint32(v.bits) }

// AsString returns the raw string of a String value.
func (v Value) AsString() string { return v.str }

// AsObject returns the object of an Object value, or nil.
func (v Value) AsObject() Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Float returns the numeric value of an int, uint or Number as float64.
// It does not coerce; non-numeric kinds return NaN.
func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.AsInt())
	case KindUint:
		return float64(v.AsUint())
	case KindNumber:
		return math.Float64frombits(v.bits)
	}
	return math.NaN()
}

// String renders v for diagnostics. Script-visible conversion is ToString.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindInt, KindUint, KindNumber:
		return NumberToString(v.Float())
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindObject:
		if cls := v.obj.Base().class; cls != nil {
			return "[object " + cls.Name().Local + "]"
		}
		return "[object]"
	}
	return "?"
}

// Identical reports whether a and b are the same value in the sense of
// strict equality, except that NaN is identical to itself.
func Identical(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		x, y := a.Float(), b.Float()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.str == b.str
	case KindObject:
		return a.obj == b.obj
	}
	return a.bits == b.bits
}
