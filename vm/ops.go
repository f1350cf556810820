package vm

import (
	"math"
)

// StrictEquals implements ===. All numeric kinds compare as one type and
// NaN is unequal to itself. Two closures of the same method over the same
// receiver are equal.
func StrictEquals(x, y Value) bool {
	if x.IsNumeric() && y.IsNumeric() {
		return x.Float() == y.Float()
	}
	if x.kind != y.kind {
		return false
	}
	switch x.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return x.bits == y.bits
	case KindString:
		return x.str == y.str
	}
	if x.obj == y.obj {
		return true
	}
	fx, ok1 := x.obj.(*FunctionObject)
	fy, ok2 := y.obj.(*FunctionObject)
	return ok1 && ok2 && fx.bound && fy.bound && fx.method == fy.method && StrictEquals(fx.this, fy.this)
}

// Equals implements abstract equality (==).
func (a *Activation) Equals(x, y Value) (bool, error) {
	for {
		switch {
		case x.IsNumeric() && y.IsNumeric():
			return x.Float() == y.Float(), nil
		case x.kind == y.kind && x.kind != KindObject:
			return StrictEquals(x, y), nil
		case x.IsNullish() || y.IsNullish():
			return x.IsNullish() && y.IsNullish(), nil
		case x.kind == KindObject && y.kind == KindObject:
			if xe, ok := x.obj.(xmlEquality); ok {
				return xe.xmlEquals(a, y)
			}
			return StrictEquals(x, y), nil
		case x.IsNumeric() && y.kind == KindString:
			return x.Float() == StringToNumber(y.str), nil
		case x.kind == KindString && y.IsNumeric():
			return StringToNumber(x.str) == y.Float(), nil
		case x.kind == KindBool:
			x = Number(PrimitiveToNumber(x))
		case y.kind == KindBool:
			y = Number(PrimitiveToNumber(y))
		case x.kind == KindObject:
			p, err := a.ToPrimitive(x, HintNumber)
			if err != nil {
				return false, err
			}
			x = p
		case y.kind == KindObject:
			p, err := a.ToPrimitive(y, HintNumber)
			if err != nil {
				return false, err
			}
			y = p
		default:
			return false, nil
		}
	}
}

// xmlEquality is implemented by XML variants, which compare by content.
type xmlEquality interface {
	xmlEquals(a *Activation, other Value) (bool, error)
}

// cmpResult is the outcome of the abstract relational comparison.
type cmpResult uint8

const (
	cmpFalse cmpResult = iota
	cmpTrue
	cmpUndefined // a NaN was involved
)

// lessThan implements the abstract relational comparison x < y.
func (a *Activation) lessThan(x, y Value) (cmpResult, error) {
	px, err := a.ToPrimitive(x, HintNumber)
	if err != nil {
		return cmpFalse, err
	}
	py, err := a.ToPrimitive(y, HintNumber)
	if err != nil {
		return cmpFalse, err
	}
	if px.kind == KindString && py.kind == KindString {
		if px.str < py.str {
			return cmpTrue, nil
		}
		return cmpFalse, nil
	}
	nx, ny := PrimitiveToNumber(px), PrimitiveToNumber(py)
	if math.IsNaN(nx) || math.IsNaN(ny) {
		return cmpUndefined, nil
	}
	if nx < ny {
		return cmpTrue, nil
	}
	return cmpFalse, nil
}

// Compare evaluates one of the relational operators. op is one of "<",
// "<=", ">", ">=".
func (a *Activation) Compare(op string, x, y Value) (bool, error) {
	switch op {
	case "<":
		r, err := a.lessThan(x, y)
		return r == cmpTrue, err
	case ">":
		r, err := a.lessThan(y, x)
		return r == cmpTrue, err
	case "<=":
		r, err := a.lessThan(y, x)
		return r == cmpFalse, err
	case ">=":
		r, err := a.lessThan(x, y)
		return r == cmpFalse, err
	}
	return false, nil
}

// Add implements the + operator: numeric addition, or string
// concatenation when either primitive operand is a string.
func (a *Activation) Add(x, y Value) (Value, error) {
	if x.kind == KindInt && y.kind == KindInt {
		return IntOrNumber(float64(x.AsInt()) + float64(y.AsInt())), nil
	}
	if x.IsNumeric() && y.IsNumeric() {
		return Number(x.Float() + y.Float()), nil
	}
	if xl, ok := x.AsObject().(*XMLListObject); ok {
		if _, ok := y.AsObject().(*XMLListObject); ok {
			return FromObject(a.concatXMLLists(xl, y)), nil
		}
	}
	px, err := a.ToPrimitive(x, HintNumber)
	if err != nil {
		return Undefined, err
	}
	py, err := a.ToPrimitive(y, HintNumber)
	if err != nil {
		return Undefined, err
	}
	if px.kind == KindString || py.kind == KindString {
		return String(PrimitiveToString(px) + PrimitiveToString(py)), nil
	}
	return Number(PrimitiveToNumber(px) + PrimitiveToNumber(py)), nil
}

// arith applies a numeric binary operator after ToNumber on both sides.
func (a *Activation) arith(x, y Value, fn func(float64, float64) float64) (Value, error) {
	nx, err := a.ToNumber(x)
	if err != nil {
		return Undefined, err
	}
	ny, err := a.ToNumber(y)
	if err != nil {
		return Undefined, err
	}
	return Number(fn(nx, ny)), nil
}

// intArith applies an int32 binary operator after ToInt32 on both sides.
func (a *Activation) intArith(x, y Value, fn func(int32, int32) int32) (Value, error) {
	ix, err := a.ToInt32(x)
	if err != nil {
		return Undefined, err
	}
	iy, err := a.ToInt32(y)
	if err != nil {
		return Undefined, err
	}
	return Int(fn(ix, iy)), nil
}

func (a *Activation) shift(x, y Value, unsigned bool, fn func(int32, uint32) int32) (Value, error) {
	ix, err := a.ToInt32(x)
	if err != nil {
		return Undefined, err
	}
	s, err := a.ToUint32(y)
	if err != nil {
		return Undefined, err
	}
	s &= 31
	if unsigned {
		return Uint(uint32(ix) >> s), nil
	}
	return Int(fn(ix, s)), nil
}

func addF(x, y float64) float64 { return x + y }
func subF(x, y float64) float64 { return x - y }
func mulF(x, y float64) float64 { return x * y }
func divF(x, y float64) float64 { return x / y }
func modF(x, y float64) float64 { return math.Mod(x, y) }

func addI(x, y int32) int32 { return x + y }
func subI(x, y int32) int32 { return x - y }
func mulI(x, y int32) int32 { return x * y }
func andI(x, y int32) int32 { return x & y }
func orI(x, y int32) int32  { return x | y }
func xorI(x, y int32) int32 { return x ^ y }

func shlI(x int32, s uint32) int32 { return x << s }
func sarI(x int32, s uint32) int32 { return x >> s }
