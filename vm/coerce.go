package vm

import (
	"math"
	"strconv"
	"strings"
)

// Hint selects the preferred conversion in ToPrimitive.
type Hint uint8

const (
	HintNumber Hint = iota
	HintString
)

// ---------------------------------------------------------------------------
// Primitive conversions (no script code runs)
// ---------------------------------------------------------------------------

// ToBoolean: 0, NaN, "", null and undefined are false; every object is true.
func ToBoolean(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.AsBool()
	case KindInt:
		return v.AsInt() != 0
	case KindUint:
		return v.AsUint() != 0
	case KindNumber:
		f := v.Float()
		return f != 0 && !math.IsNaN(f)
	case KindString:
		return v.str != ""
	}
	return true
}

// PrimitiveToNumber converts a non-object value.
func PrimitiveToNumber(v Value) float64 {
	switch v.kind {
	case KindUndefined:
		return math.NaN()
	case KindNull:
		return 0
	case KindBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case KindInt, KindUint, KindNumber:
		return v.Float()
	case KindString:
		return StringToNumber(v.str)
	}
	return math.NaN()
}

// PrimitiveToString converts a non-object value.
func PrimitiveToString(v Value) string {
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
	case KindInt:
		return strconv.FormatInt(int64(v.AsInt()), 10)
	case KindUint:
		return strconv.FormatUint(uint64(v.AsUint()), 10)
	case KindNumber:
		return NumberToString(v.Float())
	case KindString:
		return v.str
	}
	return ""
}

// NumberToUint32 wraps f modulo 2^32 after truncation. NaN and infinities
// become 0.
func NumberToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// NumberToInt32 wraps like NumberToUint32 and reinterprets the bits as
// signed.
func NumberToInt32(f float64) int32 { return int32(NumberToUint32(f)) }

// NumberToString formats f the way the language prints numbers: integers
// without a fraction, fixed notation for magnitudes in [1e-6, 1e21),
// exponent notation otherwise, and -0 as "0".
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(s, "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(expPart)
	n, k := e+1, len(digits)

	var out string
	switch {
	case k <= n && n <= 21:
		out = digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		out = digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		out = "0." + strings.Repeat("0", -n) + digits
	default:
		exp := n - 1
		expSign := "+"
		if exp < 0 {
			expSign, exp = "-", -exp
		}
		if k == 1 {
			out = digits + "e" + expSign + strconv.Itoa(exp)
		} else {
			out = digits[:1] + "." + digits[1:] + "e" + expSign + strconv.Itoa(exp)
		}
	}
	return sign + out
}

// StringToNumber parses s as a numeric literal. Surrounding whitespace is
// ignored, the empty string is 0, "0x" introduces hex digits, and anything
// unparseable is NaN.
func StringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	neg := false
	body := s
	if body[0] == '+' || body[0] == '-' {
		neg = body[0] == '-'
		body = body[1:]
	}
	var f float64
	switch {
	case body == "Infinity":
		f = math.Inf(1)
	case len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X'):
		for _, c := range body[2:] {
			d := hexDigit(c)
			if d < 0 {
				return math.NaN()
			}
			f = f*16 + float64(d)
		}
	case isDecimalLiteral(body):
		var err error
		f, err = strconv.ParseFloat(body, 64)
		if err != nil && !isRangeErr(err) {
			return math.NaN()
		}
	default:
		return math.NaN()
	}
	if neg {
		return -f
	}
	return f
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func hexDigit(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// isDecimalLiteral accepts digits [. digits] [e [sign] digits] with at
// least one mantissa digit.
func isDecimalLiteral(s string) bool {
	i, mant := 0, 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		mant++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			mant++
		}
	}
	if mant == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

// ---------------------------------------------------------------------------
// Conversions that may run script code (valueOf / toString)
// ---------------------------------------------------------------------------

// ToPrimitive converts objects by calling valueOf and toString in the order
// the hint selects, returning the first primitive result.
func (a *Activation) ToPrimitive(v Value, hint Hint) (Value, error) {
	if v.kind != KindObject {
		return v, nil
	}
	if p, ok := v.obj.(primitiveHolder); ok {
		return p.primitive(), nil
	}
	order := [2]string{"valueOf", "toString"}
	if hint == HintString {
		order = [2]string{"toString", "valueOf"}
	}
	for _, name := range order {
		fn, err := a.GetProperty(v, NewMultiname(name))
		if err != nil {
			return Undefined, err
		}
		if !isCallable(fn) {
			continue
		}
		r, err := a.Call(fn, v, nil)
		if err != nil {
			return Undefined, err
		}
		if r.IsPrimitive() {
			return r, nil
		}
	}
	return Undefined, a.TypeError(1050, "Cannot convert %s to primitive.", a.describe(v))
}

// primitiveHolder is implemented by wrapper objects that stand for a
// primitive, such as a boxed String.
type primitiveHolder interface {
	primitive() Value
}

func (a *Activation) ToNumber(v Value) (float64, error) {
	if v.kind != KindObject {
		return PrimitiveToNumber(v), nil
	}
	p, err := a.ToPrimitive(v, HintNumber)
	if err != nil {
		return 0, err
	}
	return PrimitiveToNumber(p), nil
}

func (a *Activation) ToInt32(v Value) (int32, error) {
	switch v.kind {
	case KindInt:
		return v.AsInt(), nil
	case KindUint:
		return int32(v.AsUint()), nil
	}
	f, err := a.ToNumber(v)
	return NumberToInt32(f), err
}

func (a *Activation) ToUint32(v Value) (uint32, error) {
	switch v.kind {
	case KindUint:
		return v.AsUint(), nil
	case KindInt:
		return uint32(v.AsInt()), nil
	}
	f, err := a.ToNumber(v)
	return NumberToUint32(f), err
}

func (a *Activation) ToString(v Value) (string, error) {
	if v.kind != KindObject {
		return PrimitiveToString(v), nil
	}
	p, err := a.ToPrimitive(v, HintString)
	if err != nil {
		return "", err
	}
	return PrimitiveToString(p), nil
}

// TypeOf implements the typeof operator.
func TypeOf(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "object"
	case KindBool:
		return "boolean"
	case KindInt, KindUint, KindNumber:
		return "number"
	case KindString:
		return "string"
	}
	switch v.obj.(type) {
	case *FunctionObject:
		return "function"
	case *XMLObject, *XMLListObject:
		return "xml"
	}
	return "object"
}
