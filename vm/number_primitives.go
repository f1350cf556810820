package vm

import (
	"math"
	"math/big"
	"math/rand/v2"
	"strconv"
	"strings"
)

// primitiveClasses defines String, Number, int, uint, Boolean and Math.
func primitiveClasses() []*Class {
	number := numericClass("Number", func(a *Activation, v Value) (Value, error) {
		f, err := a.ToNumber(v)
		return Number(f), err
	}, Number(0)).
		StaticConst("MAX_VALUE", "Number", Number(math.MaxFloat64)).
		StaticConst("MIN_VALUE", "Number", Number(math.SmallestNonzeroFloat64)).
		StaticConst("NaN", "Number", Number(math.NaN())).
		StaticConst("POSITIVE_INFINITY", "Number", Number(math.Inf(1))).
		StaticConst("NEGATIVE_INFINITY", "Number", Number(math.Inf(-1)))

	intClass := numericClass("int", func(a *Activation, v Value) (Value, error) {
		i, err := a.ToInt32(v)
		return Int(i), err
	}, Int(0)).
		StaticConst("MAX_VALUE", "int", Int(math.MaxInt32)).
		StaticConst("MIN_VALUE", "int", Int(math.MinInt32))

	uintClass := numericClass("uint", func(a *Activation, v Value) (Value, error) {
		u, err := a.ToUint32(v)
		return Uint(u), err
	}, Uint(0)).
		StaticConst("MAX_VALUE", "uint", Uint(math.MaxUint32)).
		StaticConst("MIN_VALUE", "uint", Uint(0))

	boolean := NewClass(PublicName("Boolean"), "Object", ClassSealed|ClassFinal|classPrimitive).
		CallHandler(func(_ *Activation, _ Value, args []Value) (Value, error) {
			return Bool(ToBoolean(arg(args, 0))), nil
		}).
		Method("toString", func(a *Activation, this Value, _ []Value) (Value, error) {
			return String(PrimitiveToString(Bool(ToBoolean(this)))), nil
		}).
		Method("valueOf", func(a *Activation, this Value, _ []Value) (Value, error) {
			return Bool(ToBoolean(this)), nil
		})

	return []*Class{stringClass(), number, intClass, uintClass, boolean, mathClass()}
}

func numericClass(name string, convert func(*Activation, Value) (Value, error), zero Value) *Class {
	thisNumber := func(a *Activation, this Value) (float64, error) {
		if this.IsNumeric() {
			return this.Float(), nil
		}
		return a.ToNumber(this)
	}
	return NewClass(PublicName(name), "Object", ClassSealed|ClassFinal|classPrimitive).
		CallHandler(func(a *Activation, _ Value, args []Value) (Value, error) {
			if len(args) == 0 {
				return zero, nil
			}
			return convert(a, args[0])
		}).
		Method("toString", func(a *Activation, this Value, args []Value) (Value, error) {
			f, err := thisNumber(a, this)
			if err != nil {
				return Undefined, err
			}
			radix, err := a.argInt(args, 0, 10)
			if err != nil {
				return Undefined, err
			}
			if radix < 2 || radix > 36 {
				return Undefined, a.RangeError(1003, "The radix argument must be between 2 and 36; got %d.", radix)
			}
			return String(NumberToRadixString(f, int(radix))), nil
		}).
		Method("toLocaleString", func(a *Activation, this Value, _ []Value) (Value, error) {
			f, err := thisNumber(a, this)
			return String(NumberToString(f)), err
		}).
		Method("valueOf", func(a *Activation, this Value, _ []Value) (Value, error) {
			return this, nil
		}).
		Method("toFixed", func(a *Activation, this Value, args []Value) (Value, error) {
			f, err := thisNumber(a, this)
			if err != nil {
				return Undefined, err
			}
			d, err := a.argInt(args, 0, 0)
			if err != nil {
				return Undefined, err
			}
			if d < 0 || d > 20 {
				return Undefined, a.RangeError(1002, "Number.toFixed has a range of 0 to 20. %d is out of range.", d)
			}
			return String(FormatFixed(f, int(d))), nil
		}).
		Method("toPrecision", func(a *Activation, this Value, args []Value) (Value, error) {
			f, err := thisNumber(a, this)
			if err != nil {
				return Undefined, err
			}
			if len(args) == 0 || args[0].IsUndefined() {
				return String(NumberToString(f)), nil
			}
			p, err := a.ToInt32(args[0])
			if err != nil {
				return Undefined, err
			}
			if p < 1 || p > 21 {
				return Undefined, a.RangeError(1002, "Number.toPrecision has a range of 1 to 21. %d is out of range.", p)
			}
			return String(FormatPrecision(f, int(p))), nil
		}).
		Method("toExponential", func(a *Activation, this Value, args []Value) (Value, error) {
			f, err := thisNumber(a, this)
			if err != nil {
				return Undefined, err
			}
			d, err := a.argInt(args, 0, 0)
			if err != nil {
				return Undefined, err
			}
			if d < 0 || d > 20 {
				return Undefined, a.RangeError(1002, "Number.toExponential has a range of 0 to 20. %d is out of range.", d)
			}
			return String(FormatExponential(f, int(d))), nil
		})
}

// ---------------------------------------------------------------------------
// Number formatting
// ---------------------------------------------------------------------------

func nonFinite(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	}
	return "", false
}

// NumberToRadixString renders f in radix. Fractions get up to 20 digits.
func NumberToRadixString(f float64, radix int) string {
	if radix == 10 {
		return NumberToString(f)
	}
	if s, ok := nonFinite(f); ok {
		return s
	}
	neg := f < 0
	f = math.Abs(f)
	ip, fp := math.Modf(f)
	var s string
	if ip < 1<<63 {
		s = strconv.FormatUint(uint64(ip), radix)
	} else {
		bi, _ := new(big.Float).SetFloat64(ip).Int(nil)
		s = bi.Text(radix)
	}
	if fp > 0 {
		var b strings.Builder
		b.WriteString(s)
		b.WriteByte('.')
		for i := 0; i < 20 && fp > 0; i++ {
			fp *= float64(radix)
			d := int(fp)
			b.WriteByte("0123456789abcdefghijklmnopqrstuvwxyz"[d])
			fp -= float64(d)
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// FormatFixed implements toFixed. Exact ties round away from zero.
func FormatFixed(f float64, digits int) string {
	if s, ok := nonFinite(f); ok {
		return s
	}
	if math.Abs(f) >= 1e21 {
		return NumberToString(f)
	}
	neg := f < 0 && f != 0
	abs := math.Abs(f)
	exact := strings.TrimRight(new(big.Float).SetFloat64(abs).Text('f', 1100), "0")
	var s string
	if dot := strings.IndexByte(exact, '.'); dot >= 0 && len(exact)-dot-1 == digits+1 && exact[len(exact)-1] == '5' {
		s = incrementDecimal(strings.TrimSuffix(exact[:len(exact)-1], "."))
	} else {
		s = strconv.FormatFloat(abs, 'f', digits, 64)
	}
	if neg && strings.Trim(s, "0.") != "" {
		return "-" + s
	}
	return s
}

// incrementDecimal adds one unit in the last place of a decimal string.
func incrementDecimal(s string) string {
	b := []byte(s)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == '.' {
			continue
		}
		if b[i] < '9' {
			b[i]++
			return string(b)
		}
		b[i] = '0'
	}
	return "1" + string(b)
}

// FormatExponential implements toExponential.
func FormatExponential(f float64, digits int) string {
	if s, ok := nonFinite(f); ok {
		return s
	}
	return fixExponent(strconv.FormatFloat(f, 'e', digits, 64))
}

// FormatPrecision implements toPrecision.
func FormatPrecision(f float64, p int) string {
	if s, ok := nonFinite(f); ok {
		return s
	}
	if f == 0 {
		return FormatFixed(0, p-1)
	}
	e := strconv.FormatFloat(f, 'e', p-1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -6 || exp >= p {
		return fixExponent(e)
	}
	return strconv.FormatFloat(f, 'f', p-1-exp, 64)
}

// fixExponent rewrites Go's "e+05" exponent as "e+5".
func fixExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 {
		return s
	}
	mant, exp := s[:i], s[i+1:]
	sign := "+"
	if exp[0] == '-' || exp[0] == '+' {
		if exp[0] == '-' {
			sign = "-"
		}
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + sign + exp
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func mathClass() *Class {
	c := NewClass(PublicName("Math"), "Object", ClassSealed|ClassFinal).
		Allocates(func(a *Activation, _ *ClassObject) (Object, error) {
			return nil, a.TypeError(1076, "Math is not a constructor.")
		}).
		StaticConst("PI", "Number", Number(math.Pi)).
		StaticConst("E", "Number", Number(math.E)).
		StaticConst("LN2", "Number", Number(math.Ln2)).
		StaticConst("LN10", "Number", Number(math.Ln10)).
		StaticConst("LOG2E", "Number", Number(math.Log2E)).
		StaticConst("LOG10E", "Number", Number(math.Log10E)).
		StaticConst("SQRT2", "Number", Number(math.Sqrt2)).
		StaticConst("SQRT1_2", "Number", Number(math.Sqrt2/2))

	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"ceil":  math.Ceil,
		"floor": math.Floor,
		"round": roundHalfUp,
		"sqrt":  math.Sqrt,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"exp":   math.Exp,
		"log":   math.Log,
	}
	for _, name := range []string{"abs", "ceil", "floor", "round", "sqrt", "sin", "cos", "tan", "asin", "acos", "atan", "exp", "log"} {
		fn := unary[name]
		c.StaticMethod(name, func(a *Activation, _ Value, args []Value) (Value, error) {
			x, err := a.argNumber(args, 0, math.NaN())
			if err != nil {
				return Undefined, err
			}
			return Number(fn(x)), nil
		})
	}
	binary := func(name string, fn func(x, y float64) float64) {
		c.StaticMethod(name, func(a *Activation, _ Value, args []Value) (Value, error) {
			x, err := a.argNumber(args, 0, math.NaN())
			if err != nil {
				return Undefined, err
			}
			y, err := a.argNumber(args, 1, math.NaN())
			if err != nil {
				return Undefined, err
			}
			return Number(fn(x, y)), nil
		})
	}
	binary("atan2", math.Atan2)
	binary("pow", math.Pow)
	extremum := func(name string, start float64, better func(x, best float64) bool) {
		c.StaticMethod(name, func(a *Activation, _ Value, args []Value) (Value, error) {
			best := start
			for _, v := range args {
				x, err := a.ToNumber(v)
				if err != nil {
					return Undefined, err
				}
				if math.IsNaN(x) {
					return Number(math.NaN()), nil
				}
				if better(x, best) {
					best = x
				}
			}
			return Number(best), nil
		})
	}
	extremum("max", math.Inf(-1), func(x, best float64) bool {
		return x > best || (x == 0 && best == 0 && !math.Signbit(x))
	})
	extremum("min", math.Inf(1), func(x, best float64) bool {
		return x < best || (x == 0 && best == 0 && math.Signbit(x))
	})
	c.StaticMethod("random", func(*Activation, Value, []Value) (Value, error) {
		return Number(rand.Float64()), nil
	})
	return c
}

// roundHalfUp rounds to the nearest integer, halves toward +Infinity.
func roundHalfUp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r := math.Floor(x + 0.5)
	if r == 0 && (x < 0 || math.Signbit(x)) {
		return math.Copysign(0, -1)
	}
	return r
}
