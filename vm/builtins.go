package vm

import (
	"math"
	"strconv"
	"strings"
)

// builtinClasses returns fresh definitions of every builtin class. They are
// built per VM because methods cache resolved types.
func builtinClasses() []*Class {
	var defs []*Class
	defs = append(defs, coreClasses()...)
	defs = append(defs, primitiveClasses()...)
	defs = append(defs, arrayClass())
	defs = append(defs, errorClasses()...)
	defs = append(defs, geomClasses()...)
	defs = append(defs, displayClasses()...)
	defs = append(defs, xmlClasses()...)
	defs = append(defs, byteArrayClass())
	defs = append(defs, netClasses()...)
	defs = append(defs, workerClasses()...)
	defs = append(defs, concurrentClasses()...)
	return defs
}

// installGlobalFunctions defines the package-level functions and constants
// of the system domain.
func installGlobalFunctions(a *Activation, d *Domain) {
	d.DefineGlobal(a, PublicName("NaN"), Number(math.NaN()), true)
	d.DefineGlobal(a, PublicName("Infinity"), Number(math.Inf(1)), true)
	d.DefineGlobal(a, PublicName("undefined"), Undefined, true)

	d.DefineFunction(a, PublicName("trace"), globalTrace)
	d.DefineFunction(a, PublicName("isNaN"), func(a *Activation, _ Value, args []Value) (Value, error) {
		f, err := a.ToNumber(arg(args, 0))
		return Bool(math.IsNaN(f)), err
	})
	d.DefineFunction(a, PublicName("isFinite"), func(a *Activation, _ Value, args []Value) (Value, error) {
		f, err := a.ToNumber(arg(args, 0))
		return Bool(!math.IsNaN(f) && !math.IsInf(f, 0)), err
	})
	d.DefineFunction(a, PublicName("parseInt"), func(a *Activation, _ Value, args []Value) (Value, error) {
		s, err := a.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		radix, err := a.argInt(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		return Number(ParseInt(s, int(radix))), nil
	})
	d.DefineFunction(a, PublicName("parseFloat"), func(a *Activation, _ Value, args []Value) (Value, error) {
		s, err := a.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Number(ParseFloat(s)), nil
	})
	installUtilsFunctions(a, d)
	installNetFunctions(a, d)
}

func globalTrace(a *Activation, _ Value, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, v := range args {
		s, err := a.ToString(v)
		if err != nil {
			return Undefined, err
		}
		parts[i] = s
	}
	line := strings.Join(parts, " ")
	log.Infof("trace: %s", line)
	if w := a.vm.opts.Trace; w != nil {
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			log.Errorf("trace writer: %s", err)
		}
	}
	return Undefined, nil
}

// ParseInt implements the global parseInt: leading whitespace and a sign
// are skipped, radix 0 means 10 or 16 for a "0x" prefix, and parsing stops
// at the first character that is not a digit of the radix.
func ParseInt(s string, radix int) float64 {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if radix == 0 || radix == 16 {
		if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
			s = s[2:]
			radix = 16
		}
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	n, digits := 0.0, 0
	for _, c := range s {
		d := digitValue(c)
		if d < 0 || d >= radix {
			break
		}
		n = n*float64(radix) + float64(d)
		digits++
	}
	if digits == 0 {
		return math.NaN()
	}
	if neg {
		n = -n
	}
	return n
}

func digitValue(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}

// ParseFloat implements the global parseFloat: the longest prefix that is
// a decimal literal, or NaN.
func ParseFloat(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			i = k
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:i], "."), 64)
	if err != nil && !isRangeErr(err) {
		return math.NaN()
	}
	return f
}

// ---------------------------------------------------------------------------
// Argument helpers for native methods
// ---------------------------------------------------------------------------

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

func (a *Activation) argNumber(args []Value, i int, def float64) (float64, error) {
	if i >= len(args) {
		return def, nil
	}
	return a.ToNumber(args[i])
}

func (a *Activation) argInt(args []Value, i int, def int32) (int32, error) {
	if i >= len(args) {
		return def, nil
	}
	return a.ToInt32(args[i])
}

func (a *Activation) argUint(args []Value, i int, def uint32) (uint32, error) {
	if i >= len(args) {
		return def, nil
	}
	return a.ToUint32(args[i])
}

func (a *Activation) argString(args []Value, i int, def string) (string, error) {
	if i >= len(args) || args[i].IsUndefined() {
		return def, nil
	}
	return a.ToString(args[i])
}

func argBool(args []Value, i int, def bool) bool {
	if i >= len(args) {
		return def
	}
	return ToBoolean(args[i])
}

// builtin returns a system class by name.
func (a *Activation) builtin(q QName) (*ClassObject, error) {
	return a.vm.system.MustClass(a, q)
}

// construct instantiates the system class q.
func (a *Activation) construct(q QName, args ...Value) (Value, error) {
	cls, err := a.builtin(q)
	if err != nil {
		return Undefined, err
	}
	return a.Construct(cls, args)
}

// getNumber reads a public property of v as a Number.
func (a *Activation) getNumber(v Value, name string) (float64, error) {
	p, err := a.Get(v, name)
	if err != nil {
		return 0, err
	}
	return a.ToNumber(p)
}

// thisAs returns this as the variant T or raises TypeError #1034.
func thisAs[T Object](a *Activation, this Value, class string) (T, error) {
	if o, ok := this.AsObject().(T); ok {
		return o, nil
	}
	var zero T
	return zero, a.TypeError(1034, "Type Coercion failed: cannot convert %s to %s.", a.describeValue(this), class)
}
