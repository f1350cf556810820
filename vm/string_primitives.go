package vm

import (
	"math"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Script strings are sequences of UTF-16 code units; Go strings hold
// UTF-8. Index-based operations convert, with a fast path for ASCII.

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func toUTF16(s string) []uint16 { return utf16.Encode([]rune(s)) }

func fromUTF16(u []uint16) string { return string(utf16.Decode(u)) }

// StringLength returns the length of s in UTF-16 code units.
func StringLength(s string) int {
	if isASCII(s) {
		return len(s)
	}
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// units returns s as code units and whether it was ASCII, in which case
// the byte string can be sliced directly.
type units struct {
	s     string
	ascii bool
	u     []uint16
}

func unitsOf(s string) units {
	if isASCII(s) {
		return units{s: s, ascii: true}
	}
	return units{s: s, u: toUTF16(s)}
}

func (u units) len() int {
	if u.ascii {
		return len(u.s)
	}
	return len(u.u)
}

func (u units) at(i int) uint16 {
	if u.ascii {
		return uint16(u.s[i])
	}
	return u.u[i]
}

func (u units) slice(i, j int) string {
	if u.ascii {
		return u.s[i:j]
	}
	return fromUTF16(u.u[i:j])
}

func (u units) index(sub units, from int) int {
	n, m := u.len(), sub.len()
	for i := from; i+m <= n; i++ {
		if u.matchAt(sub, i) {
			return i
		}
	}
	return -1
}

func (u units) lastIndex(sub units, from int) int {
	n, m := u.len(), sub.len()
	if from > n-m {
		from = n - m
	}
	for i := from; i >= 0; i-- {
		if u.matchAt(sub, i) {
			return i
		}
	}
	return -1
}

func (u units) matchAt(sub units, i int) bool {
	for k := 0; k < sub.len(); k++ {
		if u.at(i+k) != sub.at(k) {
			return false
		}
	}
	return true
}

// compareUTF16 orders strings by UTF-16 code units, the order the <
// operator uses.
func compareUTF16(x, y string) int {
	for x != "" && y != "" {
		rx, nx := utf8.DecodeRuneInString(x)
		ry, ny := utf8.DecodeRuneInString(y)
		if rx != ry {
			return int(firstUnit(rx)) - int(firstUnit(ry))
		}
		x, y = x[nx:], y[ny:]
	}
	return len(x) - len(y)
}

func firstUnit(r rune) uint16 {
	if r >= 0x10000 {
		hi, _ := utf16.EncodeRune(r)
		return uint16(hi)
	}
	return uint16(r)
}

// clampIndex converts a Number argument to an index in [0, n].
func clampIndex(f float64, n int) int {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= float64(n):
		return n
	}
	return int(f)
}

// thisString converts the receiver of a String method.
func (a *Activation) thisString(this Value) (string, error) {
	if this.IsString() {
		return this.str, nil
	}
	if this.IsNullish() {
		return "", a.nullReceiver(this)
	}
	return a.ToString(this)
}

func (vm *VM) collatorFor() *collate.Collator {
	if vm.collator == nil {
		vm.collator = collate.New(language.Und)
	}
	return vm.collator
}

// ---------------------------------------------------------------------------
// String class
// ---------------------------------------------------------------------------

type stringMethod func(a *Activation, s string, args []Value) (Value, error)

func stringClass() *Class {
	c := NewClass(PublicName("String"), "Object", ClassSealed|ClassFinal|classPrimitive).
		CallHandler(func(a *Activation, _ Value, args []Value) (Value, error) {
			if len(args) == 0 {
				return String(""), nil
			}
			s, err := a.ToString(args[0])
			return String(s), err
		}).
		StaticMethod("fromCharCode", func(a *Activation, _ Value, args []Value) (Value, error) {
			u := make([]uint16, len(args))
			for i, v := range args {
				n, err := a.ToUint32(v)
				if err != nil {
					return Undefined, err
				}
				u[i] = uint16(n)
			}
			return String(fromUTF16(u)), nil
		})

	add := func(name string, fn stringMethod) {
		c.Method(name, func(a *Activation, this Value, args []Value) (Value, error) {
			s, err := a.thisString(this)
			if err != nil {
				return Undefined, err
			}
			return fn(a, s, args)
		})
	}
	c.Getter("length", func(a *Activation, this Value, _ []Value) (Value, error) {
		s, err := a.thisString(this)
		return Int(int32(StringLength(s))), err
	})
	add("toString", func(_ *Activation, s string, _ []Value) (Value, error) { return String(s), nil })
	add("valueOf", func(_ *Activation, s string, _ []Value) (Value, error) { return String(s), nil })
	add("charAt", func(a *Activation, s string, args []Value) (Value, error) {
		f, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		u := unitsOf(s)
		if f < 0 || f >= float64(u.len()) || math.IsNaN(f) {
			return String(""), nil
		}
		i := int(f)
		return String(u.slice(i, i+1)), nil
	})
	add("charCodeAt", func(a *Activation, s string, args []Value) (Value, error) {
		f, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		u := unitsOf(s)
		if math.IsNaN(f) {
			f = 0
		}
		if f < 0 || f >= float64(u.len()) {
			return Number(math.NaN()), nil
		}
		return Int(int32(u.at(int(f)))), nil
	})
	add("indexOf", func(a *Activation, s string, args []Value) (Value, error) {
		sub, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		from, err := a.argNumber(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		u := unitsOf(s)
		return Int(int32(u.index(unitsOf(sub), clampIndex(from, u.len())))), nil
	})
	add("lastIndexOf", func(a *Activation, s string, args []Value) (Value, error) {
		sub, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		u := unitsOf(s)
		from, err := a.argNumber(args, 1, math.Inf(1))
		if err != nil {
			return Undefined, err
		}
		if math.IsNaN(from) {
			from = math.Inf(1)
		}
		return Int(int32(u.lastIndex(unitsOf(sub), clampIndex(from, u.len())))), nil
	})
	add("substring", func(a *Activation, s string, args []Value) (Value, error) {
		u := unitsOf(s)
		n := u.len()
		st, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		en, err := a.argNumber(args, 1, float64(n))
		if err != nil {
			return Undefined, err
		}
		i, j := clampIndex(st, n), clampIndex(en, n)
		if i > j {
			i, j = j, i
		}
		return String(u.slice(i, j)), nil
	})
	add("substr", func(a *Activation, s string, args []Value) (Value, error) {
		u := unitsOf(s)
		n := u.len()
		st, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		ln, err := a.argNumber(args, 1, float64(n))
		if err != nil {
			return Undefined, err
		}
		i := relativeIndex(st, n)
		j := i + clampIndex(ln, n-i)
		return String(u.slice(i, j)), nil
	})
	add("slice", func(a *Activation, s string, args []Value) (Value, error) {
		u := unitsOf(s)
		n := u.len()
		st, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		en, err := a.argNumber(args, 1, float64(n))
		if err != nil {
			return Undefined, err
		}
		i, j := relativeIndex(st, n), relativeIndex(en, n)
		if j < i {
			j = i
		}
		return String(u.slice(i, j)), nil
	})
	add("toUpperCase", func(_ *Activation, s string, _ []Value) (Value, error) { return String(strings.ToUpper(s)), nil })
	add("toLowerCase", func(_ *Activation, s string, _ []Value) (Value, error) { return String(strings.ToLower(s)), nil })
	add("toLocaleUpperCase", func(_ *Activation, s string, _ []Value) (Value, error) { return String(strings.ToUpper(s)), nil })
	add("toLocaleLowerCase", func(_ *Activation, s string, _ []Value) (Value, error) { return String(strings.ToLower(s)), nil })
	add("concat", func(a *Activation, s string, args []Value) (Value, error) {
		var b strings.Builder
		b.WriteString(s)
		for _, v := range args {
			p, err := a.ToString(v)
			if err != nil {
				return Undefined, err
			}
			b.WriteString(p)
		}
		return String(b.String()), nil
	})
	add("split", stringSplit)
	add("replace", stringReplace)
	add("localeCompare", func(a *Activation, s string, args []Value) (Value, error) {
		other, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		return Int(int32(a.vm.collatorFor().CompareString(s, other))), nil
	})
	for _, name := range []string{"match", "search"} {
		name := name
		add(name, func(*Activation, string, []Value) (Value, error) {
			return Undefined, unsupported("String", name, "regular expressions are not implemented")
		})
	}
	return c
}

func stringSplit(a *Activation, s string, args []Value) (Value, error) {
	limit := uint32(math.MaxUint32)
	if len(args) > 1 && !args[1].IsUndefined() {
		l, err := a.ToUint32(args[1])
		if err != nil {
			return Undefined, err
		}
		limit = l
	}
	if len(args) == 0 || args[0].IsUndefined() {
		return FromObject(a.NewArray([]Value{String(s)})), nil
	}
	sep, err := a.ToString(args[0])
	if err != nil {
		return Undefined, err
	}
	var parts []string
	if sep == "" {
		u := unitsOf(s)
		for i := 0; i < u.len(); i++ {
			parts = append(parts, u.slice(i, i+1))
		}
	} else {
		parts = strings.Split(s, sep)
	}
	if uint32(len(parts)) > limit {
		parts = parts[:limit]
	}
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = String(p)
	}
	return FromObject(a.NewArray(out)), nil
}

// stringReplace replaces the first occurrence of a string pattern. A
// function replacement receives the match, its index and the source.
func stringReplace(a *Activation, s string, args []Value) (Value, error) {
	pat, err := a.argString(args, 0, "undefined")
	if err != nil {
		return Undefined, err
	}
	u := unitsOf(s)
	i := u.index(unitsOf(pat), 0)
	if i < 0 {
		return String(s), nil
	}
	var repl string
	if r := arg(args, 1); isCallable(r) {
		v, err := a.Call(r, Null, []Value{String(pat), Int(int32(i)), String(s)})
		if err != nil {
			return Undefined, err
		}
		if repl, err = a.ToString(v); err != nil {
			return Undefined, err
		}
	} else if repl, err = a.argString(args, 1, "undefined"); err != nil {
		return Undefined, err
	}
	return String(u.slice(0, i) + repl + u.slice(i+unitsOf(pat).len(), u.len())), nil
}
