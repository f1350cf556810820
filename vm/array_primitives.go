package vm

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/avm2/vm/heap"
)

// ---------------------------------------------------------------------------
// ArrayObject
// ---------------------------------------------------------------------------

// ArrayObject is an Array: a dense element vector in front of the dynamic
// bag. Indices past the dense part that are far out of range land in the
// bag like any other dynamic name.
type ArrayObject struct {
	ScriptObject
	dense []Value
}

// maxArrayGrowth bounds how far a single index write may extend the dense
// part.
const maxArrayGrowth = 1 << 20

func (arr *ArrayObject) Trace(t *heap.Tracer) {
	arr.traceBase(t)
	for _, v := range arr.dense {
		markValue(t, v)
	}
}

// Len returns the array length.
func (arr *ArrayObject) Len() int { return len(arr.dense) }

// At returns element i, or undefined.
func (arr *ArrayObject) At(i int) Value {
	if i < 0 || i >= len(arr.dense) {
		return Undefined
	}
	return arr.dense[i]
}

// Elements returns a copy of the dense elements.
func (arr *ArrayObject) Elements() []Value { return append([]Value(nil), arr.dense...) }

// NewArray returns an Array holding a copy of vals.
func (a *Activation) NewArray(vals []Value) *ArrayObject {
	arr := &ArrayObject{dense: append([]Value(nil), vals...)}
	a.initObject(arr, a.vm.classes.array)
	return arr
}

func isArray(v Value) bool {
	_, ok := v.AsObject().(*ArrayObject)
	return ok
}

// arrayIndex parses a canonical array index: a decimal uint32 below
// 2^32-1 with no leading zeros.
func arrayIndex(s string) (int, bool) {
	if s == "" || len(s) > 10 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return int(n), true
}

func (arr *ArrayObject) getHook(_ *Activation, mn *Multiname, local string) (Value, bool, error) {
	if !mn.HasPublic() {
		return Undefined, false, nil
	}
	if i, ok := arrayIndex(local); ok && i < len(arr.dense) {
		return arr.dense[i], true, nil
	}
	return Undefined, false, nil
}

func (arr *ArrayObject) setHook(a *Activation, mn *Multiname, local string, v Value) (bool, error) {
	if !mn.HasPublic() {
		return false, nil
	}
	i, ok := arrayIndex(local)
	if !ok || i >= len(arr.dense)+maxArrayGrowth {
		return false, nil
	}
	a.write(arr)
	if i >= len(arr.dense) {
		arr.resize(i + 1)
	}
	arr.dense[i] = v
	return true, nil
}

func (arr *ArrayObject) hasHook(_ *Activation, mn *Multiname, local string) bool {
	i, ok := arrayIndex(local)
	return ok && mn.HasPublic() && i < len(arr.dense)
}

func (arr *ArrayObject) deleteHook(a *Activation, mn *Multiname, local string) (bool, bool) {
	i, ok := arrayIndex(local)
	if !ok || !mn.HasPublic() || i >= len(arr.dense) {
		return false, false
	}
	a.write(arr)
	arr.dense[i] = Undefined
	return true, true
}

func (arr *ArrayObject) resize(n int) {
	switch {
	case n < len(arr.dense):
		clear(arr.dense[n:])
		arr.dense = arr.dense[:n]
	case n > len(arr.dense):
		arr.dense = append(arr.dense, make([]Value, n-len(arr.dense))...)
	}
}

// Dense indices enumerate first, then the dynamic bag.
func (arr *ArrayObject) enumNext(cursor int) int {
	n := len(arr.dense)
	if cursor < n {
		return cursor + 1
	}
	if arr.dyn == nil {
		return 0
	}
	next := arr.dyn.next(cursor - n)
	if next == 0 {
		return 0
	}
	return n + next
}

func (arr *ArrayObject) enumName(cursor int) Value {
	n := len(arr.dense)
	if cursor >= 1 && cursor <= n {
		return String(strconv.Itoa(cursor - 1))
	}
	if arr.dyn != nil {
		if q, _, ok := arr.dyn.at(cursor - n); ok {
			return String(q.Local)
		}
	}
	return Undefined
}

func (arr *ArrayObject) enumValue(cursor int) Value {
	n := len(arr.dense)
	if cursor >= 1 && cursor <= n {
		return arr.dense[cursor-1]
	}
	if arr.dyn != nil {
		if _, v, ok := arr.dyn.at(cursor - n); ok {
			return v
		}
	}
	return Undefined
}

// ---------------------------------------------------------------------------
// Array class
// ---------------------------------------------------------------------------

// Sort options.
const (
	sortCaseInsensitive = 1
	sortDescending      = 2
	sortUnique          = 4
	sortIndexed         = 8
	sortNumeric         = 16
)

func arrayClass() *Class {
	c := NewClass(PublicName("Array"), "Object", 0).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &ArrayObject{}, nil }).
		Constructor(arrayInit).
		CallHandler(func(a *Activation, _ Value, args []Value) (Value, error) {
			return a.Construct(a.vm.classes.array, args)
		}).
		Accessor("length",
			func(a *Activation, this Value, _ []Value) (Value, error) {
				arr, err := thisAs[*ArrayObject](a, this, "Array")
				if err != nil {
					return Undefined, err
				}
				return Uint(uint32(len(arr.dense))), nil
			},
			func(a *Activation, this Value, args []Value) (Value, error) {
				arr, err := thisAs[*ArrayObject](a, this, "Array")
				if err != nil {
					return Undefined, err
				}
				n, err := a.ToUint32(arg(args, 0))
				if err != nil {
					return Undefined, err
				}
				if int(n) > len(arr.dense)+maxArrayGrowth {
					return Undefined, a.RangeError(1005, "Array index is not a positive integer (%d).", n)
				}
				a.write(arr)
				arr.resize(int(n))
				return Undefined, nil
			}).
		StaticConst("CASEINSENSITIVE", "uint", Uint(sortCaseInsensitive)).
		StaticConst("DESCENDING", "uint", Uint(sortDescending)).
		StaticConst("UNIQUESORT", "uint", Uint(sortUnique)).
		StaticConst("RETURNINDEXEDARRAY", "uint", Uint(sortIndexed)).
		StaticConst("NUMERIC", "uint", Uint(sortNumeric))

	for _, m := range []struct {
		name string
		fn   func(a *Activation, arr *ArrayObject, args []Value) (Value, error)
	}{
		{"push", arrayPush},
		{"pop", arrayPop},
		{"shift", arrayShift},
		{"unshift", arrayUnshift},
		{"concat", arrayConcat},
		{"join", arrayJoin},
		{"toString", func(a *Activation, arr *ArrayObject, _ []Value) (Value, error) { return arrayJoin(a, arr, nil) }},
		{"reverse", arrayReverse},
		{"slice", arraySlice},
		{"splice", arraySplice},
		{"indexOf", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arraySearch(a, arr, args, false) }},
		{"lastIndexOf", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arraySearch(a, arr, args, true) }},
		{"sort", arraySort},
		{"forEach", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arrayIterate(a, arr, args, iterForEach) }},
		{"map", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arrayIterate(a, arr, args, iterMap) }},
		{"filter", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arrayIterate(a, arr, args, iterFilter) }},
		{"some", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arrayIterate(a, arr, args, iterSome) }},
		{"every", func(a *Activation, arr *ArrayObject, args []Value) (Value, error) { return arrayIterate(a, arr, args, iterEvery) }},
	} {
		fn := m.fn
		c.ProtoMethod(m.name, func(a *Activation, this Value, args []Value) (Value, error) {
			arr, err := thisAs[*ArrayObject](a, this, "Array")
			if err != nil {
				return Undefined, err
			}
			return fn(a, arr, args)
		})
	}
	return c
}

func arrayInit(a *Activation, this Value, args []Value) (Value, error) {
	arr, err := thisAs[*ArrayObject](a, this, "Array")
	if err != nil {
		return Undefined, err
	}
	a.write(arr)
	if len(args) == 1 && args[0].IsNumeric() {
		f := args[0].Float()
		if f < 0 || f != math.Trunc(f) || f > maxArrayGrowth {
			return Undefined, a.RangeError(1005, "Array index is not a positive integer (%s).", NumberToString(f))
		}
		arr.resize(int(f))
		return Undefined, nil
	}
	arr.dense = append(arr.dense[:0], args...)
	return Undefined, nil
}

func arrayPush(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	a.write(arr)
	arr.dense = append(arr.dense, args...)
	return Uint(uint32(len(arr.dense))), nil
}

func arrayPop(a *Activation, arr *ArrayObject, _ []Value) (Value, error) {
	if len(arr.dense) == 0 {
		return Undefined, nil
	}
	a.write(arr)
	v := arr.dense[len(arr.dense)-1]
	arr.resize(len(arr.dense) - 1)
	return v, nil
}

func arrayShift(a *Activation, arr *ArrayObject, _ []Value) (Value, error) {
	if len(arr.dense) == 0 {
		return Undefined, nil
	}
	a.write(arr)
	v := arr.dense[0]
	arr.dense = append(arr.dense[:0], arr.dense[1:]...)
	return v, nil
}

func arrayUnshift(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	a.write(arr)
	arr.dense = append(append([]Value(nil), args...), arr.dense...)
	return Uint(uint32(len(arr.dense))), nil
}

func arrayConcat(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	out := append([]Value(nil), arr.dense...)
	for _, v := range args {
		if other, ok := v.AsObject().(*ArrayObject); ok {
			out = append(out, other.dense...)
		} else {
			out = append(out, v)
		}
	}
	return FromObject(a.NewArray(out)), nil
}

func arrayJoin(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	sep, err := a.argString(args, 0, ",")
	if err != nil {
		return Undefined, err
	}
	parts := make([]string, len(arr.dense))
	for i, v := range arr.dense {
		if v.IsNullish() {
			continue
		}
		s, err := a.ToString(v)
		if err != nil {
			return Undefined, err
		}
		parts[i] = s
	}
	return String(strings.Join(parts, sep)), nil
}

func arrayReverse(a *Activation, arr *ArrayObject, _ []Value) (Value, error) {
	a.write(arr)
	for i, j := 0, len(arr.dense)-1; i < j; i, j = i+1, j-1 {
		arr.dense[i], arr.dense[j] = arr.dense[j], arr.dense[i]
	}
	return FromObject(arr), nil
}

// relativeIndex clamps an index argument the way slice and splice do:
// negative values count from the end.
func relativeIndex(f float64, n int) int {
	if math.IsNaN(f) {
		return 0
	}
	if f < 0 {
		f += float64(n)
		if f < 0 {
			return 0
		}
	}
	if f > float64(n) {
		return n
	}
	return int(f)
}

func arraySlice(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	n := len(arr.dense)
	s, err := a.argNumber(args, 0, 0)
	if err != nil {
		return Undefined, err
	}
	e, err := a.argNumber(args, 1, float64(n))
	if err != nil {
		return Undefined, err
	}
	start, end := relativeIndex(s, n), relativeIndex(e, n)
	if end < start {
		end = start
	}
	return FromObject(a.NewArray(arr.dense[start:end])), nil
}

func arraySplice(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	n := len(arr.dense)
	if len(args) == 0 {
		return FromObject(a.NewArray(nil)), nil
	}
	s, err := a.ToNumber(args[0])
	if err != nil {
		return Undefined, err
	}
	start := relativeIndex(s, n)
	count := n - start
	if len(args) > 1 {
		c, err := a.ToNumber(args[1])
		if err != nil {
			return Undefined, err
		}
		count = relativeIndex(c, n-start)
		if c < 0 {
			count = 0
		}
	}
	removed := a.NewArray(arr.dense[start : start+count])
	var insert []Value
	if len(args) > 2 {
		insert = args[2:]
	}
	a.write(arr)
	tail := append([]Value(nil), arr.dense[start+count:]...)
	arr.dense = append(append(arr.dense[:start], insert...), tail...)
	return FromObject(removed), nil
}

func arraySearch(a *Activation, arr *ArrayObject, args []Value, last bool) (Value, error) {
	target := arg(args, 0)
	n := len(arr.dense)
	if !last {
		from, err := a.argNumber(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		for i := relativeIndex(from, n); i < n; i++ {
			if StrictEquals(arr.dense[i], target) {
				return Int(int32(i)), nil
			}
		}
		return Int(-1), nil
	}
	from, err := a.argNumber(args, 1, float64(n-1))
	if err != nil {
		return Undefined, err
	}
	start := int(from)
	if from < 0 {
		start = n + int(from)
	}
	if start >= n {
		start = n - 1
	}
	for i := start; i >= 0; i-- {
		if StrictEquals(arr.dense[i], target) {
			return Int(int32(i)), nil
		}
	}
	return Int(-1), nil
}

func arraySort(a *Activation, arr *ArrayObject, args []Value) (Value, error) {
	var cmpFn Value
	opts := uint32(0)
	for _, v := range args {
		if isCallable(v) {
			cmpFn = v
			continue
		}
		o, err := a.ToUint32(v)
		if err != nil {
			return Undefined, err
		}
		opts = o
	}

	idx := make([]int, len(arr.dense))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	less := func(x, y Value) bool {
		if sortErr != nil {
			return false
		}
		// undefined sorts after everything.
		if x.IsUndefined() || y.IsUndefined() {
			return !x.IsUndefined() && y.IsUndefined()
		}
		if cmpFn.IsObject() {
			r, err := a.Call(cmpFn, Null, []Value{x, y})
			if err != nil {
				sortErr = err
				return false
			}
			f, err := a.ToNumber(r)
			if err != nil {
				sortErr = err
				return false
			}
			return f < 0
		}
		if opts&sortNumeric != 0 {
			fx, err := a.ToNumber(x)
			if err != nil {
				sortErr = err
				return false
			}
			fy, err := a.ToNumber(y)
			if err != nil {
				sortErr = err
				return false
			}
			return fx < fy
		}
		sx, err := a.ToString(x)
		if err != nil {
			sortErr = err
			return false
		}
		sy, err := a.ToString(y)
		if err != nil {
			sortErr = err
			return false
		}
		if opts&sortCaseInsensitive != 0 {
			sx, sy = strings.ToLower(sx), strings.ToLower(sy)
		}
		return compareUTF16(sx, sy) < 0
	}
	sort.SliceStable(idx, func(i, j int) bool {
		x, y := arr.dense[idx[i]], arr.dense[idx[j]]
		if opts&sortDescending != 0 {
			return less(y, x)
		}
		return less(x, y)
	})
	if sortErr != nil {
		return Undefined, sortErr
	}
	if opts&sortUnique != 0 {
		for k := 1; k < len(idx); k++ {
			if StrictEquals(arr.dense[idx[k-1]], arr.dense[idx[k]]) {
				return Int(0), nil
			}
		}
	}
	if opts&sortIndexed != 0 {
		out := make([]Value, len(idx))
		for i, k := range idx {
			out[i] = Int(int32(k))
		}
		return FromObject(a.NewArray(out)), nil
	}
	sorted := make([]Value, len(idx))
	for i, k := range idx {
		sorted[i] = arr.dense[k]
	}
	a.write(arr)
	copy(arr.dense, sorted)
	return FromObject(arr), nil
}

type iterMode uint8

const (
	iterForEach iterMode = iota
	iterMap
	iterFilter
	iterSome
	iterEvery
)

func arrayIterate(a *Activation, arr *ArrayObject, args []Value, mode iterMode) (Value, error) {
	fn := arg(args, 0)
	if !isCallable(fn) {
		return Undefined, a.TypeError(1034, "Type Coercion failed: cannot convert %s to Function.", a.describeValue(fn))
	}
	thisArg := arg(args, 1)
	var out []Value
	for i := 0; i < len(arr.dense); i++ {
		item := arr.dense[i]
		r, err := a.Call(fn, thisArg, []Value{item, Int(int32(i)), FromObject(arr)})
		if err != nil {
			return Undefined, err
		}
		switch mode {
		case iterMap:
			out = append(out, r)
		case iterFilter:
			if ToBoolean(r) {
				out = append(out, item)
			}
		case iterSome:
			if ToBoolean(r) {
				return True, nil
			}
		case iterEvery:
			if !ToBoolean(r) {
				return False, nil
			}
		}
	}
	switch mode {
	case iterMap, iterFilter:
		return FromObject(a.NewArray(out)), nil
	case iterSome:
		return False, nil
	case iterEvery:
		return True, nil
	}
	return Undefined, nil
}
