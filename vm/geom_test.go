package vm

import (
	"testing"
)

func invokeString(t *testing.T, vm *VM, recv Value, method string, args ...Value) string {
	t.Helper()
	v, err := vm.Invoke(recv, method, args...)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	if !v.IsString() {
		t.Fatalf("%s returned %v, want a String", method, v)
	}
	return v.AsString()
}

func mustConstruct(t *testing.T, vm *VM, class string, args ...Value) Value {
	t.Helper()
	v, err := vm.Construct(class, args...)
	if err != nil {
		t.Fatalf("new %s: %v", class, err)
	}
	vm.Pin(v)
	return v
}

func TestPointArithmetic(t *testing.T) {
	vm := newTestVM(t, Options{})
	p := mustConstruct(t, vm, "flash.geom.Point", Int(1), Int(2))
	q := mustConstruct(t, vm, "flash.geom.Point", Number(0.5), Int(-1))

	sum, err := vm.Invoke(p, "add", q)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := invokeString(t, vm, sum, "toString"); got != "(x=1.5, y=1)" {
		t.Errorf("p.add(q) = %s, want (x=1.5, y=1)", got)
	}
	if got := invokeString(t, vm, p, "toString"); got != "(x=1, y=2)" {
		t.Errorf("add mutated receiver: %s", got)
	}

	if _, err := vm.Invoke(p, "offset", Int(2), Int(2)); err != nil {
		t.Fatalf("offset: %v", err)
	}
	if got := invokeString(t, vm, p, "toString"); got != "(x=3, y=4)" {
		t.Errorf("after offset = %s, want (x=3, y=4)", got)
	}
	point := mustDefinition(t, vm, "flash.geom.Point")
	d, err := vm.Invoke(point, "distance", p, mustConstruct(t, vm, "flash.geom.Point"))
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d.Float() != 5 {
		t.Errorf("Point.distance = %v, want 5", d)
	}
	if _, err := vm.Invoke(p, "normalize", Int(10)); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := invokeString(t, vm, p, "toString"); got != "(x=6, y=8)" {
		t.Errorf("after normalize = %s, want (x=6, y=8)", got)
	}
}

func TestRectangleGeometry(t *testing.T) {
	vm := newTestVM(t, Options{})
	r := mustConstruct(t, vm, "flash.geom.Rectangle", Int(0), Int(0), Int(10), Int(10))
	s := mustConstruct(t, vm, "flash.geom.Rectangle", Int(5), Int(5), Int(10), Int(10))

	tests := []struct {
		method string
		args   []Value
		want   string
	}{
		{"intersection", []Value{s}, "(x=5, y=5, w=5, h=5)"},
		{"union", []Value{s}, "(x=0, y=0, w=15, h=15)"},
		{"clone", nil, "(x=0, y=0, w=10, h=10)"},
	}
	for _, tt := range tests {
		v, err := vm.Invoke(r, tt.method, tt.args...)
		if err != nil {
			t.Fatalf("%s: %v", tt.method, err)
		}
		if got := invokeString(t, vm, v, "toString"); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.method, got, tt.want)
		}
	}

	for _, tc := range []struct {
		x, y Value
		want bool
	}{
		{Int(0), Int(0), true},
		{Int(9), Number(9.5), true},
		{Int(10), Int(5), false},
		{Int(-1), Int(5), false},
	} {
		v, err := vm.Invoke(r, "contains", tc.x, tc.y)
		if err != nil {
			t.Fatalf("contains: %v", err)
		}
		if v.AsBool() != tc.want {
			t.Errorf("contains(%v, %v) = %v, want %v", tc.x, tc.y, v, tc.want)
		}
	}

	if _, err := vm.Invoke(r, "inflate", Int(1), Int(2)); err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if got := invokeString(t, vm, r, "toString"); got != "(x=-1, y=-2, w=12, h=14)" {
		t.Errorf("after inflate = %s", got)
	}
	right, err := vm.GetProperty(r, "right")
	if err != nil {
		t.Fatalf("right: %v", err)
	}
	if right.Float() != 11 {
		t.Errorf("right = %v, want 11", right)
	}
}

func TestColorTransformConcat(t *testing.T) {
	vm := newTestVM(t, Options{})
	a := mustConstruct(t, vm, "flash.geom.ColorTransform", Number(0.5), Int(1), Int(1), Int(1), Int(10))
	b := mustConstruct(t, vm, "flash.geom.ColorTransform", Number(0.5), Int(1), Int(1), Int(1), Int(20))
	if _, err := vm.Invoke(a, "concat", b); err != nil {
		t.Fatalf("concat: %v", err)
	}
	mul, _ := vm.GetProperty(a, "redMultiplier")
	off, _ := vm.GetProperty(a, "redOffset")
	if mul.Float() != 0.25 || off.Float() != 20 {
		t.Errorf("concat red = (%v, %v), want (0.25, 20)", mul, off)
	}

	if err := vm.enter(func(act *Activation) error {
		return act.Set(a, "color", Uint(0x123456))
	}); err != nil {
		t.Fatalf("set color: %v", err)
	}
	color, _ := vm.GetProperty(a, "color")
	if color.Float() != 0x123456 {
		t.Errorf("color = %#x, want 0x123456", uint32(color.Float()))
	}
	rm, _ := vm.GetProperty(a, "redMultiplier")
	if rm.Float() != 0 {
		t.Errorf("setting color left redMultiplier = %v, want 0", rm)
	}
}
