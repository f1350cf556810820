package vm

import (
	"errors"
	"testing"
	"time"
)

func newTestVM(t *testing.T, opts Options) *VM {
	t.Helper()
	vm, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return vm
}

// run executes fn as one top-level execution and fails the test on error.
func run(t *testing.T, vm *VM, fn func(a *Activation) error) {
	t.Helper()
	if err := vm.enter(fn); err != nil {
		t.Fatalf("execution failed: %v", err)
	}
}

// scriptError asserts err is a script error of class with the given id.
func scriptError(t *testing.T, err error, class string, id int) {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v (%T), want script %s", err, err, class)
	}
	if e.ClassName() != class || (id != 0 && e.ErrorID() != id) {
		t.Errorf("error = %s #%d (%q), want %s #%d", e.ClassName(), e.ErrorID(), e.Error(), class, id)
	}
}

func mustDefinition(t *testing.T, vm *VM, name string) Value {
	t.Helper()
	v, err := vm.GetDefinition(name)
	if err != nil {
		t.Fatalf("GetDefinition(%q): %v", name, err)
	}
	return v
}

func mustCall(t *testing.T, vm *VM, fn Value, args ...Value) Value {
	t.Helper()
	v, err := vm.Call(fn, Null, args...)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return v
}

// nativeFunction wraps fn as a script Function.
func nativeFunction(a *Activation, fn NativeMethod) Value {
	return FromObject(a.NewFunction(NewNativeMethod("test", fn), nil))
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewPrimordial(t *testing.T) {
	vm := newTestVM(t, Options{})
	if !vm.Worker().IsPrimordial() {
		t.Error("default worker is not primordial")
	}
	if vm.Worker().State() != WorkerRunning {
		t.Errorf("state = %s, want running", vm.Worker().State())
	}
	if got := vm.Options().MaxCallDepth; got != DefaultMaxCallDepth {
		t.Errorf("MaxCallDepth = %d, want %d", got, DefaultMaxCallDepth)
	}
	if _, ok := vm.Registry().Lookup(vm.Worker().ID()); !ok {
		t.Error("primordial worker not registered")
	}
}

func TestGetDefinition(t *testing.T) {
	vm := newTestVM(t, Options{})
	for _, name := range []string{"Object", "flash.geom.Point", "flash.geom::Rectangle", "flash.utils.getTimer", "NaN"} {
		if v := mustDefinition(t, vm, name); v.IsUndefined() {
			t.Errorf("GetDefinition(%q) = undefined", name)
		}
	}
	_, err := vm.GetDefinition("no.such.Thing")
	scriptError(t, err, "ReferenceError", 1065)
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

func TestTimersFireOnTick(t *testing.T) {
	now := time.Unix(1000, 0)
	vm := newTestVM(t, Options{Clock: func() time.Time { return now }})
	setTimeout := mustDefinition(t, vm, "flash.utils.setTimeout")
	setInterval := mustDefinition(t, vm, "flash.utils.setInterval")
	clearInterval := mustDefinition(t, vm, "flash.utils.clearInterval")

	var fired []string
	record := func(tag string) Value {
		var fn Value
		run(t, vm, func(a *Activation) error {
			fn = nativeFunction(a, func(a *Activation, _ Value, args []Value) (Value, error) {
				s := tag
				if len(args) > 0 {
					s += ":" + PrimitiveToString(args[0])
				}
				fired = append(fired, s)
				return Undefined, nil
			})
			return nil
		})
		vm.Pin(fn)
		return fn
	}

	mustCall(t, vm, setTimeout, record("late"), Int(50))
	mustCall(t, vm, setTimeout, record("early"), Int(10), String("x"))
	id := mustCall(t, vm, setInterval, record("tick"), Int(20))

	if err := vm.Tick(now.Add(5 * time.Millisecond)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(fired) != 0 {
		t.Fatalf("fired = %v before any timer was due", fired)
	}
	if err := vm.Tick(now.Add(60 * time.Millisecond)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []string{"early:x", "tick", "late"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %q, want %q", i, fired[i], want[i])
		}
	}

	fired = nil
	if err := vm.Tick(now.Add(100 * time.Millisecond)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(fired) != 1 || fired[0] != "tick" {
		t.Errorf("fired = %v, want the interval to repeat once", fired)
	}

	mustCall(t, vm, clearInterval, id)
	fired = nil
	if err := vm.Tick(now.Add(time.Second)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(fired) != 0 {
		t.Errorf("fired = %v after clearInterval", fired)
	}
}

func TestTimerScriptErrorDoesNotStopTick(t *testing.T) {
	now := time.Unix(0, 0)
	vm := newTestVM(t, Options{Clock: func() time.Time { return now }})
	setTimeout := mustDefinition(t, vm, "flash.utils.setTimeout")
	ran := false
	var bad, good Value
	run(t, vm, func(a *Activation) error {
		bad = nativeFunction(a, func(a *Activation, _ Value, _ []Value) (Value, error) {
			return Undefined, a.TypeError(1009, "boom")
		})
		good = nativeFunction(a, func(*Activation, Value, []Value) (Value, error) {
			ran = true
			return Undefined, nil
		})
		return nil
	})
	mustCall(t, vm, setTimeout, bad, Int(0))
	mustCall(t, vm, setTimeout, good, Int(0))
	if err := vm.Tick(now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !ran {
		t.Error("second timer did not run after the first threw")
	}
}

func TestGetTimerUsesClock(t *testing.T) {
	now := time.Unix(50, 0)
	vm := newTestVM(t, Options{Clock: func() time.Time { return now }})
	getTimer := mustDefinition(t, vm, "flash.utils.getTimer")
	now = now.Add(1500 * time.Millisecond)
	if got := mustCall(t, vm, getTimer); got.AsInt() != 1500 {
		t.Errorf("getTimer() = %v, want 1500", got)
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

func TestCollectKeepsPinnedValues(t *testing.T) {
	vm := newTestVM(t, Options{})
	p, err := vm.Construct("flash.geom.Point", Int(3), Int(4))
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	vm.Pin(p)
	if err := vm.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got, err := vm.GetProperty(p, "length")
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if got.Float() != 5 {
		t.Errorf("length = %v, want 5", got)
	}
	vm.Unpin(p)
}

func TestIncrementalCycleTracesObjectsBuiltMidCycle(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *Activation, x Value) Value
	}{
		{"array", func(a *Activation, x Value) Value { return FromObject(a.NewArray([]Value{x})) }},
		{"object", func(a *Activation, x Value) Value { return FromObject(a.NewObjectFrom("x", x)) }},
		{"closure", func(a *Activation, x Value) Value {
			return FromObject(a.bindMethod(NewNativeMethod("f", nil), x, nil))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, Options{})
			var holder, x Value
			run(t, vm, func(a *Activation) error {
				holder = FromObject(a.NewObject())
				x = FromObject(a.NewObject())
				return a.Set(holder, "x", x)
			})
			vm.Pin(holder)

			if done, err := vm.Heap().Step(0); err != nil || done {
				t.Fatalf("Step(0) = %v, %v; want a cycle in progress", done, err)
			}

			// x moves from the scanned holder into an object born mid-cycle.
			var moved Value
			run(t, vm, func(a *Activation) error {
				v, err := a.Get(holder, "x")
				if err != nil {
					return err
				}
				if _, err := a.DeleteProperty(holder, NewMultiname("x")); err != nil {
					return err
				}
				moved = tt.build(a, v)
				return nil
			})
			vm.Pin(moved)

			if err := vm.Collect(); err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if !vm.Heap().Contains(moved.AsObject()) {
				t.Fatal("object built during marking was swept")
			}
			if !vm.Heap().Contains(x.AsObject()) {
				t.Error("value reachable only through an object built during marking was swept")
			}
		})
	}
}

func TestPruneDeadWrappers(t *testing.T) {
	vm := newTestVM(t, Options{})
	var kept Value
	run(t, vm, func(a *Activation) error {
		if _, err := a.wrapChannel(NewChannelCore(nil, nil)); err != nil {
			return err
		}
		m, err := a.wrapChannel(NewChannelCore(nil, nil))
		kept = FromObject(m)
		return err
	})
	vm.Pin(kept)
	if n := len(vm.channelWrappers); n != 2 {
		t.Fatalf("channel wrappers = %d, want 2", n)
	}
	if err := vm.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if n := len(vm.channelWrappers); n != 1 {
		t.Errorf("channel wrappers after Collect = %d, want 1", n)
	}
	core := kept.AsObject().(*MessageChannelObject).Core()
	if _, ok := vm.channelWrappers[core]; !ok {
		t.Error("the live wrapper was pruned")
	}
}
