package vm

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/avm2/vm/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "shared.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sharedObject(t *testing.T, vm *VM, name string) Value {
	t.Helper()
	cls := mustDefinition(t, vm, "flash.net.SharedObject")
	so, err := vm.Invoke(cls, "getLocal", String(name))
	if err != nil {
		t.Fatalf("getLocal(%q): %v", name, err)
	}
	vm.Pin(so)
	return so
}

func TestSharedObjectPersistsAcrossVMs(t *testing.T) {
	st := openStore(t)
	first := newTestVM(t, Options{Store: st})
	so := sharedObject(t, first, "prefs")
	data, err := first.GetProperty(so, "data")
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	run(t, first, func(a *Activation) error {
		if err := a.Set(data, "volume", Number(0.75)); err != nil {
			return err
		}
		return a.Set(data, "tags", FromObject(a.NewArray([]Value{String("a"), String("b")})))
	})
	status := invokeString(t, first, so, "flush")
	if status != "flushed" {
		t.Errorf("flush() = %q, want flushed", status)
	}
	if again := sharedObject(t, first, "prefs"); again.AsObject() != so.AsObject() {
		t.Error("getLocal returned a second instance for the same name")
	}

	second := newTestVM(t, Options{Store: st})
	so2 := sharedObject(t, second, "prefs")
	data2, _ := second.GetProperty(so2, "data")
	vol, err := second.GetProperty(data2, "volume")
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	if vol.Float() != 0.75 {
		t.Errorf("volume = %v, want 0.75", vol)
	}
	tags, _ := second.GetProperty(data2, "tags")
	if arr, ok := tags.AsObject().(*ArrayObject); !ok || len(arr.dense) != 2 {
		t.Errorf("tags = %v, want a 2-element Array", tags)
	}

	if _, err := second.Invoke(so2, "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	third := newTestVM(t, Options{Store: st})
	data3, _ := third.GetProperty(sharedObject(t, third, "prefs"), "data")
	if v, _ := third.GetProperty(data3, "volume"); !v.IsUndefined() {
		t.Errorf("volume after clear = %v, want undefined", v)
	}
}

func TestSharedObjectWithoutStore(t *testing.T) {
	vm := newTestVM(t, Options{})
	so := sharedObject(t, vm, "memory")
	if got := invokeString(t, vm, so, "flush"); got != "flushed" {
		t.Errorf("flush() = %q, want flushed", got)
	}
	size, err := vm.GetProperty(so, "size")
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size.Float() <= 0 {
		t.Errorf("size = %v, want the encoded length", size)
	}
	if err := vm.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSharedObjectTypedData(t *testing.T) {
	st := openStore(t)
	first := newTestVM(t, Options{Store: st})
	register := mustDefinition(t, first, "flash.net.registerClassAlias")
	mustCall(t, first, register, String("geom.Point"), mustDefinition(t, first, "flash.geom.Point"))
	so := sharedObject(t, first, "typed")
	data, _ := first.GetProperty(so, "data")
	p := mustConstruct(t, first, "flash.geom.Point", Int(3), Int(4))
	run(t, first, func(a *Activation) error { return a.Set(data, "where", p) })
	invokeString(t, first, so, "flush")

	second := newTestVM(t, Options{Store: st})
	mustCall(t, second, mustDefinition(t, second, "flash.net.registerClassAlias"),
		String("geom.Point"), mustDefinition(t, second, "flash.geom.Point"))
	data2, _ := second.GetProperty(sharedObject(t, second, "typed"), "data")
	where, err := second.GetProperty(data2, "where")
	if err != nil {
		t.Fatalf("where: %v", err)
	}
	if got := invokeString(t, second, where, "toString"); got != "(x=3, y=4)" {
		t.Errorf("restored point = %s, want (x=3, y=4)", got)
	}
}

func TestObjectEncodingDynamicPropertyWriter(t *testing.T) {
	vm := newTestVM(t, Options{})
	enc := mustDefinition(t, vm, "flash.net.ObjectEncoding")
	v, err := vm.GetProperty(enc, "dynamicPropertyWriter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !v.IsNullish() {
		t.Errorf("dynamicPropertyWriter = %v, want null", v)
	}
	run(t, vm, func(a *Activation) error { return a.Set(enc, "dynamicPropertyWriter", Null) })
	err = vm.enter(func(a *Activation) error { return a.Set(enc, "dynamicPropertyWriter", FromObject(a.NewObject())) })
	var u *UnsupportedError
	if !errors.As(err, &u) {
		t.Errorf("set writer err = %v, want UnsupportedError", err)
	}
}
