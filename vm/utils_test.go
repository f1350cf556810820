package vm

import (
	"testing"
)

func attrValue(x *XMLObject, name string) (string, bool) {
	for _, at := range x.attrs {
		if at.local == name {
			return at.value, true
		}
	}
	return "", false
}

func TestDescribeTypePoint(t *testing.T) {
	vm := newTestVM(t, Options{})
	p := mustConstruct(t, vm, "flash.geom.Point", Int(1), Int(2))
	run(t, vm, func(a *Activation) error {
		x, err := a.describeType(p)
		if err != nil {
			return err
		}
		if name, _ := attrValue(x, "name"); name != "flash.geom::Point" {
			t.Errorf("name = %q, want flash.geom::Point", name)
		}
		if base, _ := attrValue(x, "base"); base != "Object" {
			t.Errorf("base = %q, want Object", base)
		}
		found := map[string]string{}
		for _, c := range x.children {
			if n, ok := attrValue(c, "name"); ok {
				found[n] = c.local
			}
		}
		for name, tag := range map[string]string{"x": "variable", "y": "variable", "length": "accessor", "add": "method"} {
			if found[name] != tag {
				t.Errorf("member %s = <%s>, want <%s>", name, found[name], tag)
			}
		}
		return nil
	})
}

func TestDescribeTypeClass(t *testing.T) {
	vm := newTestVM(t, Options{})
	cls := mustDefinition(t, vm, "flash.geom.Point")
	run(t, vm, func(a *Activation) error {
		x, err := a.describeType(cls)
		if err != nil {
			return err
		}
		if s, _ := attrValue(x, "isStatic"); s != "true" {
			t.Errorf("isStatic = %q, want true", s)
		}
		var factory *XMLObject
		statics := map[string]bool{}
		for _, c := range x.children {
			if c.local == "factory" {
				factory = c
			}
			if n, ok := attrValue(c, "name"); ok {
				statics[n] = true
			}
		}
		if factory == nil {
			t.Fatal("no <factory> element")
		}
		if !statics["distance"] || !statics["polar"] {
			t.Errorf("static members = %v, want distance and polar", statics)
		}
		return nil
	})
}

func TestQualifiedClassName(t *testing.T) {
	vm := newTestVM(t, Options{})
	p := mustConstruct(t, vm, "flash.geom.Point")
	tests := []struct {
		in   Value
		want string
	}{
		{Undefined, "void"},
		{Null, "null"},
		{Int(3), "int"},
		{Number(3), "int"},
		{Number(3.5), "Number"},
		{Uint(4000000000), "uint"},
		{String("s"), "String"},
		{True, "Boolean"},
		{p, "flash.geom::Point"},
		{mustDefinition(t, vm, "flash.geom.Point"), "flash.geom::Point"},
	}
	run(t, vm, func(a *Activation) error {
		for _, tt := range tests {
			if got := a.qualifiedClassName(tt.in); got != tt.want {
				t.Errorf("getQualifiedClassName(%v) = %q, want %q", tt.in, got, tt.want)
			}
		}
		return nil
	})

	super := mustDefinition(t, vm, "flash.utils.getQualifiedSuperclassName")
	if got := mustCall(t, vm, super, p); got.AsString() != "Object" {
		t.Errorf("getQualifiedSuperclassName(point) = %v, want Object", got)
	}
	if got := mustCall(t, vm, super, mustDefinition(t, vm, "Object")); !got.IsNullish() {
		t.Errorf("getQualifiedSuperclassName(Object) = %v, want null", got)
	}
}

func TestEscapeMultiByte(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "abc"},
		{"a b", "a%20b"},
		{"é", "%C3%A9"},
		{"@*_+-./", "@*_+-./"},
	}
	for _, tt := range tests {
		got := EscapeMultiByte(tt.in)
		if got != tt.want {
			t.Errorf("EscapeMultiByte(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if back := UnescapeMultiByte(got); back != tt.in {
			t.Errorf("UnescapeMultiByte(%q) = %q, want %q", got, back, tt.in)
		}
	}
	if got := UnescapeMultiByte("%u00e9%zz"); got != "é%zz" {
		t.Errorf("UnescapeMultiByte = %q, want é%%zz", got)
	}
}

func TestClassAliases(t *testing.T) {
	vm := newTestVM(t, Options{})
	register := mustDefinition(t, vm, "flash.net.registerClassAlias")
	lookup := mustDefinition(t, vm, "flash.net.getClassByAlias")
	point := mustDefinition(t, vm, "flash.geom.Point")

	mustCall(t, vm, register, String("pt"), point)
	got := mustCall(t, vm, lookup, String("pt"))
	if got.AsObject() != point.AsObject() {
		t.Errorf("getClassByAlias(pt) = %v, want Point", got)
	}
	_, err := vm.Call(lookup, Null, String("missing"))
	scriptError(t, err, "ReferenceError", 1014)
	_, err = vm.Call(register, Null, Null, point)
	scriptError(t, err, "TypeError", 2007)
}
