package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/avm2/vm/abc"
)

func speaks(word string) NativeMethod {
	return func(*Activation, Value, []Value) (Value, error) { return String(word), nil }
}

// classFor materialises name in the application domain.
func classFor(t *testing.T, vm *VM, name string) (*ClassObject, error) {
	t.Helper()
	var cls *ClassObject
	err := vm.enter(func(a *Activation) error {
		c, err := vm.AppDomain().MustClass(a, PublicName(name))
		cls = c
		return err
	})
	return cls, err
}

func mustClassFor(t *testing.T, vm *VM, name string) *ClassObject {
	t.Helper()
	cls, err := classFor(t, vm, name)
	if err != nil {
		t.Fatalf("class %s: %v", name, err)
	}
	return cls
}

func defineAll(t *testing.T, vm *VM, defs ...*Class) {
	t.Helper()
	for _, def := range defs {
		if err := vm.AppDomain().Define(def); err != nil {
			t.Fatalf("Define %s: %v", def.Name, err)
		}
	}
}

func verification(t *testing.T, err error, want string) {
	t.Helper()
	var ve *VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want a VerificationError", err)
	}
	if !strings.Contains(ve.Reason, want) {
		t.Errorf("reason = %q, want it to mention %q", ve.Reason, want)
	}
}

// ---------------------------------------------------------------------------
// Accessor override across a scripted hierarchy
// ---------------------------------------------------------------------------

// accessorProgram declares A with a Number backing slot in the package
// internal namespace and a public x accessor pair, and B extends A
// overriding the getter to return twice the stored value.
func accessorProgram() *program {
	p := newProgram()
	b := p.b
	internal := b.Namespace(abc.NSPackageInternal, "")
	backing := b.QName(internal, "_x")
	x := b.PublicName("", "x")
	a, number := b.PublicName("", "A"), b.PublicName("", "Number")

	get := p.method("get x", nil, "Number", abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpGetProperty, backing).Op(abc.OpReturnValue))
	set := p.method("set x", p.params("Number"), "void", abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpGetLocal1).Op(abc.OpSetProperty, backing).Op(abc.OpReturnVoid))
	p.class(abc.Class{
		Name: a, Super: b.PublicName("", "Object"),
		Traits: []abc.Trait{
			{Name: backing, Kind: abc.TraitSlot, Type: number, Value: abc.Const{Kind: abc.ConstInt, Index: b.Int(0)}},
			{Name: x, Kind: abc.TraitGetter, Method: get},
			{Name: x, Kind: abc.TraitSetter, Method: set},
		},
	})

	doubled := p.method("get x", nil, "Number", abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpGetProperty, backing).
		Op(abc.OpPushByte, 2).Op(abc.OpMultiply).
		Op(abc.OpReturnValue))
	p.class(abc.Class{
		Name: b.PublicName("", "B"), Super: a,
		Traits: []abc.Trait{{Name: x, Kind: abc.TraitGetter, Attr: abc.AttrOverride, Method: doubled}},
	})
	return p
}

func TestOverriddenGetterDispatchesToSubclass(t *testing.T) {
	vm := accessorProgram().load(t, Options{})

	for _, tt := range []struct {
		class string
		want  float64
	}{
		{"A", 5},
		{"B", 10},
	} {
		obj, err := vm.Construct(tt.class)
		if err != nil {
			t.Fatalf("Construct %s: %v", tt.class, err)
		}
		vm.Pin(obj)
		run(t, vm, func(a *Activation) error { return a.Set(obj, "x", Int(5)) })
		got, err := vm.GetProperty(obj, "x")
		if err != nil {
			t.Fatalf("%s.x: %v", tt.class, err)
		}
		if got.Kind() != KindNumber || got.Float() != tt.want {
			t.Errorf("%s.x = %v (%s), want the Number %v", tt.class, got, got.Kind(), tt.want)
		}
	}

	aCls, bCls := mustClassFor(t, vm, "A"), mustClassFor(t, vm, "B")
	pa, ok := aCls.InstanceVTable().Get(PublicName("x"))
	if !ok || pa.Kind != PropVirtual {
		t.Fatalf("A.x = %v, %v; want a virtual property", pa, ok)
	}
	pb, _ := bCls.InstanceVTable().Get(PublicName("x"))
	if pa.Get != pb.Get || pa.Set != pb.Set {
		t.Errorf("B.x = %v, want the dispatch ids of A.x %v", pb, pa)
	}
	if def := bCls.InstanceVTable().DefiningClass(pb.Get); def != bCls {
		t.Errorf("getter defined by %v, want B", def.Name())
	}
	if def := bCls.InstanceVTable().DefiningClass(pb.Set); def != aCls {
		t.Errorf("setter defined by %v, want A", def.Name())
	}

	// A call site compiled against A's dispatch id reaches B's getter.
	obj, _ := vm.Construct("B")
	vm.Pin(obj)
	run(t, vm, func(a *Activation) error {
		if err := a.Set(obj, "x", Int(3)); err != nil {
			return err
		}
		got, err := a.callMethodDisp(obj, pa.Get, nil)
		if err != nil {
			return err
		}
		if got.Float() != 6 {
			t.Errorf("dispatch through A's getter id = %v, want 6", got)
		}
		return nil
	})
}

func TestVTableIsDeterministic(t *testing.T) {
	vm := accessorProgram().load(t, Options{})
	bCls := mustClassFor(t, vm, "B")
	if bCls.InstanceVTable() != bCls.InstanceVTable() {
		t.Errorf("InstanceVTable returned different tables")
	}
	if again := mustClassFor(t, vm, "B"); again != bCls {
		t.Errorf("second lookup materialised a new class object")
	}

	other := accessorProgram().load(t, Options{})
	for _, name := range []string{"A", "B"} {
		want := mustClassFor(t, vm, name).InstanceVTable().Dump()
		got := mustClassFor(t, other, name).InstanceVTable().Dump()
		if got != want {
			t.Errorf("%s layout differs between loads:\n%s\nwant\n%s", name, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Override rules
// ---------------------------------------------------------------------------

func TestOverrideKeepsDispatchID(t *testing.T) {
	vm := newTestVM(t, Options{})
	animal := NewClass(PublicName("Animal"), "Object", 0).Method("speak", speaks("..."))
	dog := NewClass(PublicName("Dog"), "Animal", 0)
	dog.Instance = append(dog.Instance, &Trait{
		Name: PublicName("speak"), Kind: TraitMethod, Override: true,
		Method: NewNativeMethod("speak", speaks("woof")),
	})
	defineAll(t, vm, animal, dog)

	animalCls, dogCls := mustClassFor(t, vm, "Animal"), mustClassFor(t, vm, "Dog")
	pa, _ := animalCls.InstanceVTable().Get(PublicName("speak"))
	pd, _ := dogCls.InstanceVTable().Get(PublicName("speak"))
	if pa.Kind != PropMethod || pa.Disp != pd.Disp {
		t.Fatalf("Dog.speak = %v, want Animal.speak's %v", pd, pa)
	}
	if got, want := dogCls.InstanceVTable().MethodCount(), animalCls.InstanceVTable().MethodCount(); got != want {
		t.Errorf("Dog has %d methods, want %d", got, want)
	}

	for _, tt := range []struct {
		class, want string
	}{
		{"Animal", "..."},
		{"Dog", "woof"},
	} {
		obj, err := vm.Construct(tt.class)
		if err != nil {
			t.Fatalf("Construct %s: %v", tt.class, err)
		}
		vm.Pin(obj)
		if got, err := vm.Invoke(obj, "speak"); err != nil || got.AsString() != tt.want {
			t.Errorf("%s.speak() = %v, %v; want %s", tt.class, got, err, tt.want)
		}
		run(t, vm, func(a *Activation) error {
			got, err := a.callMethodDisp(obj, pa.Disp, nil)
			if err != nil {
				return err
			}
			if got.AsString() != tt.want {
				t.Errorf("%s dispatch %d = %v, want %s", tt.class, pa.Disp, got, tt.want)
			}
			return nil
		})
	}
}

func TestIllegalOverride(t *testing.T) {
	scripted := func(name string, params int) *Method {
		return &Method{Name: name, Params: make([]Param, params)}
	}
	tests := []struct {
		name  string
		base  func(c *Class)
		trait *Trait
	}{
		{
			name:  "missing override attribute",
			base:  func(c *Class) { c.Method("speak", speaks("...")) },
			trait: &Trait{Name: PublicName("speak"), Kind: TraitMethod, Method: NewNativeMethod("speak", speaks("woof"))},
		},
		{
			name: "final method",
			base: func(c *Class) {
				c.Instance = append(c.Instance, &Trait{Name: PublicName("speak"), Kind: TraitMethod, Final: true, Method: NewNativeMethod("speak", speaks("..."))})
			},
			trait: &Trait{Name: PublicName("speak"), Kind: TraitMethod, Override: true, Method: NewNativeMethod("speak", speaks("woof"))},
		},
		{
			name:  "nothing to override",
			base:  func(*Class) {},
			trait: &Trait{Name: PublicName("fly"), Kind: TraitMethod, Override: true, Method: NewNativeMethod("fly", speaks("up"))},
		},
		{
			name:  "getter over inherited slot",
			base:  func(c *Class) { c.Slot("x", "Number", Number(0)) },
			trait: &Trait{Name: PublicName("x"), Kind: TraitGetter, Override: true, Method: NewNativeMethod("x", speaks("1"))},
		},
		{
			name:  "method over getter",
			base:  func(c *Class) { c.Getter("x", speaks("1")) },
			trait: &Trait{Name: PublicName("x"), Kind: TraitMethod, Override: true, Method: NewNativeMethod("x", speaks("2"))},
		},
		{
			name: "different arity",
			base: func(c *Class) {
				c.Instance = append(c.Instance, &Trait{Name: PublicName("m"), Kind: TraitMethod, Method: scripted("m", 1)})
			},
			trait: &Trait{Name: PublicName("m"), Kind: TraitMethod, Override: true, Method: scripted("m", 2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, Options{})
			base := NewClass(PublicName("Base"), "Object", 0)
			tt.base(base)
			sub := NewClass(PublicName("Sub"), "Base", 0)
			sub.Instance = append(sub.Instance, tt.trait)
			defineAll(t, vm, base, sub)

			_, err := classFor(t, vm, "Sub")
			verification(t, err, "Illegal override")
			if _, cached := vm.AppDomain().classes[PublicName("Sub")]; cached {
				t.Errorf("rejected class was cached")
			}
			mustClassFor(t, vm, "Base")
		})
	}
}

func TestMissingInterfaceMethod(t *testing.T) {
	vm := newTestVM(t, Options{})
	defineAll(t, vm,
		NewClass(PublicName("IRunner"), "", ClassInterface).Method("run", speaks("")),
		NewClass(PublicName("Sitter"), "Object", 0).Implements("IRunner"),
		NewClass(PublicName("Runner"), "Object", 0).Implements("IRunner").Method("run", speaks("running")),
	)

	_, err := classFor(t, vm, "Sitter")
	verification(t, err, "#1144")

	runner := mustClassFor(t, vm, "Runner")
	if !runner.IsSubclassOf(mustClassFor(t, vm, "IRunner")) {
		t.Errorf("Runner is not an IRunner")
	}
	obj, err := vm.Construct("Runner")
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	vm.Pin(obj)
	if got, err := vm.Invoke(obj, "run"); err != nil || got.AsString() != "running" {
		t.Errorf("run() = %v, %v; want running", got, err)
	}
}

func TestSuperclassCycle(t *testing.T) {
	vm := newTestVM(t, Options{})
	defineAll(t, vm,
		NewClass(PublicName("X"), "Y", 0),
		NewClass(PublicName("Y"), "X", 0),
		NewClass(PublicName("Z"), "Object", 0),
	)

	_, err := classFor(t, vm, "X")
	verification(t, err, "cycle")
	_, err = classFor(t, vm, "Y")
	verification(t, err, "cycle")
	mustClassFor(t, vm, "Z")
}

// ---------------------------------------------------------------------------
// Static initialisers
// ---------------------------------------------------------------------------

func TestFailedStaticInitialiserIsRetried(t *testing.T) {
	vm := newTestVM(t, Options{})
	q := PublicName("Flaky")
	calls := 0
	def := NewClass(q, "Object", 0)
	def.ClassInit = NewNativeMethod("Flaky$cinit", func(a *Activation, this Value, _ []Value) (Value, error) {
		calls++
		if calls == 1 {
			return Undefined, a.TypeError(1009, "first run fails")
		}
		self, err := vm.AppDomain().ClassFor(a, q)
		if err != nil {
			return Undefined, err
		}
		if FromObject(self) != this {
			t.Errorf("static initialiser saw a different class object")
		}
		return Undefined, nil
	})
	defineAll(t, vm, def)

	_, err := classFor(t, vm, "Flaky")
	scriptError(t, err, "TypeError", 1009)
	if _, cached := vm.AppDomain().classes[q]; cached {
		t.Fatalf("class cached after its initialiser failed")
	}

	first := mustClassFor(t, vm, "Flaky")
	second := mustClassFor(t, vm, "Flaky")
	if first != second {
		t.Errorf("class materialised twice after success")
	}
	if calls != 2 {
		t.Errorf("initialiser ran %d times, want 2", calls)
	}
}
