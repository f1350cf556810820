package vm

// ClassAttr holds the attribute flags of a class definition.
type ClassAttr uint8

const (
	ClassSealed ClassAttr = 1 << iota
	ClassFinal
	ClassInterface
	// ClassDisplayNode marks classes whose instances are display-tree
	// nodes. Constructing an instance of such a class (or a subclass)
	// notifies the display layer through Options.OnConstruct.
	ClassDisplayNode
	// classPrimitive marks String, Number, int, uint and Boolean, whose
	// instances are primitives: construction runs the call handler.
	classPrimitive
)

func (a ClassAttr) Has(flag ClassAttr) bool { return a&flag != 0 }

// TraitKind distinguishes trait declarations.
type TraitKind uint8

const (
	TraitSlot TraitKind = iota
	TraitConst
	TraitMethod
	TraitGetter
	TraitSetter
)

var traitKindNames = [...]string{"slot", "const", "method", "getter", "setter"}

func (k TraitKind) String() string {
	if int(k) < len(traitKindNames) {
		return traitKindNames[k]
	}
	return "trait"
}

// Trait is one member declaration of a class.
type Trait struct {
	Name     QName
	Kind     TraitKind
	Type     *Multiname // declared type of a slot; nil is "*"
	Default  Value      // initial slot value
	Method   *Method    // body of a method or accessor
	Final    bool
	Override bool
	SlotID   int // 1-based requested slot position, 0 to append
}

// Allocator creates the variant object a class's instances use. The
// returned object is not yet initialised or placed in the heap.
type Allocator func(a *Activation, cls *ClassObject) (Object, error)

// Class is a class definition: everything needed to materialise a
// ClassObject. Scripted classes come from loaded images; builtins are
// declared in Go with the helper methods below.
type Class struct {
	Name        QName
	Super       *Multiname
	Interfaces  []*Multiname
	Attrs       ClassAttr
	ProtectedNS Namespace

	Instance  []*Trait
	Static    []*Trait
	Prototype []*Trait // methods installed as functions on the prototype object

	Alloc     Allocator
	Init      *Method // instance initialiser
	ClassInit *Method // static initialiser, run once on materialisation
	Call      *Method // invoked when the class object is called as a function

	// Asset names an embedded asset this class binds to.
	Asset string
}

// NewClass starts a builtin class definition. super may be "" for Object.
func NewClass(name QName, super string, attrs ClassAttr) *Class {
	c := &Class{Name: name, Attrs: attrs}
	if super != "" {
		c.Super = NameOf(ParseQName(super))
	}
	return c
}

// Implements adds interface names.
func (c *Class) Implements(names ...string) *Class {
	for _, n := range names {
		c.Interfaces = append(c.Interfaces, NameOf(ParseQName(n)))
	}
	return c
}

// Constructor sets the native instance initialiser.
func (c *Class) Constructor(fn NativeMethod) *Class {
	c.Init = NewNativeMethod(c.Name.Local, fn)
	return c
}

// Allocates sets the native allocator.
func (c *Class) Allocates(fn Allocator) *Class {
	c.Alloc = fn
	return c
}

// CallHandler sets what happens when the class is called as a function.
func (c *Class) CallHandler(fn NativeMethod) *Class {
	c.Call = NewNativeMethod(c.Name.Local, fn)
	return c
}

func (c *Class) add(static bool, t *Trait) *Class {
	if static {
		c.Static = append(c.Static, t)
	} else {
		c.Instance = append(c.Instance, t)
	}
	return c
}

// Slot declares a public instance slot.
func (c *Class) Slot(name, typ string, def Value) *Class {
	return c.add(false, &Trait{Name: PublicName(name), Kind: TraitSlot, Type: TypeName(typ), Default: def})
}

// Const declares a public instance constant.
func (c *Class) Const(name, typ string, def Value) *Class {
	return c.add(false, &Trait{Name: PublicName(name), Kind: TraitConst, Type: TypeName(typ), Default: def})
}

// Method declares a public native instance method.
func (c *Class) Method(name string, fn NativeMethod) *Class {
	return c.add(false, &Trait{Name: PublicName(name), Kind: TraitMethod, Method: NewNativeMethod(name, fn)})
}

// Getter declares a public native instance getter.
func (c *Class) Getter(name string, fn NativeMethod) *Class {
	return c.add(false, &Trait{Name: PublicName(name), Kind: TraitGetter, Method: NewNativeMethod("get "+name, fn)})
}

// Setter declares a public native instance setter.
func (c *Class) Setter(name string, fn NativeMethod) *Class {
	return c.add(false, &Trait{Name: PublicName(name), Kind: TraitSetter, Method: NewNativeMethod("set "+name, fn)})
}

// Accessor declares a getter and setter pair.
func (c *Class) Accessor(name string, get, set NativeMethod) *Class {
	return c.Getter(name, get).Setter(name, set)
}

// StaticSlot declares a public static slot.
func (c *Class) StaticSlot(name, typ string, def Value) *Class {
	return c.add(true, &Trait{Name: PublicName(name), Kind: TraitSlot, Type: TypeName(typ), Default: def})
}

// StaticConst declares a public static constant.
func (c *Class) StaticConst(name, typ string, def Value) *Class {
	return c.add(true, &Trait{Name: PublicName(name), Kind: TraitConst, Type: TypeName(typ), Default: def})
}

// StaticMethod declares a public native static method.
func (c *Class) StaticMethod(name string, fn NativeMethod) *Class {
	return c.add(true, &Trait{Name: PublicName(name), Kind: TraitMethod, Method: NewNativeMethod(name, fn)})
}

// StaticGetter declares a public native static getter.
func (c *Class) StaticGetter(name string, fn NativeMethod) *Class {
	return c.add(true, &Trait{Name: PublicName(name), Kind: TraitGetter, Method: NewNativeMethod("get "+name, fn)})
}

// StaticSetter declares a public native static setter.
func (c *Class) StaticSetter(name string, fn NativeMethod) *Class {
	return c.add(true, &Trait{Name: PublicName(name), Kind: TraitSetter, Method: NewNativeMethod("set "+name, fn)})
}

// ProtoMethod installs a native function on the class prototype. Prototype
// methods can be shadowed by subclasses without an override declaration.
func (c *Class) ProtoMethod(name string, fn NativeMethod) *Class {
	c.Prototype = append(c.Prototype, &Trait{Name: PublicName(name), Kind: TraitMethod, Method: NewNativeMethod(name, fn)})
	return c
}
