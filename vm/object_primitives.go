package vm

import (
	"github.com/chazu/avm2/vm/heap"
)

// coreClasses defines Object, Class, Function and Namespace.
func coreClasses() []*Class {
	object := NewClass(PublicName("Object"), "", 0).
		CallHandler(func(a *Activation, _ Value, args []Value) (Value, error) {
			v := arg(args, 0)
			if v.IsNullish() {
				return FromObject(a.NewObject()), nil
			}
			return v, nil
		}).
		ProtoMethod("toString", objectToString).
		ProtoMethod("toLocaleString", objectToString).
		ProtoMethod("valueOf", func(_ *Activation, this Value, _ []Value) (Value, error) {
			return this, nil
		}).
		ProtoMethod("hasOwnProperty", func(a *Activation, this Value, args []Value) (Value, error) {
			name, err := a.ToString(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			return Bool(a.HasOwnProperty(this, name)), nil
		}).
		ProtoMethod("propertyIsEnumerable", func(a *Activation, this Value, args []Value) (Value, error) {
			name, err := a.ToString(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			o := this.AsObject()
			if o == nil {
				return False, nil
			}
			if arr, ok := o.(*ArrayObject); ok {
				if i, ok := arrayIndex(name); ok && i < len(arr.dense) {
					return True, nil
				}
			}
			d := o.Base().dyn
			return Bool(d != nil && d.Has(PublicName(name))), nil
		}).
		ProtoMethod("setPropertyIsEnumerable", func(*Activation, Value, []Value) (Value, error) {
			return Undefined, nil
		}).
		ProtoMethod("isPrototypeOf", func(a *Activation, this Value, args []Value) (Value, error) {
			target := this.AsObject()
			v := arg(args, 0).AsObject()
			if target == nil || v == nil {
				return False, nil
			}
			for p := v.Base().proto; p != nil; p = p.Base().proto {
				if p == target {
					return True, nil
				}
			}
			return False, nil
		})

	class := NewClass(PublicName("Class"), "Object", ClassSealed|ClassFinal).
		Getter("prototype", func(a *Activation, this Value, _ []Value) (Value, error) {
			cls, err := thisAs[*ClassObject](a, this, "Class")
			if err != nil {
				return Undefined, err
			}
			return FromObject(cls.prototype), nil
		})

	function := NewClass(PublicName("Function"), "Object", ClassFinal).
		Allocates(func(a *Activation, _ *ClassObject) (Object, error) {
			return nil, unsupported("Function", "construct", "functions cannot be created from source text")
		}).
		Getter("length", func(a *Activation, this Value, _ []Value) (Value, error) {
			f, err := thisAs[*FunctionObject](a, this, "Function")
			if err != nil {
				return Undefined, err
			}
			return Int(int32(len(f.method.Params))), nil
		}).
		ProtoMethod("call", func(a *Activation, this Value, args []Value) (Value, error) {
			var rest []Value
			if len(args) > 1 {
				rest = args[1:]
			}
			return a.Call(this, arg(args, 0), rest)
		}).
		ProtoMethod("apply", func(a *Activation, this Value, args []Value) (Value, error) {
			var list []Value
			switch v := arg(args, 1); {
			case v.IsNullish():
			case isArray(v):
				list = append(list, v.AsObject().(*ArrayObject).dense...)
			default:
				return Undefined, a.TypeError(1116, "second argument to Function.prototype.apply must be an array.")
			}
			return a.Call(this, arg(args, 0), list)
		})

	namespace := NewClass(PublicName("Namespace"), "Object", ClassSealed|ClassFinal).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &NamespaceObject{}, nil }).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			n, err := thisAs[*NamespaceObject](a, this, "Namespace")
			if err != nil {
				return Undefined, err
			}
			uriArg := arg(args, 0)
			if len(args) > 1 {
				prefix, err := a.ToString(args[0])
				if err != nil {
					return Undefined, err
				}
				n.prefix = prefix
				uriArg = args[1]
			}
			if ns, ok := uriArg.AsObject().(*NamespaceObject); ok {
				n.ns = ns.ns
				return Undefined, nil
			}
			uri, err := a.argString([]Value{uriArg}, 0, "")
			if err != nil {
				return Undefined, err
			}
			n.ns = Namespace{Kind: NSNamespace, URI: uri}
			return Undefined, nil
		}).
		Getter("uri", func(a *Activation, this Value, _ []Value) (Value, error) {
			n, err := thisAs[*NamespaceObject](a, this, "Namespace")
			if err != nil {
				return Undefined, err
			}
			return String(n.ns.URI), nil
		}).
		Getter("prefix", func(a *Activation, this Value, _ []Value) (Value, error) {
			n, err := thisAs[*NamespaceObject](a, this, "Namespace")
			if err != nil {
				return Undefined, err
			}
			if n.prefix == "" {
				return Undefined, nil
			}
			return String(n.prefix), nil
		}).
		ProtoMethod("toString", namespaceURI).
		ProtoMethod("valueOf", namespaceURI)

	return []*Class{object, class, function, namespace}
}

func objectToString(a *Activation, this Value, _ []Value) (Value, error) {
	switch o := this.AsObject().(type) {
	case nil:
		return String(PrimitiveToString(this)), nil
	case *ClassObject:
		return String("[class " + o.Name().Local + "]"), nil
	case *FunctionObject:
		return String("function Function() {}"), nil
	}
	return String("[object " + a.describeLocal(this) + "]"), nil
}

func namespaceURI(a *Activation, this Value, _ []Value) (Value, error) {
	n, err := thisAs[*NamespaceObject](a, this, "Namespace")
	if err != nil {
		return Undefined, err
	}
	return String(n.ns.URI), nil
}

// NamespaceObject is a Namespace value.
type NamespaceObject struct {
	ScriptObject
	ns     Namespace
	prefix string
}

func (n *NamespaceObject) Trace(t *heap.Tracer) { n.traceBase(t) }

// Namespace returns the wrapped namespace.
func (n *NamespaceObject) Namespace() Namespace { return n.ns }
