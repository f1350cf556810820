package vm

import (
	"context"
	"errors"

	"github.com/chazu/avm2/vm/heap"
	"github.com/chazu/avm2/vm/store"
)

func netName(local string) QName { return PackageName("flash.net", local) }

var sharedObjectQName = netName("SharedObject")

// installNetFunctions defines registerClassAlias and getClassByAlias.
func installNetFunctions(a *Activation, d *Domain) {
	d.DefineFunction(a, netName("registerClassAlias"), func(a *Activation, _ Value, args []Value) (Value, error) {
		alias, cls := arg(args, 0), arg(args, 1)
		if alias.IsNullish() {
			return Undefined, a.TypeError(2007, "Parameter aliasName must be non-null.")
		}
		c, ok := cls.AsObject().(*ClassObject)
		if !ok {
			return Undefined, a.TypeError(2007, "Parameter classObject must be non-null.")
		}
		name, err := a.ToString(alias)
		if err != nil {
			return Undefined, err
		}
		a.vm.aliases[name] = c
		return Undefined, nil
	})
	d.DefineFunction(a, netName("getClassByAlias"), func(a *Activation, _ Value, args []Value) (Value, error) {
		name, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		c, ok := a.vm.aliases[name]
		if !ok {
			return Undefined, a.ReferenceError(1014, "Class %s could not be found.", name)
		}
		return FromObject(c), nil
	})
}

// ---------------------------------------------------------------------------
// SharedObject
// ---------------------------------------------------------------------------

// SharedObjectObject is a named persistent Object. Its data is encoded
// with the wire format and saved to the VM's store on flush.
type SharedObjectObject struct {
	ScriptObject
	name string
	data Object
}

func (so *SharedObjectObject) Trace(t *heap.Tracer) {
	so.traceBase(t)
	if so.data != nil {
		t.Mark(so.data)
	}
}

// Name returns the name the object was opened with.
func (so *SharedObjectObject) Name() string { return so.name }

// flush persists the data object. Without a store the call succeeds and
// nothing is written.
func (so *SharedObjectObject) flush(a *Activation) (string, error) {
	data, err := a.encodeValue(FromObject(so.data), persistPolicy)
	if err != nil {
		return "", err
	}
	st := a.vm.opts.Store
	if st == nil {
		return "flushed", nil
	}
	if err := st.Save(context.Background(), so.name, data); err != nil {
		return "", a.PlainError(2130, "Unable to flush SharedObject %s.", so.name)
	}
	log.Debugf("flushed shared object %s (%d bytes)", so.name, len(data))
	return "flushed", nil
}

// load replaces the data object with the stored payload, if there is one.
func (so *SharedObjectObject) load(a *Activation) error {
	st := a.vm.opts.Store
	if st == nil {
		return nil
	}
	raw, err := st.Load(context.Background(), so.name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	v, err := a.decodeValue(raw)
	if err != nil {
		log.Warningf("discarding unreadable shared object %s: %s", so.name, err)
		return nil
	}
	if o := v.AsObject(); o != nil {
		a.write(so)
		so.data = o
	}
	return nil
}

// getLocal returns the shared object named name, opening it from the store
// on first use. One VM sees one instance per name.
func (a *Activation) getLocal(name string) (*SharedObjectObject, error) {
	if so, ok := a.vm.shared[name]; ok {
		return so, nil
	}
	cls, err := a.builtin(sharedObjectQName)
	if err != nil {
		return nil, err
	}
	so := &SharedObjectObject{name: name}
	a.initObject(so, cls)
	so.data = a.NewObject()
	if err := so.load(a); err != nil {
		return nil, a.PlainError(2130, "Unable to open SharedObject %s: %s", name, err)
	}
	a.vm.shared[name] = so
	return so, nil
}

func sharedObjectClass() *Class {
	const className = "flash.net.SharedObject"
	c := NewClass(sharedObjectQName, "Object", ClassSealed).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &SharedObjectObject{}, nil }).
		Constructor(func(a *Activation, this Value, _ []Value) (Value, error) {
			so, err := thisAs[*SharedObjectObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			so.data = a.NewObject()
			return Undefined, nil
		})

	c.StaticMethod("getLocal", func(a *Activation, _ Value, args []Value) (Value, error) {
		name, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		if name == "" {
			return Undefined, a.ArgumentError(2007, "Parameter name must be non-null.")
		}
		so, err := a.getLocal(name)
		if err != nil {
			return Undefined, err
		}
		return FromObject(so), nil
	})
	c.Getter("data", func(a *Activation, this Value, _ []Value) (Value, error) {
		so, err := thisAs[*SharedObjectObject](a, this, className)
		if err != nil {
			return Undefined, err
		}
		return FromObject(so.data), nil
	})
	c.Getter("size", func(a *Activation, this Value, _ []Value) (Value, error) {
		so, err := thisAs[*SharedObjectObject](a, this, className)
		if err != nil {
			return Undefined, err
		}
		raw, err := a.encodeValue(FromObject(so.data), persistPolicy)
		if err != nil {
			return Undefined, err
		}
		return Uint(uint32(len(raw))), nil
	})
	c.Method("flush", func(a *Activation, this Value, _ []Value) (Value, error) {
		so, err := thisAs[*SharedObjectObject](a, this, className)
		if err != nil {
			return Undefined, err
		}
		status, err := so.flush(a)
		if err != nil {
			return Undefined, err
		}
		return String(status), nil
	})
	c.Method("clear", func(a *Activation, this Value, _ []Value) (Value, error) {
		so, err := thisAs[*SharedObjectObject](a, this, className)
		if err != nil {
			return Undefined, err
		}
		a.write(so)
		so.data = a.NewObject()
		if st := a.vm.opts.Store; st != nil {
			if err := st.Delete(context.Background(), so.name); err != nil {
				log.Errorf("clearing shared object %s: %s", so.name, err)
			}
		}
		return Undefined, nil
	})
	return c
}

// ---------------------------------------------------------------------------
// ObjectEncoding
// ---------------------------------------------------------------------------

func objectEncodingClass() *Class {
	return NewClass(netName("ObjectEncoding"), "Object", ClassSealed|ClassFinal).
		StaticConst("AMF0", "uint", Uint(0)).
		StaticConst("AMF3", "uint", Uint(3)).
		StaticConst("DEFAULT", "uint", Uint(3)).
		StaticGetter("dynamicPropertyWriter", func(*Activation, Value, []Value) (Value, error) {
			return Null, nil
		}).
		StaticSetter("dynamicPropertyWriter", func(a *Activation, _ Value, args []Value) (Value, error) {
			if !arg(args, 0).IsNullish() {
				return Undefined, unsupported("flash.net.ObjectEncoding", "dynamicPropertyWriter", "custom property writers are not implemented")
			}
			return Undefined, nil
		})
}

func netClasses() []*Class {
	return []*Class{sharedObjectClass(), objectEncodingClass()}
}
