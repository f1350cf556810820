package vm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chazu/avm2/vm/heap"
)

func utilsName(local string) QName { return PackageName("flash.utils", local) }

// installUtilsFunctions defines the flash.utils package functions.
func installUtilsFunctions(a *Activation, d *Domain) {
	d.DefineFunction(a, utilsName("getTimer"), func(a *Activation, _ Value, _ []Value) (Value, error) {
		return Int(int32(a.vm.now().Sub(a.vm.start).Milliseconds())), nil
	})
	d.DefineFunction(a, utilsName("getQualifiedClassName"), func(a *Activation, _ Value, args []Value) (Value, error) {
		return String(a.qualifiedClassName(arg(args, 0))), nil
	})
	d.DefineFunction(a, utilsName("getQualifiedSuperclassName"), func(a *Activation, _ Value, args []Value) (Value, error) {
		v := arg(args, 0)
		cls, ok := v.AsObject().(*ClassObject)
		if !ok {
			cls, _ = a.classOf(v)
		}
		if cls == nil || cls.super == nil {
			return Null, nil
		}
		return String(cls.super.Name().String()), nil
	})
	d.DefineFunction(a, utilsName("getDefinitionByName"), func(a *Activation, _ Value, args []Value) (Value, error) {
		name, err := a.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return a.definitionByName(name)
	})
	d.DefineFunction(a, utilsName("describeType"), func(a *Activation, _ Value, args []Value) (Value, error) {
		x, err := a.describeType(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return FromObject(x), nil
	})
	d.DefineFunction(a, utilsName("escapeMultiByte"), func(a *Activation, _ Value, args []Value) (Value, error) {
		s, err := a.argString(args, 0, "undefined")
		return String(EscapeMultiByte(s)), err
	})
	d.DefineFunction(a, utilsName("unescapeMultiByte"), func(a *Activation, _ Value, args []Value) (Value, error) {
		s, err := a.argString(args, 0, "undefined")
		return String(UnescapeMultiByte(s)), err
	})
	d.DefineFunction(a, utilsName("setTimeout"), func(a *Activation, _ Value, args []Value) (Value, error) {
		return a.schedule(args, false)
	})
	d.DefineFunction(a, utilsName("setInterval"), func(a *Activation, _ Value, args []Value) (Value, error) {
		return a.schedule(args, true)
	})
	clear := func(a *Activation, _ Value, args []Value) (Value, error) {
		id, err := a.argUint(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		a.vm.timers.cancel(id)
		return Undefined, nil
	}
	d.DefineFunction(a, utilsName("clearTimeout"), clear)
	d.DefineFunction(a, utilsName("clearInterval"), clear)
}

// qualifiedClassName names the class of v. Numbers report the narrowest
// numeric class their value fits.
func (a *Activation) qualifiedClassName(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "void"
	case KindNull:
		return "null"
	case KindInt, KindUint, KindNumber:
		f := v.Float()
		switch {
		case a.IsType(v, a.vm.classes.int_) && !(f == 0 && v.kind == KindNumber && 1/f < 0):
			return "int"
		case a.IsType(v, a.vm.classes.uint_):
			return "uint"
		}
		return "Number"
	}
	if cls, ok := v.obj.(*ClassObject); ok {
		return cls.Name().String()
	}
	cls, _ := a.classOf(v)
	if cls == nil {
		return "Object"
	}
	return cls.Name().String()
}

// definitionByName resolves a class or global variable of the application
// domain, raising ReferenceError #1065 when nothing is defined.
func (a *Activation) definitionByName(name string) (Value, error) {
	q := ParseQName(name)
	d := a.vm.app
	if d == nil {
		d = a.vm.system
	}
	cls, err := d.ClassFor(a, q)
	if err != nil {
		return Undefined, err
	}
	if cls != nil {
		return FromObject(cls), nil
	}
	if v, _, ok := d.lookupGlobal(q); ok {
		return v, nil
	}
	return Undefined, a.ReferenceError(1065, "Variable %s is not defined.", name)
}

// ---------------------------------------------------------------------------
// describeType
// ---------------------------------------------------------------------------

// describeType reflects the traits of v's class as XML. A class argument
// describes the class itself with the instance view under <factory>.
func (a *Activation) describeType(v Value) (*XMLObject, error) {
	if cls, ok := v.AsObject().(*ClassObject); ok {
		root := a.NewXMLElement("type")
		a.SetAttribute(root, "name", cls.Name().String())
		a.SetAttribute(root, "base", "Class")
		a.SetAttribute(root, "isDynamic", "true")
		a.SetAttribute(root, "isFinal", "true")
		a.SetAttribute(root, "isStatic", "true")
		ext := a.NewXMLElement("extendsClass")
		a.SetAttribute(ext, "type", "Class")
		a.AppendChild(root, ext)
		a.describeTraits(root, cls.vtable, cls, a.vm.classes.class.instance)
		factory := a.NewXMLElement("factory")
		a.SetAttribute(factory, "type", cls.Name().String())
		a.describeInstance(factory, cls)
		a.AppendChild(root, factory)
		return root, nil
	}
	if v.IsNullish() {
		root := a.NewXMLElement("type")
		a.SetAttribute(root, "name", a.qualifiedClassName(v))
		return root, nil
	}
	cls, _ := a.classOf(v)
	root := a.NewXMLElement("type")
	a.SetAttribute(root, "name", cls.Name().String())
	if cls.super != nil {
		a.SetAttribute(root, "base", cls.super.Name().String())
	}
	a.SetAttribute(root, "isDynamic", fmt.Sprint(!cls.def.Attrs.Has(ClassSealed)))
	a.SetAttribute(root, "isFinal", fmt.Sprint(cls.def.Attrs.Has(ClassFinal)))
	a.SetAttribute(root, "isStatic", "false")
	a.describeInstance(root, cls)
	return root, nil
}

func (a *Activation) describeInstance(parent *XMLObject, cls *ClassObject) {
	for k := cls.super; k != nil; k = k.super {
		e := a.NewXMLElement("extendsClass")
		a.SetAttribute(e, "type", k.Name().String())
		a.AppendChild(parent, e)
	}
	for _, iface := range allInterfaces(cls) {
		e := a.NewXMLElement("implementsInterface")
		a.SetAttribute(e, "type", iface.Name().String())
		a.AppendChild(parent, e)
	}
	a.describeTraits(parent, cls.instance, cls, nil)
}

func allInterfaces(cls *ClassObject) []*ClassObject {
	var out []*ClassObject
	for k := cls; k != nil; k = k.super {
		for _, i := range k.ifaces {
			if !slices.Contains(out, i) {
				out = append(out, i)
			}
		}
	}
	return out
}

// describeTraits appends one element per public trait of vt. Names also
// present in inherited (the Class instance table, for static views) are
// skipped.
func (a *Activation) describeTraits(parent *XMLObject, vt *VTable, owner *ClassObject, inherited *VTable) {
	for _, q := range vt.Names() {
		if !q.NS.IsPublic() {
			continue
		}
		if inherited != nil {
			if _, ok := inherited.Get(q); ok {
				continue
			}
		}
		p, _ := vt.Get(q)
		var e *XMLObject
		switch p.Kind {
		case PropSlot, PropConst:
			tag := "variable"
			if p.Kind == PropConst {
				tag = "constant"
			}
			e = a.NewXMLElement(tag)
			a.SetAttribute(e, "name", q.Local)
			a.SetAttribute(e, "type", typeString(vt.slotType(p.Slot).Name()))
		case PropVirtual:
			e = a.NewXMLElement("accessor")
			a.SetAttribute(e, "name", q.Local)
			access, typ, disp := "readwrite", "*", p.Get
			switch {
			case p.Set < 0:
				access = "readonly"
			case p.Get < 0:
				access, disp = "writeonly", p.Set
			}
			if p.Get >= 0 {
				typ = typeString(vt.methods[p.Get].ReturnType)
			}
			a.SetAttribute(e, "access", access)
			a.SetAttribute(e, "type", typ)
			a.SetAttribute(e, "declaredBy", declaringName(vt, disp, owner))
		case PropMethod:
			m := vt.methods[p.Disp]
			e = a.NewXMLElement("method")
			a.SetAttribute(e, "name", q.Local)
			a.SetAttribute(e, "declaredBy", declaringName(vt, p.Disp, owner))
			a.SetAttribute(e, "returnType", typeString(m.ReturnType))
			for i, param := range m.Params {
				pe := a.NewXMLElement("parameter")
				a.SetAttribute(pe, "index", fmt.Sprint(i+1))
				a.SetAttribute(pe, "type", typeString(param.Type))
				a.SetAttribute(pe, "optional", fmt.Sprint(param.Optional))
				a.AppendChild(e, pe)
			}
		}
		a.AppendChild(parent, e)
	}
}

func declaringName(vt *VTable, disp int, owner *ClassObject) string {
	if c := vt.DefiningClass(disp); c != nil {
		return c.Name().String()
	}
	return owner.Name().String()
}

func typeString(mn *Multiname) string {
	if mn == nil {
		return "*"
	}
	return mn.String()
}

// ---------------------------------------------------------------------------
// escapeMultiByte
// ---------------------------------------------------------------------------

const escapeSafe = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789@-_.*+/"

// EscapeMultiByte percent-encodes every byte of the UTF-8 form of s outside
// the unreserved set.
func EscapeMultiByte(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(escapeSafe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// UnescapeMultiByte reverses EscapeMultiByte. %uXXXX escapes are accepted
// and malformed escapes are kept literally.
func UnescapeMultiByte(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			out = append(out, c)
			continue
		}
		if i+5 < len(s) && s[i+1] == 'u' {
			if r, ok := hexValue(s[i+2 : i+6]); ok {
				out = utf8.AppendRune(out, rune(r))
				i += 5
				continue
			}
		}
		if i+2 < len(s) {
			if v, ok := hexValue(s[i+1 : i+3]); ok {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, c)
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

func hexValue(s string) (int, bool) {
	v := 0
	for _, c := range s {
		d := hexDigit(c)
		if d < 0 {
			return 0, false
		}
		v = v*16 + d
	}
	return v, true
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

type timer struct {
	id       uint32
	due      time.Time
	interval time.Duration
	repeat   bool
	fn       Value
	args     []Value
}

// timerQueue holds the pending setTimeout and setInterval callbacks of one
// VM. Callbacks run on Tick, never re-entrantly.
type timerQueue struct {
	next  uint32
	items []*timer
}

func (q *timerQueue) add(t *timer) uint32 {
	q.next++
	t.id = q.next
	q.items = append(q.items, t)
	return t.id
}

func (q *timerQueue) cancel(id uint32) {
	q.items = slices.DeleteFunc(q.items, func(t *timer) bool { return t.id == id })
}

// Len returns the number of pending timers.
func (q *timerQueue) Len() int { return len(q.items) }

func (q *timerQueue) trace(t *heap.Tracer) {
	for _, it := range q.items {
		markValue(t, it.fn)
		for _, v := range it.args {
			markValue(t, v)
		}
	}
}

// run fires every timer due at now, earliest first. An interval fires at
// most once per run. Script errors thrown by a callback are logged and do
// not stop other timers.
func (q *timerQueue) run(a *Activation, now time.Time) error {
	var due []*timer
	for _, t := range q.items {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	slices.SortStableFunc(due, func(x, y *timer) int {
		if c := x.due.Compare(y.due); c != 0 {
			return c
		}
		return int(x.id) - int(y.id)
	})
	for _, t := range due {
		if !slices.Contains(q.items, t) {
			continue // cleared by an earlier callback
		}
		if t.repeat {
			t.due = now.Add(t.interval)
		} else {
			q.cancel(t.id)
		}
		_, err := a.Call(t.fn, Null, t.args)
		var thrown *Error
		if errors.As(err, &thrown) {
			log.Errorf("uncaught error in timer %d: %s", t.id, thrown)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Activation) schedule(args []Value, repeat bool) (Value, error) {
	fn := arg(args, 0)
	if !isCallable(fn) {
		return Undefined, a.TypeError(1034, "Type Coercion failed: cannot convert %s to Function.", a.describeValue(fn))
	}
	ms, err := a.argNumber(args, 1, 0)
	if err != nil {
		return Undefined, err
	}
	if ms < 0 || ms != ms {
		ms = 0
	}
	var extra []Value
	if len(args) > 2 {
		extra = append(extra, args[2:]...)
	}
	d := time.Duration(ms * float64(time.Millisecond))
	id := a.vm.timers.add(&timer{due: a.vm.now().Add(d), interval: d, repeat: repeat, fn: fn, args: extra})
	return Uint(id), nil
}
