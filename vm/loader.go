package vm

import (
	"fmt"
	"math"

	"github.com/chazu/avm2/vm/abc"
)

// image is a loaded ABC file: the pools translated into runtime names,
// methods and class definitions, bound to the domain it was loaded into.
type image struct {
	file    *abc.File
	domain  *Domain
	ns      []Namespace
	names   []*Multiname
	methods []*Method
	classes []*Class
	scripts []*script
}

type script struct {
	init   *Method
	traits []*Trait
	ran    bool
}

// loadImage translates f into d. Every class in the class table is defined
// in d; nothing is materialised yet.
func (vm *VM) loadImage(f *abc.File, d *Domain) (*image, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("vm: load image: %w", err)
	}
	img := &image{file: f, domain: d}

	img.ns = make([]Namespace, len(f.Namespaces))
	for i := 1; i < len(f.Namespaces); i++ {
		n := f.Namespaces[i]
		uri := f.Strings[n.Name]
		switch NamespaceKind(n.Kind) {
		case NSPrivate:
			img.ns[i] = NewPrivateNamespace(uri)
		case NSProtected, NSStaticProtected:
			// Protected members share one namespace across a hierarchy so
			// subclasses resolve inherited protected traits.
			img.ns[i] = Namespace{Kind: NSProtected}
		default:
			img.ns[i] = Namespace{Kind: NamespaceKind(n.Kind), URI: uri}
		}
	}

	img.names = make([]*Multiname, len(f.Multinames))
	for i := 1; i < len(f.Multinames); i++ {
		mn := f.Multinames[i]
		out := &Multiname{Local: f.Strings[mn.Name]}
		switch mn.Kind {
		case abc.QName:
			out.NS = []Namespace{img.ns[mn.NS]}
		case abc.Multi, abc.MultiLate:
			for _, idx := range f.NSSets[mn.NSSet] {
				out.NS = append(out.NS, img.ns[idx])
			}
			out.Late = mn.Kind == abc.MultiLate
		}
		img.names[i] = out
	}

	img.methods = make([]*Method, len(f.Methods))
	for i := 1; i < len(f.Methods); i++ {
		m := f.Methods[i]
		out := &Method{
			Name:       f.Strings[m.Name],
			ReturnType: img.typeRef(m.ReturnType),
			NeedRest:   m.Flags&abc.NeedRest != 0,
			NeedArgs:   m.Flags&abc.NeedArguments != 0,
			body:       m.Body,
			img:        img,
			domain:     d,
		}
		for _, p := range m.Params {
			param := Param{Type: img.typeRef(p.Type), Optional: p.Optional}
			if p.Optional {
				param.Default = img.constValue(p.Default)
			}
			out.Params = append(out.Params, param)
		}
		img.methods[i] = out
	}

	img.classes = make([]*Class, len(f.Classes))
	for i := 1; i < len(f.Classes); i++ {
		def, err := img.translateClass(&f.Classes[i])
		if err != nil {
			return nil, err
		}
		img.classes[i] = def
	}

	for _, s := range f.Scripts {
		sc := &script{init: img.methods[s.Init]}
		if sc.init != nil && sc.init.Name == "" {
			sc.init.Name = "script$init"
		}
		for _, t := range s.Traits {
			if t.Kind == abc.TraitClass {
				continue
			}
			tr, err := img.translateTrait(t)
			if err != nil {
				return nil, err
			}
			sc.traits = append(sc.traits, tr)
		}
		img.scripts = append(img.scripts, sc)
	}

	for _, def := range img.classes[1:] {
		if err := d.Define(def); err != nil {
			return nil, err
		}
	}
	for i := range f.Assets {
		d.assets[f.Assets[i].Name] = &f.Assets[i]
	}
	log.Infof("loaded image: %d classes, %d methods, %d scripts", len(img.classes)-1, len(img.methods)-1, len(img.scripts))
	return img, nil
}

func (img *image) typeRef(idx int) *Multiname {
	if idx == 0 {
		return nil
	}
	return img.names[idx]
}

func (img *image) qname(idx int) (QName, error) {
	mn := img.names[idx]
	if mn == nil || mn.Late || len(mn.NS) != 1 {
		return QName{}, verifyErr("", "name %d is not a qualified name", idx)
	}
	return QName{NS: mn.NS[0], Local: mn.Local}, nil
}

func (img *image) translateClass(c *abc.Class) (*Class, error) {
	name, err := img.qname(c.Name)
	if err != nil {
		return nil, err
	}
	def := &Class{Name: name, Super: img.typeRef(c.Super)}
	if c.Flags&abc.ClassSealed != 0 {
		def.Attrs |= ClassSealed
	}
	if c.Flags&abc.ClassFinal != 0 {
		def.Attrs |= ClassFinal
	}
	if c.Flags&abc.ClassInterface != 0 {
		def.Attrs |= ClassInterface
	}
	if c.Flags&abc.ClassProtectedNS != 0 {
		def.ProtectedNS = img.ns[c.ProtectedNS]
	}
	for _, i := range c.Interfaces {
		def.Interfaces = append(def.Interfaces, img.names[i])
	}
	if c.Init != 0 {
		def.Init = img.methods[c.Init]
		if def.Init.Name == "" {
			def.Init.Name = name.Local
		}
	}
	if c.StaticInit != 0 {
		def.ClassInit = img.methods[c.StaticInit]
		if def.ClassInit.Name == "" {
			def.ClassInit.Name = name.Local + "$cinit"
		}
	}
	if c.Asset != 0 {
		def.Asset = img.file.Strings[c.Asset]
	}
	for _, t := range c.Traits {
		tr, err := img.translateTrait(t)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", name, err)
		}
		def.Instance = append(def.Instance, tr)
	}
	for _, t := range c.StaticTraits {
		tr, err := img.translateTrait(t)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", name, err)
		}
		def.Static = append(def.Static, tr)
	}
	return def, nil
}

func (img *image) translateTrait(t abc.Trait) (*Trait, error) {
	name, err := img.qname(t.Name)
	if err != nil {
		return nil, err
	}
	out := &Trait{
		Name:     name,
		SlotID:   t.SlotID,
		Final:    t.Attr&abc.AttrFinal != 0,
		Override: t.Attr&abc.AttrOverride != 0,
	}
	switch t.Kind {
	case abc.TraitSlot, abc.TraitConst:
		out.Kind = TraitSlot
		if t.Kind == abc.TraitConst {
			out.Kind = TraitConst
		}
		out.Type = img.typeRef(t.Type)
		out.Default = defaultFor(out.Type, img.constValue(t.Value), t.Value.Kind == abc.ConstUndefined)
	case abc.TraitMethod, abc.TraitFunction, abc.TraitGetter, abc.TraitSetter:
		m := img.methods[t.Method]
		if m == nil {
			return nil, verifyErr("", "trait %s has no method", name)
		}
		if m.Name == "" {
			m.Name = name.Local
		}
		out.Method = m
		switch t.Kind {
		case abc.TraitGetter:
			out.Kind = TraitGetter
		case abc.TraitSetter:
			out.Kind = TraitSetter
		default:
			out.Kind = TraitMethod
		}
	default:
		return nil, verifyErr("", "trait %s has unsupported kind %d", name, t.Kind)
	}
	return out, nil
}

func (img *image) constValue(c abc.Const) Value {
	f := img.file
	switch c.Kind {
	case abc.ConstUtf8:
		return String(f.Strings[c.Index])
	case abc.ConstInt:
		return Int(f.Ints[c.Index])
	case abc.ConstUint:
		return Uint(f.Uints[c.Index])
	case abc.ConstDouble:
		return Number(f.Doubles[c.Index])
	case abc.ConstTrue:
		return True
	case abc.ConstFalse:
		return False
	case abc.ConstNull:
		return Null
	}
	return Undefined
}

// defaultFor returns the initial value of a slot of type typ: the explicit
// default converted to the numeric type where one applies, or the type's
// natural default when none is given.
func defaultFor(typ *Multiname, explicit Value, none bool) Value {
	local := ""
	if typ != nil && typ.HasPublic() {
		local = typ.Local
	}
	if none {
		switch {
		case typ == nil:
			return Undefined
		case local == "int":
			return Int(0)
		case local == "uint":
			return Uint(0)
		case local == "Number":
			return Number(math.NaN())
		case local == "Boolean":
			return False
		}
		return Null
	}
	if explicit.IsNumeric() {
		switch local {
		case "Number":
			return Number(explicit.Float())
		case "int":
			return Int(NumberToInt32(explicit.Float()))
		case "uint":
			return Uint(NumberToUint32(explicit.Float()))
		}
	}
	return explicit
}

// installGlobals defines the script-level variables and functions of img
// in its domain.
func (a *Activation) installGlobals(img *image) {
	d := img.domain
	for _, sc := range img.scripts {
		for _, t := range sc.traits {
			switch t.Kind {
			case TraitSlot, TraitConst:
				d.DefineGlobal(a, t.Name, t.Default, t.Kind == TraitConst)
			case TraitMethod:
				d.DefineGlobal(a, t.Name, FromObject(a.NewFunction(t.Method, d.scope)), true)
			}
		}
	}
}
