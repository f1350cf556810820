package vm

import (
	"fmt"
	"strings"
)

// PropKind distinguishes resolved properties.
type PropKind uint8

const (
	PropMethod PropKind = iota
	PropVirtual
	PropSlot
	PropConst
)

// Property is a resolved trait-table entry. Disp indexes the method table
// of a Method; Get and Set index it for a Virtual and are -1 when that half
// is absent; Slot is the 0-based slot index of a Slot or Const.
type Property struct {
	Kind PropKind
	Disp int
	Get  int
	Set  int
	Slot int
}

func (p Property) String() string {
	switch p.Kind {
	case PropMethod:
		return fmt.Sprintf("method(%d)", p.Disp)
	case PropVirtual:
		return fmt.Sprintf("virtual(get=%d,set=%d)", p.Get, p.Set)
	case PropSlot:
		return fmt.Sprintf("slot(%d)", p.Slot)
	}
	return fmt.Sprintf("const(%d)", p.Slot)
}

type slotInfo struct {
	name    QName
	typ     LazyClass
	def     Value
	isConst bool
	used    bool
}

// VTable is the resolved trait table of a class: the name map, the dispatch
// list with the class that defined each entry, and the slot layout. It is
// computed once when the class object is created and shared by every
// instance.
type VTable struct {
	props    map[QName]Property
	order    []QName
	methods  []*Method
	defining []*ClassObject
	slots    []slotInfo
}

func newVTable() *VTable {
	return &VTable{props: make(map[QName]Property)}
}

// clone copies the super table as the starting point for a subclass.
func (vt *VTable) clone() *VTable {
	out := &VTable{
		props:    make(map[QName]Property, len(vt.props)),
		order:    append([]QName(nil), vt.order...),
		methods:  append([]*Method(nil), vt.methods...),
		defining: append([]*ClassObject(nil), vt.defining...),
		slots:    make([]slotInfo, len(vt.slots)),
	}
	for k, v := range vt.props {
		out.props[k] = v
	}
	for i, s := range vt.slots {
		// Lazy slot types are per table so resolution in one class never
		// leaks a half-built state into another.
		out.slots[i] = slotInfo{name: s.name, typ: LazyClass{name: s.typ.name, class: s.typ.class}, def: s.def, isConst: s.isConst, used: s.used}
	}
	return out
}

// Get returns the property with exactly name q.
func (vt *VTable) Get(q QName) (Property, bool) {
	p, ok := vt.props[q]
	return p, ok
}

// find resolves local against each namespace of mn in order.
func (vt *VTable) find(mn *Multiname, local string) (QName, Property, bool) {
	for _, ns := range mn.NS {
		q := QName{NS: ns, Local: local}
		if p, ok := vt.props[q]; ok {
			return q, p, true
		}
	}
	return QName{}, Property{}, false
}

// Method returns the method at dispatch id disp.
func (vt *VTable) Method(disp int) *Method {
	if disp < 0 || disp >= len(vt.methods) {
		return nil
	}
	return vt.methods[disp]
}

// DefiningClass returns the class that supplied dispatch id disp.
func (vt *VTable) DefiningClass(disp int) *ClassObject {
	if disp < 0 || disp >= len(vt.defining) {
		return nil
	}
	return vt.defining[disp]
}

// MethodCount returns the length of the dispatch list.
func (vt *VTable) MethodCount() int { return len(vt.methods) }

// SlotCount returns the number of fixed slots.
func (vt *VTable) SlotCount() int { return len(vt.slots) }

// Names returns every property name in declaration order, inherited names
// first.
func (vt *VTable) Names() []QName { return append([]QName(nil), vt.order...) }

// defaults returns a fresh slot array holding each slot's initial value.
func (vt *VTable) defaults() []Value {
	if len(vt.slots) == 0 {
		return nil
	}
	out := make([]Value, len(vt.slots))
	for i, s := range vt.slots {
		out[i] = s.def
	}
	return out
}

// slotType returns the lazy declared type of slot i.
func (vt *VTable) slotType(i int) *LazyClass {
	if i < 0 || i >= len(vt.slots) {
		return nil
	}
	return &vt.slots[i].typ
}

// Dump renders the table deterministically, one property per line.
func (vt *VTable) Dump() string {
	var b strings.Builder
	for _, q := range vt.order {
		p := vt.props[q]
		fmt.Fprintf(&b, "%s %s", q, p)
		switch p.Kind {
		case PropMethod:
			fmt.Fprintf(&b, " %s", vt.methods[p.Disp].Name)
		case PropSlot, PropConst:
			if n := vt.slots[p.Slot].typ.name; n != nil {
				fmt.Fprintf(&b, " :%s", n)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func (vt *VTable) addName(q QName, p Property) {
	if _, ok := vt.props[q]; !ok {
		vt.order = append(vt.order, q)
	}
	vt.props[q] = p
}

func (vt *VTable) addMethod(m *Method, owner *ClassObject) int {
	vt.methods = append(vt.methods, m)
	vt.defining = append(vt.defining, owner)
	return len(vt.methods) - 1
}

// buildVTable overlays traits on a copy of super (or an empty table) for
// the class owner.
func buildVTable(owner *ClassObject, super *VTable, traits []*Trait) (*VTable, error) {
	var vt *VTable
	if super != nil {
		vt = super.clone()
	} else {
		vt = newVTable()
	}
	className := owner.def.Name.String()
	illegal := func(t *Trait) error {
		return verifyErr(className, "Illegal override of %s in %s.", t.Name.Local, className)
	}

	for _, t := range traits {
		if t.Method != nil {
			t.Method.final = t.Final
		}
		existing, exists := vt.props[t.Name]
		switch t.Kind {
		case TraitSlot, TraitConst:
			if exists {
				return nil, illegal(t)
			}
			idx := len(vt.slots)
			if t.SlotID > 0 {
				idx = t.SlotID - 1
				if idx < len(vt.slots) && vt.slots[idx].used {
					return nil, verifyErr(className, "Slot %d of %s is already in use.", t.SlotID, t.Name.Local)
				}
				for len(vt.slots) <= idx {
					vt.slots = append(vt.slots, slotInfo{})
				}
			} else {
				vt.slots = append(vt.slots, slotInfo{})
			}
			vt.slots[idx] = slotInfo{name: t.Name, typ: LazyClass{name: t.Type}, def: t.Default, isConst: t.Kind == TraitConst, used: true}
			kind := PropSlot
			if t.Kind == TraitConst {
				kind = PropConst
			}
			vt.addName(t.Name, Property{Kind: kind, Slot: idx, Get: -1, Set: -1})

		case TraitMethod:
			if !exists {
				if t.Override && super != nil {
					return nil, illegal(t)
				}
				vt.addName(t.Name, Property{Kind: PropMethod, Disp: vt.addMethod(t.Method, owner), Get: -1, Set: -1})
				continue
			}
			if existing.Kind != PropMethod || !t.Override {
				return nil, illegal(t)
			}
			prev := vt.methods[existing.Disp]
			if prev.final || !compatible(prev, t.Method) {
				return nil, illegal(t)
			}
			vt.methods[existing.Disp] = t.Method
			vt.defining[existing.Disp] = owner

		case TraitGetter, TraitSetter:
			getter := t.Kind == TraitGetter
			if !exists {
				if t.Override && super != nil {
					return nil, illegal(t)
				}
				p := Property{Kind: PropVirtual, Get: -1, Set: -1}
				disp := vt.addMethod(t.Method, owner)
				if getter {
					p.Get = disp
				} else {
					p.Set = disp
				}
				vt.addName(t.Name, p)
				continue
			}
			if existing.Kind != PropVirtual {
				return nil, illegal(t)
			}
			half := existing.Set
			if getter {
				half = existing.Get
			}
			if half < 0 {
				// Adding the missing half of an inherited accessor pair.
				disp := vt.addMethod(t.Method, owner)
				if getter {
					existing.Get = disp
				} else {
					existing.Set = disp
				}
				vt.props[t.Name] = existing
				continue
			}
			inherited := vt.defining[half] != owner
			if inherited {
				prev := vt.methods[half]
				if !t.Override || prev.final || !compatible(prev, t.Method) {
					return nil, illegal(t)
				}
			}
			vt.methods[half] = t.Method
			vt.defining[half] = owner
		}
	}
	return vt, nil
}

// compatible reports whether m may replace prev in a dispatch slot. Native
// methods do not declare their arity, so only scripted signatures are
// compared.
func compatible(prev, m *Method) bool {
	if prev.IsNative() || m.IsNative() {
		return true
	}
	return len(prev.Params) == len(m.Params)
}

// checkInterfaces verifies that vt satisfies every method, getter and
// setter of ifaces with a public trait of the same local name, and adds the
// interface-qualified names as aliases of the implementing entries.
func checkInterfaces(owner *ClassObject, vt *VTable, ifaces []*ClassObject) error {
	for _, iface := range ifaces {
		for _, t := range iface.def.Instance {
			pub := PublicName(t.Name.Local)
			p, ok := vt.props[pub]
			if !ok {
				p, ok = vt.props[t.Name]
			}
			switch {
			case !ok:
			case t.Kind == TraitMethod && p.Kind == PropMethod:
			case t.Kind == TraitGetter && p.Kind == PropVirtual && p.Get >= 0:
			case t.Kind == TraitSetter && p.Kind == PropVirtual && p.Set >= 0:
			default:
				ok = false
			}
			if !ok {
				return &VerificationError{
					Class:  owner.def.Name.String(),
					Offset: -1,
					Reason: fmt.Sprintf("Error #1144: Interface method %s in namespace %s not implemented by class %s.",
						t.Name.Local, iface.def.Name, owner.def.Name),
				}
			}
			if t.Name != pub {
				if _, taken := vt.props[t.Name]; !taken {
					vt.addName(t.Name, p)
				}
			}
		}
	}
	return nil
}
