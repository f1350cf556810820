package abc

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrBadMagic is returned when decoded bytes are not an image.
var ErrBadMagic = errors.New("abc: not an AVM2 image")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("abc: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Encode serializes f deterministically.
func Encode(f *File) ([]byte, error) {
	data, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("abc: encode: %w", err)
	}
	return data, nil
}

// Decode parses an image and checks its header and table references.
// Method bodies are not verified here; that happens on first call.
func Decode(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("abc: decode: %w", err)
	}
	if f.Magic != Magic {
		return nil, ErrBadMagic
	}
	if f.Version != Version {
		return nil, fmt.Errorf("abc: unsupported image version %d", f.Version)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every cross-table index outside of bytecode.
func (f *File) Validate() error {
	if len(f.Strings) == 0 || len(f.Namespaces) == 0 || len(f.NSSets) == 0 ||
		len(f.Multinames) == 0 || len(f.Methods) == 0 || len(f.Classes) == 0 {
		return fmt.Errorf("abc: image is missing reserved pool entries")
	}
	in := func(i, n int) bool { return i >= 0 && i < n }

	for i, ns := range f.Namespaces[1:] {
		if !in(ns.Name, len(f.Strings)) {
			return fmt.Errorf("abc: namespace %d: bad name index %d", i+1, ns.Name)
		}
	}
	for i, set := range f.NSSets[1:] {
		for _, ns := range set {
			if !in(ns, len(f.Namespaces)) || ns == 0 {
				return fmt.Errorf("abc: ns-set %d: bad namespace index %d", i+1, ns)
			}
		}
	}
	for i, mn := range f.Multinames[1:] {
		switch mn.Kind {
		case QName:
			if !in(mn.NS, len(f.Namespaces)) || mn.NS == 0 {
				return fmt.Errorf("abc: multiname %d: bad namespace %d", i+1, mn.NS)
			}
		case Multi, MultiLate:
			if !in(mn.NSSet, len(f.NSSets)) || mn.NSSet == 0 {
				return fmt.Errorf("abc: multiname %d: bad ns-set %d", i+1, mn.NSSet)
			}
		default:
			return fmt.Errorf("abc: multiname %d: unknown kind %d", i+1, mn.Kind)
		}
		if !in(mn.Name, len(f.Strings)) {
			return fmt.Errorf("abc: multiname %d: bad name %d", i+1, mn.Name)
		}
	}
	name := func(i int) bool { return i == 0 || in(i, len(f.Multinames)) }
	for i, m := range f.Methods[1:] {
		if !in(m.Name, len(f.Strings)) || !name(m.ReturnType) {
			return fmt.Errorf("abc: method %d: bad name or return type", i+1)
		}
		for _, p := range m.Params {
			if !name(p.Type) {
				return fmt.Errorf("abc: method %d: bad parameter type %d", i+1, p.Type)
			}
		}
	}
	traits := func(owner string, ts []Trait) error {
		for _, t := range ts {
			if t.Name == 0 || !in(t.Name, len(f.Multinames)) || f.Multinames[t.Name].Kind != QName {
				return fmt.Errorf("abc: %s: trait name %d is not a qualified name", owner, t.Name)
			}
			switch t.Kind {
			case TraitMethod, TraitGetter, TraitSetter, TraitFunction:
				if t.Method == 0 || !in(t.Method, len(f.Methods)) {
					return fmt.Errorf("abc: %s: trait %d: bad method %d", owner, t.Name, t.Method)
				}
			case TraitClass:
				if t.Class == 0 || !in(t.Class, len(f.Classes)) {
					return fmt.Errorf("abc: %s: trait %d: bad class %d", owner, t.Name, t.Class)
				}
			case TraitSlot, TraitConst:
				if !name(t.Type) {
					return fmt.Errorf("abc: %s: trait %d: bad type %d", owner, t.Name, t.Type)
				}
			default:
				return fmt.Errorf("abc: %s: unknown trait kind %d", owner, t.Kind)
			}
		}
		return nil
	}
	for i, c := range f.Classes[1:] {
		owner := fmt.Sprintf("class %d", i+1)
		if c.Name == 0 || !in(c.Name, len(f.Multinames)) || f.Multinames[c.Name].Kind != QName {
			return fmt.Errorf("abc: %s: bad name %d", owner, c.Name)
		}
		if !name(c.Super) {
			return fmt.Errorf("abc: %s: bad superclass %d", owner, c.Super)
		}
		for _, iface := range c.Interfaces {
			if iface == 0 || !name(iface) {
				return fmt.Errorf("abc: %s: bad interface %d", owner, iface)
			}
		}
		if !in(c.Init, len(f.Methods)) || !in(c.StaticInit, len(f.Methods)) {
			return fmt.Errorf("abc: %s: bad initializer", owner)
		}
		if !in(c.Asset, len(f.Strings)) {
			return fmt.Errorf("abc: %s: bad asset name %d", owner, c.Asset)
		}
		if err := traits(owner, c.Traits); err != nil {
			return err
		}
		if err := traits(owner+" (static)", c.StaticTraits); err != nil {
			return err
		}
	}
	for i, s := range f.Scripts {
		if s.Init == 0 || !in(s.Init, len(f.Methods)) {
			return fmt.Errorf("abc: script %d: bad init method %d", i, s.Init)
		}
		if err := traits(fmt.Sprintf("script %d", i), s.Traits); err != nil {
			return err
		}
	}
	return nil
}
