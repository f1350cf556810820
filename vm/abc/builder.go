package abc

import (
	"fmt"
	"math"
	"strings"
)

// Builder assembles a File, deduplicating pool entries.
type Builder struct {
	f          *File
	strings    map[string]int
	ints       map[int32]int
	uints      map[uint32]int
	doubles    map[uint64]int
	namespaces map[Namespace]int
	nssets     map[string]int
	multinames map[Multiname]int
}

// NewBuilder returns a Builder over an empty image.
func NewBuilder() *Builder {
	return &Builder{
		f:          NewFile(),
		strings:    make(map[string]int),
		ints:       make(map[int32]int),
		uints:      make(map[uint32]int),
		doubles:    make(map[uint64]int),
		namespaces: make(map[Namespace]int),
		nssets:     make(map[string]int),
		multinames: make(map[Multiname]int),
	}
}

// File returns the image built so far.
func (b *Builder) File() *File { return b.f }

func (b *Builder) String(s string) int {
	if i, ok := b.strings[s]; ok {
		return i
	}
	b.f.Strings = append(b.f.Strings, s)
	i := len(b.f.Strings) - 1
	b.strings[s] = i
	return i
}

func (b *Builder) Int(v int32) int {
	if i, ok := b.ints[v]; ok {
		return i
	}
	b.f.Ints = append(b.f.Ints, v)
	i := len(b.f.Ints) - 1
	b.ints[v] = i
	return i
}

func (b *Builder) Uint(v uint32) int {
	if i, ok := b.uints[v]; ok {
		return i
	}
	b.f.Uints = append(b.f.Uints, v)
	i := len(b.f.Uints) - 1
	b.uints[v] = i
	return i
}

func (b *Builder) Double(v float64) int {
	key := math.Float64bits(v)
	if i, ok := b.doubles[key]; ok {
		return i
	}
	b.f.Doubles = append(b.f.Doubles, v)
	i := len(b.f.Doubles) - 1
	b.doubles[key] = i
	return i
}

// Namespace interns a namespace of the given kind and URI.
func (b *Builder) Namespace(kind NamespaceKind, uri string) int {
	ns := Namespace{Kind: kind, Name: b.String(uri)}
	if kind == NSPrivate {
		// Private namespaces are distinct even when their names collide.
		b.f.Namespaces = append(b.f.Namespaces, ns)
		return len(b.f.Namespaces) - 1
	}
	if i, ok := b.namespaces[ns]; ok {
		return i
	}
	b.f.Namespaces = append(b.f.Namespaces, ns)
	i := len(b.f.Namespaces) - 1
	b.namespaces[ns] = i
	return i
}

// PackageNS interns the public namespace of a package. "" is the top level.
func (b *Builder) PackageNS(pkg string) int {
	return b.Namespace(NSPackage, pkg)
}

func (b *Builder) NSSet(namespaces ...int) int {
	parts := make([]string, len(namespaces))
	for i, ns := range namespaces {
		parts[i] = fmt.Sprint(ns)
	}
	key := strings.Join(parts, ",")
	if i, ok := b.nssets[key]; ok {
		return i
	}
	b.f.NSSets = append(b.f.NSSets, append([]int(nil), namespaces...))
	i := len(b.f.NSSets) - 1
	b.nssets[key] = i
	return i
}

func (b *Builder) multiname(mn Multiname) int {
	if i, ok := b.multinames[mn]; ok {
		return i
	}
	b.f.Multinames = append(b.f.Multinames, mn)
	i := len(b.f.Multinames) - 1
	b.multinames[mn] = i
	return i
}

// QName interns a qualified name in namespace ns.
func (b *Builder) QName(ns int, local string) int {
	return b.multiname(Multiname{Kind: QName, NS: ns, Name: b.String(local)})
}

// PublicName interns a QName in the public namespace of pkg.
func (b *Builder) PublicName(pkg, local string) int {
	return b.QName(b.PackageNS(pkg), local)
}

// Multiname interns a name searched across a namespace set.
func (b *Builder) Multiname(nsset int, local string) int {
	return b.multiname(Multiname{Kind: Multi, NSSet: nsset, Name: b.String(local)})
}

// MultinameL interns a name whose local part is taken from the stack.
func (b *Builder) MultinameL(nsset int) int {
	return b.multiname(Multiname{Kind: MultiLate, NSSet: nsset})
}

func (b *Builder) Method(m Method) int {
	b.f.Methods = append(b.f.Methods, m)
	return len(b.f.Methods) - 1
}

func (b *Builder) Class(c Class) int {
	b.f.Classes = append(b.f.Classes, c)
	return len(b.f.Classes) - 1
}

func (b *Builder) Script(s Script) int {
	b.f.Scripts = append(b.f.Scripts, s)
	return len(b.f.Scripts) - 1
}

func (b *Builder) Asset(a Asset) {
	b.f.Assets = append(b.f.Assets, a)
}

// ---------------------------------------------------------------------------
// Asm: label-aware instruction encoder
// ---------------------------------------------------------------------------

type fixup struct {
	at     int // position of the s24 operand
	base   int // offset the branch is relative to
	label  string
	origin int // opcode offset, for error reporting
}

// Asm encodes instructions into a byte slice. Branches refer to labels that
// may be defined before or after use.
type Asm struct {
	buf    []byte
	labels map[string]int
	fixups []fixup
	err    error
}

func NewAsm() *Asm {
	return &Asm{labels: make(map[string]int)}
}

// Offset returns the current byte offset.
func (a *Asm) Offset() int { return len(a.buf) }

// Label marks the current offset.
func (a *Asm) Label(name string) *Asm {
	if _, dup := a.labels[name]; dup && a.err == nil {
		a.err = fmt.Errorf("abc: label %q defined twice", name)
	}
	a.labels[name] = len(a.buf)
	return a
}

// Op emits op with its operands. Branch opcodes must use Jump instead.
func (a *Asm) Op(op Op, operands ...int) *Asm {
	kinds := op.Operands()
	if a.err == nil && (op.IsBranch() || op == OpLookupSwitch) {
		a.err = fmt.Errorf("abc: %s needs a label; use Jump", op)
	}
	if a.err == nil && len(operands) != len(kinds) {
		a.err = fmt.Errorf("abc: %s takes %d operands, got %d", op, len(kinds), len(operands))
	}
	a.buf = append(a.buf, byte(op))
	for i, v := range operands {
		if i >= len(kinds) {
			break
		}
		switch kinds[i] {
		case OperandU8, OperandS8:
			a.buf = append(a.buf, byte(v))
		default:
			a.buf = AppendU30(a.buf, uint32(v))
		}
	}
	return a
}

// Jump emits a branch opcode targeting label.
func (a *Asm) Jump(op Op, label string) *Asm {
	if a.err == nil && !op.IsBranch() {
		a.err = fmt.Errorf("abc: %s is not a branch", op)
	}
	origin := len(a.buf)
	a.buf = append(a.buf, byte(op))
	at := len(a.buf)
	a.buf = AppendS24(a.buf, 0)
	a.fixups = append(a.fixups, fixup{at: at, base: at + 3, label: label, origin: origin})
	return a
}

// Switch emits a lookupswitch with a default label and one label per case.
func (a *Asm) Switch(def string, cases ...string) *Asm {
	origin := len(a.buf)
	a.buf = append(a.buf, byte(OpLookupSwitch))
	a.fixups = append(a.fixups, fixup{at: len(a.buf), base: origin, label: def, origin: origin})
	a.buf = AppendS24(a.buf, 0)
	a.buf = AppendU30(a.buf, uint32(len(cases)-1))
	for _, c := range cases {
		a.fixups = append(a.fixups, fixup{at: len(a.buf), base: origin, label: c, origin: origin})
		a.buf = AppendS24(a.buf, 0)
	}
	return a
}

// Raw appends bytes verbatim. Useful for deliberately malformed code.
func (a *Asm) Raw(bs ...byte) *Asm {
	a.buf = append(a.buf, bs...)
	return a
}

// Code resolves every branch and returns the encoded bytes.
func (a *Asm) Code() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	out := append([]byte(nil), a.buf...)
	for _, fx := range a.fixups {
		target, ok := a.labels[fx.label]
		if !ok {
			return nil, fmt.Errorf("abc: undefined label %q at offset %d", fx.label, fx.origin)
		}
		putS24(out[fx.at:fx.at+3], target-fx.base)
	}
	return out, nil
}

// MustCode is Code for fixtures known to be well formed.
func (a *Asm) MustCode() []byte {
	code, err := a.Code()
	if err != nil {
		panic(err)
	}
	return code
}

func putS24(dst []byte, v int) {
	dst[0], dst[1], dst[2] = byte(v), byte(v>>8), byte(v>>16)
}
