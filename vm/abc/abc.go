// Package abc models an ActionScript Byte Code image: the constant pools,
// method bodies, class and trait tables, scripts and embedded assets that a
// compiled program hands to the VM. Images travel as CBOR (see Encode).
//
// Every pool reserves index 0 to mean "none" (or "any type" where a type is
// expected), the same convention the original ABC format uses.
package abc

// Magic and Version identify an encoded image.
const (
	Magic   = "AVM2"
	Version = 1
)

// NamespaceKind distinguishes the namespace flavours the VM understands.
type NamespaceKind uint8

const (
	NSPackage NamespaceKind = iota + 1
	NSPackageInternal
	NSProtected
	NSPrivate
	NSExplicit
	NSStaticProtected
	NSNamespace
)

type Namespace struct {
	Kind NamespaceKind `cbor:"1,keyasint"`
	Name int           `cbor:"2,keyasint,omitempty"` // string pool index
}

// MultinameKind selects how a multiname is resolved.
type MultinameKind uint8

const (
	QName       MultinameKind = iota + 1 // one namespace, static local name
	Multi                                // namespace set, static local name
	MultiLate                            // namespace set, local name popped at run time
)

type Multiname struct {
	Kind  MultinameKind `cbor:"1,keyasint"`
	NS    int           `cbor:"2,keyasint,omitempty"` // namespace pool index (QName)
	NSSet int           `cbor:"3,keyasint,omitempty"` // ns-set pool index (Multi, MultiLate)
	Name  int           `cbor:"4,keyasint,omitempty"` // string pool index
}

// ConstKind tags a default or initial value. Values match the ABC constant
// kind bytes.
type ConstKind uint8

const (
	ConstUndefined ConstKind = 0x00
	ConstUtf8      ConstKind = 0x01
	ConstInt       ConstKind = 0x03
	ConstUint      ConstKind = 0x04
	ConstDouble    ConstKind = 0x06
	ConstFalse     ConstKind = 0x0A
	ConstTrue      ConstKind = 0x0B
	ConstNull      ConstKind = 0x0C
)

// Const references a pooled constant.
type Const struct {
	Kind  ConstKind `cbor:"1,keyasint,omitempty"`
	Index int       `cbor:"2,keyasint,omitempty"`
}

type MethodFlags uint8

const (
	NeedArguments  MethodFlags = 0x01
	NeedActivation MethodFlags = 0x02
	NeedRest       MethodFlags = 0x04
	HasOptional    MethodFlags = 0x08
)

type Param struct {
	Type     int   `cbor:"1,keyasint,omitempty"` // multiname index, 0 for any
	Optional bool  `cbor:"2,keyasint,omitempty"`
	Default  Const `cbor:"3,keyasint,omitempty"`
}

type Method struct {
	Name       int         `cbor:"1,keyasint,omitempty"`
	Params     []Param     `cbor:"2,keyasint,omitempty"`
	ReturnType int         `cbor:"3,keyasint,omitempty"`
	Flags      MethodFlags `cbor:"4,keyasint,omitempty"`
	Body       *Body       `cbor:"5,keyasint,omitempty"`
}

// Body is the executable part of a method.
type Body struct {
	MaxStack       int         `cbor:"1,keyasint,omitempty"`
	LocalCount     int         `cbor:"2,keyasint,omitempty"`
	InitScopeDepth int         `cbor:"3,keyasint,omitempty"`
	MaxScopeDepth  int         `cbor:"4,keyasint,omitempty"`
	Code           []byte      `cbor:"5,keyasint"`
	Exceptions     []Exception `cbor:"6,keyasint,omitempty"`
}

// Exception is one try-region. From and To bound the protected byte range
// (To exclusive); Target is where control resumes with the thrown value on
// the stack.
type Exception struct {
	From    int `cbor:"1,keyasint"`
	To      int `cbor:"2,keyasint"`
	Target  int `cbor:"3,keyasint"`
	Type    int `cbor:"4,keyasint,omitempty"` // multiname, 0 catches everything
	VarName int `cbor:"5,keyasint,omitempty"`
}

type TraitKind uint8

const (
	TraitSlot     TraitKind = 0
	TraitMethod   TraitKind = 1
	TraitGetter   TraitKind = 2
	TraitSetter   TraitKind = 3
	TraitClass    TraitKind = 4
	TraitFunction TraitKind = 5
	TraitConst    TraitKind = 6
)

type TraitAttr uint8

const (
	AttrFinal    TraitAttr = 0x1
	AttrOverride TraitAttr = 0x2
)

type Trait struct {
	Name   int       `cbor:"1,keyasint"` // must name a QName
	Kind   TraitKind `cbor:"2,keyasint,omitempty"`
	Attr   TraitAttr `cbor:"3,keyasint,omitempty"`
	SlotID int       `cbor:"4,keyasint,omitempty"`
	Type   int       `cbor:"5,keyasint,omitempty"`
	Value  Const     `cbor:"6,keyasint,omitempty"`
	Method int       `cbor:"7,keyasint,omitempty"`
	Class  int       `cbor:"8,keyasint,omitempty"`
}

type ClassFlags uint8

const (
	ClassSealed      ClassFlags = 0x01
	ClassFinal       ClassFlags = 0x02
	ClassInterface   ClassFlags = 0x04
	ClassProtectedNS ClassFlags = 0x08
)

type Class struct {
	Name         int        `cbor:"1,keyasint"`
	Super        int        `cbor:"2,keyasint,omitempty"`
	Flags        ClassFlags `cbor:"3,keyasint,omitempty"`
	ProtectedNS  int        `cbor:"4,keyasint,omitempty"`
	Interfaces   []int      `cbor:"5,keyasint,omitempty"`
	Init         int        `cbor:"6,keyasint,omitempty"`
	Traits       []Trait    `cbor:"7,keyasint,omitempty"`
	StaticInit   int        `cbor:"8,keyasint,omitempty"`
	StaticTraits []Trait    `cbor:"9,keyasint,omitempty"`
	Asset        int        `cbor:"10,keyasint,omitempty"` // string index naming an embedded asset
}

type Script struct {
	Init   int     `cbor:"1,keyasint"`
	Traits []Trait `cbor:"2,keyasint,omitempty"`
}

type AssetKind uint8

const (
	AssetBinary AssetKind = iota + 1
	AssetBitmap
)

// Asset is an embedded resource a class can bind to by name.
type Asset struct {
	Name        string    `cbor:"1,keyasint"`
	Kind        AssetKind `cbor:"2,keyasint"`
	Data        []byte    `cbor:"3,keyasint,omitempty"` // raw bytes, or ARGB pixels for bitmaps
	Width       int       `cbor:"4,keyasint,omitempty"`
	Height      int       `cbor:"5,keyasint,omitempty"`
	Transparent bool      `cbor:"6,keyasint,omitempty"`
}

// File is a complete program image.
type File struct {
	Magic      string      `cbor:"1,keyasint"`
	Version    int         `cbor:"2,keyasint"`
	Ints       []int32     `cbor:"3,keyasint"`
	Uints      []uint32    `cbor:"4,keyasint"`
	Doubles    []float64   `cbor:"5,keyasint"`
	Strings    []string    `cbor:"6,keyasint"`
	Namespaces []Namespace `cbor:"7,keyasint"`
	NSSets     [][]int     `cbor:"8,keyasint"`
	Multinames []Multiname `cbor:"9,keyasint"`
	Methods    []Method    `cbor:"10,keyasint"`
	Classes    []Class     `cbor:"11,keyasint"`
	Scripts    []Script    `cbor:"12,keyasint,omitempty"`
	Assets     []Asset     `cbor:"13,keyasint,omitempty"`
}

// NewFile returns an empty image with index 0 of every pool reserved.
func NewFile() *File {
	return &File{
		Magic:      Magic,
		Version:    Version,
		Ints:       []int32{0},
		Uints:      []uint32{0},
		Doubles:    []float64{0},
		Strings:    []string{""},
		Namespaces: []Namespace{{}},
		NSSets:     [][]int{nil},
		Multinames: []Multiname{{}},
		Methods:    []Method{{}},
		Classes:    []Class{{}},
	}
}

// Asset returns the embedded asset with the given name.
func (f *File) Asset(name string) (*Asset, bool) {
	for i := range f.Assets {
		if f.Assets[i].Name == name {
			return &f.Assets[i], true
		}
	}
	return nil, false
}
