// Package wire defines the self-describing format values take when they
// leave a heap: channel messages, ByteArray.writeObject payloads and
// persisted shared objects. A value graph becomes a tree of Nodes; shared
// and cyclic subgraphs are expressed with Ref nodes that point back at an
// earlier composite by its pre-order index.
package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// Version of the message envelope.
const Version = 1

// ErrUnsupportedKind is returned when a payload contains a node kind this
// version does not understand.
var ErrUnsupportedKind = errors.New("wire: unsupported node kind")

type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindUint
	KindNumber
	KindString
	KindArray
	KindObject
	KindXML
	KindBytes
	KindRef
)

var kindNames = [...]string{"undefined", "null", "bool", "int", "uint", "number", "string", "array", "object", "xml", "bytes", "ref"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Node is one encoded value.
type Node struct {
	Kind   Kind    `cbor:"1,keyasint"`
	Bool   bool    `cbor:"2,keyasint,omitempty"`
	Int    int64   `cbor:"3,keyasint,omitempty"` // int, uint, ref index
	Number float64 `cbor:"4,keyasint"`           // kept even when zero so -0 survives
	String string  `cbor:"5,keyasint,omitempty"` // string, xml source
	Items  []Node  `cbor:"6,keyasint,omitempty"` // dense array elements
	Fields []Field `cbor:"7,keyasint,omitempty"` // object properties, array extras; ordered
	Alias  string  `cbor:"8,keyasint,omitempty"` // registered class alias of a typed object
	Bytes  []byte  `cbor:"9,keyasint,omitempty"`
}

// Field is a named property of an object or array node.
type Field struct {
	Name  string `cbor:"1,keyasint"`
	Value Node   `cbor:"2,keyasint"`
}

type envelope struct {
	Version int  `cbor:"1,keyasint"`
	Root    Node `cbor:"2,keyasint"`
}

func Undefined() Node { return Node{Kind: KindUndefined} }
func Null() Node { return Node{Kind: KindNull} }
func Bool(b bool) Node { return Node{Kind: KindBool, Bool: b} }
func Int(i int32) Node { return Node{Kind: KindInt, Int: int64(i)} }
func Uint(u uint32) Node { return Node{Kind: KindUint, Int: int64(u)} }
func Number(f float64) Node { return Node{Kind: KindNumber, Number: f} }
func String(s string) Node { return Node{Kind: KindString, String: s} }
func XML(src string) Node { return Node{Kind: KindXML, String: src} }
func Bytes(b []byte) Node { return Node{Kind: KindBytes, Bytes: append([]byte(nil), b...)} }
func Ref(index int) Node { return Node{Kind: KindRef, Int: int64(index)} }
func Array(items ...Node) Node { return Node{Kind: KindArray, Items: items} }
func Object(fields ...Field) Node { return Node{Kind: KindObject, Fields: fields} }

// Typed returns an object node carrying a class alias.
func Typed(alias string, fields ...Field) Node {
	return Node{Kind: KindObject, Alias: alias, Fields: fields}
}

// Get returns the value of the named field of an object node.
func (n Node) Get(name string) (Node, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Node{}, false
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal encodes root inside a versioned envelope.
func Marshal(root Node) ([]byte, error) {
	if err := validate(root, new(int)); err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(envelope{Version: Version, Root: root})
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(data []byte) (Node, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Node{}, fmt.Errorf("wire: unmarshal: %w", err)
	}
	if env.Version != Version {
		return Node{}, fmt.Errorf("wire: unsupported version %d", env.Version)
	}
	if err := validate(env.Root, new(int)); err != nil {
		return Node{}, err
	}
	return env.Root, nil
}

// validate checks kinds and that every Ref points at a composite that has
// already been opened in pre-order.
func validate(n Node, composites *int) error {
	switch n.Kind {
	case KindUndefined, KindNull, KindBool, KindInt, KindUint, KindNumber, KindString, KindXML, KindBytes:
		return nil
	case KindRef:
		if n.Int < 0 || n.Int >= int64(*composites) {
			return fmt.Errorf("wire: reference %d to unknown object", n.Int)
		}
		return nil
	case KindArray, KindObject:
		*composites++
		for _, item := range n.Items {
			if err := validate(item, composites); err != nil {
				return err
			}
		}
		for _, f := range n.Fields {
			if err := validate(f.Value, composites); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnsupportedKind, n.Kind)
}

// Equal reports whether two trees are structurally identical. NaN equals
// NaN and -0 is distinguished from +0, so Equal is the round-trip relation.
func Equal(a, b Node) bool {
	if a.Kind != b.Kind || a.Alias != b.Alias {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindInt, KindUint, KindRef:
		return a.Int == b.Int
	case KindNumber:
		return math.Float64bits(a.Number) == math.Float64bits(b.Number) ||
			(math.IsNaN(a.Number) && math.IsNaN(b.Number))
	case KindString, KindXML:
		return a.String == b.String
	case KindBytes:
		return string(a.Bytes) == string(b.Bytes)
	case KindArray, KindObject:
		if len(a.Items) != len(b.Items) || len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Value, b.Fields[i].Value) {
				return false
			}
		}
	}
	return true
}
