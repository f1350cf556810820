package vm

import (
	"github.com/chazu/avm2/vm/wire"
)

// ---------------------------------------------------------------------------
// Value graphs to wire trees and back
// ---------------------------------------------------------------------------

// marshalPolicy selects what may cross a given boundary.
type marshalPolicy struct {
	op         string // operation named in unsupported errors
	allowBytes bool
}

var (
	// channelPolicy applies to MessageChannel.send.
	channelPolicy = marshalPolicy{op: "send"}
	// persistPolicy applies to writeObject, SharedObject and shared
	// worker properties.
	persistPolicy = marshalPolicy{op: "writeObject", allowBytes: true}
)

type encoder struct {
	a      *Activation
	policy marshalPolicy
	seen   map[Object]int
	next   int
}

// toWire converts v into a wire tree. Shared and cyclic subgraphs become
// Ref nodes.
func (a *Activation) toWire(v Value, policy marshalPolicy) (wire.Node, error) {
	e := &encoder{a: a, policy: policy, seen: make(map[Object]int)}
	return e.encode(v)
}

// encodeValue marshals v to bytes.
func (a *Activation) encodeValue(v Value, policy marshalPolicy) ([]byte, error) {
	n, err := a.toWire(v, policy)
	if err != nil {
		return nil, err
	}
	return wire.Marshal(n)
}

func (e *encoder) encode(v Value) (wire.Node, error) {
	switch v.kind {
	case KindUndefined:
		return wire.Undefined(), nil
	case KindNull:
		return wire.Null(), nil
	case KindBool:
		return wire.Bool(v.AsBool()), nil
	case KindInt:
		return wire.Int(v.AsInt()), nil
	case KindUint:
		return wire.Uint(v.AsUint()), nil
	case KindNumber:
		return wire.Number(v.Float()), nil
	case KindString:
		return wire.String(v.str), nil
	}
	obj := v.obj
	if idx, ok := e.seen[obj]; ok {
		return wire.Ref(idx), nil
	}
	switch o := obj.(type) {
	case *XMLObject:
		return wire.XML(o.XMLString()), nil
	case *XMLListObject:
		return wire.XML(o.XMLString()), nil
	case *ByteArrayObject:
		if !e.policy.allowBytes {
			return wire.Node{}, unsupported("MessageChannel", e.policy.op, "ByteArray values cannot be sent")
		}
		return wire.Bytes(o.data), nil
	case *WorkerObject, *MessageChannelObject, *MutexObject, *ConditionObject:
		return wire.Node{}, unsupported(e.a.describeLocal(v), e.policy.op, "native handles cannot be serialised")
	case *FunctionObject, *ClassObject:
		return wire.Undefined(), nil
	case *ArrayObject:
		e.open(obj)
		items := make([]wire.Node, len(o.dense))
		for i, it := range o.dense {
			n, err := e.encode(it)
			if err != nil {
				return wire.Node{}, err
			}
			items[i] = n
		}
		fields, err := e.dynamicFields(obj)
		if err != nil {
			return wire.Node{}, err
		}
		return wire.Node{Kind: wire.KindArray, Items: items, Fields: fields}, nil
	}

	e.open(obj)
	b := obj.Base()
	var fields []wire.Field
	if b.class != nil && b.vtable != nil {
		for _, q := range b.vtable.Names() {
			p, _ := b.vtable.Get(q)
			if !q.NS.IsPublic() || (p.Kind != PropSlot && p.Kind != PropConst) {
				continue
			}
			n, err := e.encode(b.Slot(p.Slot))
			if err != nil {
				return wire.Node{}, err
			}
			fields = append(fields, wire.Field{Name: q.Local, Value: n})
		}
	}
	dyn, err := e.dynamicFields(obj)
	if err != nil {
		return wire.Node{}, err
	}
	fields = append(fields, dyn...)
	node := wire.Object(fields...)
	node.Alias = e.a.vm.aliasOf(b.class)
	return node, nil
}

func (e *encoder) open(obj Object) {
	e.seen[obj] = e.next
	e.next++
}

func (e *encoder) dynamicFields(obj Object) ([]wire.Field, error) {
	d := obj.Base().dyn
	if d == nil {
		return nil, nil
	}
	var out []wire.Field
	var err error
	d.Range(func(q QName, v Value) bool {
		var n wire.Node
		if n, err = e.encode(v); err != nil {
			return false
		}
		out = append(out, wire.Field{Name: q.Local, Value: n})
		return true
	})
	return out, err
}

// aliasOf returns the alias registered for cls, or "".
func (vm *VM) aliasOf(cls *ClassObject) string {
	if cls == nil {
		return ""
	}
	for alias, c := range vm.aliases {
		if c == cls {
			return alias
		}
	}
	return ""
}

type decoder struct {
	a    *Activation
	refs []Object
}

// fromWire materialises a wire tree in this activation's heap.
func (a *Activation) fromWire(n wire.Node) (Value, error) {
	d := &decoder{a: a}
	return d.decode(n)
}

// decodeValue unmarshals bytes produced by encodeValue.
func (a *Activation) decodeValue(data []byte) (Value, error) {
	n, err := wire.Unmarshal(data)
	if err != nil {
		return Undefined, err
	}
	return a.fromWire(n)
}

func (d *decoder) decode(n wire.Node) (Value, error) {
	a := d.a
	switch n.Kind {
	case wire.KindUndefined:
		return Undefined, nil
	case wire.KindNull:
		return Null, nil
	case wire.KindBool:
		return Bool(n.Bool), nil
	case wire.KindInt:
		return Int(int32(n.Int)), nil
	case wire.KindUint:
		return Uint(uint32(n.Int)), nil
	case wire.KindNumber:
		return Number(n.Number), nil
	case wire.KindString:
		return String(n.String), nil
	case wire.KindBytes:
		return FromObject(a.NewByteArray(n.Bytes)), nil
	case wire.KindXML:
		nodes, err := a.parseXML(n.String)
		if err != nil {
			return Undefined, a.TypeError(1088, "The markup in the document following the root element must be well-formed.")
		}
		if len(nodes) == 1 {
			return FromObject(nodes[0]), nil
		}
		return FromObject(a.newXMLList(nodes)), nil
	case wire.KindRef:
		if n.Int < 0 || int(n.Int) >= len(d.refs) {
			return Undefined, a.PlainError(0, "Invalid object reference %d.", n.Int)
		}
		return FromObject(d.refs[n.Int]), nil
	case wire.KindArray:
		arr := a.NewArray(nil)
		d.refs = append(d.refs, arr)
		for _, it := range n.Items {
			v, err := d.decode(it)
			if err != nil {
				return Undefined, err
			}
			a.write(arr)
			arr.dense = append(arr.dense, v)
		}
		return FromObject(arr), d.fill(arr, n.Fields)
	case wire.KindObject:
		var obj Object
		if cls := a.vm.aliases[n.Alias]; n.Alias != "" && cls != nil {
			v, err := a.Construct(cls, nil)
			if err != nil {
				return Undefined, err
			}
			obj = v.obj
		} else {
			obj = a.NewObject()
		}
		d.refs = append(d.refs, obj)
		return FromObject(obj), d.fill(obj, n.Fields)
	}
	return Undefined, a.PlainError(0, "Unsupported serialised value kind %s.", n.Kind)
}

func (d *decoder) fill(obj Object, fields []wire.Field) error {
	for _, f := range fields {
		v, err := d.decode(f.Value)
		if err != nil {
			return err
		}
		if err := d.a.Set(FromObject(obj), f.Name, v); err != nil {
			return err
		}
	}
	return nil
}
