package vm

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/chazu/avm2/vm/abc"
	"github.com/chazu/avm2/vm/heap"
	"github.com/chazu/avm2/vm/wire"
)

var byteArrayQName = PackageName("flash.utils", "ByteArray")

// ByteArrayObject is a growable byte buffer with a read/write cursor.
type ByteArrayObject struct {
	ScriptObject
	data   []byte
	pos    int
	little bool
}

func (b *ByteArrayObject) Trace(t *heap.Tracer) { b.traceBase(t) }

// Bytes returns the contents.
func (b *ByteArrayObject) Bytes() []byte { return b.data }

func (b *ByteArrayObject) order() binary.ByteOrder {
	if b.little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// reserve returns n writable bytes at the cursor, growing the buffer, and
// advances the cursor past them.
func (b *ByteArrayObject) reserve(n int) []byte {
	end := b.pos + n
	if end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	out := b.data[b.pos:end]
	b.pos = end
	return out
}

// take returns the next n bytes or raises EOFError #2030.
func (a *Activation) take(b *ByteArrayObject, n int) ([]byte, error) {
	if n < 0 || b.pos+n > len(b.data) {
		return nil, a.EOFError(2030, "End of file was encountered.")
	}
	out := b.data[b.pos : b.pos+n]
	b.pos += n
	return out, nil
}

// NewByteArray returns a ByteArray holding a copy of data.
func (a *Activation) NewByteArray(data []byte) *ByteArrayObject {
	b := &ByteArrayObject{data: append([]byte(nil), data...)}
	a.initObject(b, a.vm.classes.byteArray)
	return b
}

// ---------------------------------------------------------------------------
// Index access
// ---------------------------------------------------------------------------

func (b *ByteArrayObject) getHook(a *Activation, mn *Multiname, local string) (Value, bool, error) {
	i, ok := arrayIndex(local)
	if !ok {
		return Undefined, false, nil
	}
	if i < len(b.data) {
		return Int(int32(b.data[i])), true, nil
	}
	return Undefined, true, nil
}

func (b *ByteArrayObject) setHook(a *Activation, mn *Multiname, local string, v Value) (bool, error) {
	i, ok := arrayIndex(local)
	if !ok {
		return false, nil
	}
	n, err := a.ToInt32(v)
	if err != nil {
		return true, err
	}
	if i >= maxArrayGrowth {
		return true, a.RangeError(1506, "The specified range is invalid.")
	}
	if i >= len(b.data) {
		b.data = append(b.data, make([]byte, i+1-len(b.data))...)
	}
	b.data[i] = byte(n)
	return true, nil
}

func (b *ByteArrayObject) hasHook(a *Activation, mn *Multiname, local string) bool {
	i, ok := arrayIndex(local)
	return ok && i < len(b.data)
}

func (b *ByteArrayObject) deleteHook(*Activation, *Multiname, string) (bool, bool) {
	return false, false
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

type byteArrayMethod func(a *Activation, b *ByteArrayObject, args []Value) (Value, error)

func byteArrayClass() *Class {
	c := NewClass(byteArrayQName, "Object", ClassSealed).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &ByteArrayObject{}, nil }).
		Constructor(func(a *Activation, this Value, _ []Value) (Value, error) {
			b, err := thisAs[*ByteArrayObject](a, this, "flash.utils.ByteArray")
			if err != nil {
				return Undefined, err
			}
			if as, ok := bindAsset(b.class, abc.AssetBinary); ok {
				b.data = append([]byte(nil), as.Data...)
			}
			return Undefined, nil
		})

	add := func(name string, fn byteArrayMethod) {
		c.Method(name, func(a *Activation, this Value, args []Value) (Value, error) {
			b, err := thisAs[*ByteArrayObject](a, this, "flash.utils.ByteArray")
			if err != nil {
				return Undefined, err
			}
			return fn(a, b, args)
		})
	}
	accessor := func(name string, get byteArrayMethod, set byteArrayMethod) {
		wrap := func(fn byteArrayMethod) NativeMethod {
			return func(a *Activation, this Value, args []Value) (Value, error) {
				b, err := thisAs[*ByteArrayObject](a, this, "flash.utils.ByteArray")
				if err != nil {
					return Undefined, err
				}
				return fn(a, b, args)
			}
		}
		if set == nil {
			c.Getter(name, wrap(get))
			return
		}
		c.Accessor(name, wrap(get), wrap(set))
	}

	accessor("length",
		func(_ *Activation, b *ByteArrayObject, _ []Value) (Value, error) { return Uint(uint32(len(b.data))), nil },
		func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
			n, err := a.argUint(args, 0, 0)
			if err != nil {
				return Undefined, err
			}
			if int(n) > len(b.data) {
				b.data = append(b.data, make([]byte, int(n)-len(b.data))...)
			} else {
				b.data = b.data[:n]
			}
			if b.pos > len(b.data) {
				b.pos = len(b.data)
			}
			return Undefined, nil
		})
	accessor("position",
		func(_ *Activation, b *ByteArrayObject, _ []Value) (Value, error) { return Uint(uint32(b.pos)), nil },
		func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
			n, err := a.argUint(args, 0, 0)
			b.pos = int(n)
			return Undefined, err
		})
	accessor("bytesAvailable", func(_ *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		return Uint(uint32(max(len(b.data)-b.pos, 0))), nil
	}, nil)
	accessor("endian",
		func(_ *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
			if b.little {
				return String("littleEndian"), nil
			}
			return String("bigEndian"), nil
		},
		func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
			s, err := a.argString(args, 0, "")
			if err != nil {
				return Undefined, err
			}
			switch s {
			case "bigEndian":
				b.little = false
			case "littleEndian":
				b.little = true
			default:
				return Undefined, a.ArgumentError(2008, "Parameter type must be one of the accepted values.")
			}
			return Undefined, nil
		})

	// Fixed-width reads and writes.
	add("readByte", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 1)
		if err != nil {
			return Undefined, err
		}
		return Int(int32(int8(p[0]))), nil
	})
	add("readUnsignedByte", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 1)
		if err != nil {
			return Undefined, err
		}
		return Uint(uint32(p[0])), nil
	})
	add("readBoolean", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 1)
		if err != nil {
			return Undefined, err
		}
		return Bool(p[0] != 0), nil
	})
	add("readShort", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 2)
		if err != nil {
			return Undefined, err
		}
		return Int(int32(int16(b.order().Uint16(p)))), nil
	})
	add("readUnsignedShort", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 2)
		if err != nil {
			return Undefined, err
		}
		return Uint(uint32(b.order().Uint16(p))), nil
	})
	add("readInt", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 4)
		if err != nil {
			return Undefined, err
		}
		return Int(int32(b.order().Uint32(p))), nil
	})
	add("readUnsignedInt", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 4)
		if err != nil {
			return Undefined, err
		}
		return Uint(b.order().Uint32(p)), nil
	})
	add("readFloat", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 4)
		if err != nil {
			return Undefined, err
		}
		return Number(float64(math.Float32frombits(b.order().Uint32(p)))), nil
	})
	add("readDouble", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 8)
		if err != nil {
			return Undefined, err
		}
		return Number(math.Float64frombits(b.order().Uint64(p))), nil
	})
	add("writeByte", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		n, err := a.argInt(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		b.reserve(1)[0] = byte(n)
		return Undefined, nil
	})
	add("writeBoolean", func(_ *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		var v byte
		if argBool(args, 0, false) {
			v = 1
		}
		b.reserve(1)[0] = v
		return Undefined, nil
	})
	add("writeShort", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		n, err := a.argInt(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		b.order().PutUint16(b.reserve(2), uint16(n))
		return Undefined, nil
	})
	add("writeInt", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		n, err := a.argInt(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		b.order().PutUint32(b.reserve(4), uint32(n))
		return Undefined, nil
	})
	add("writeUnsignedInt", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		n, err := a.argUint(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		b.order().PutUint32(b.reserve(4), n)
		return Undefined, nil
	})
	add("writeFloat", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		f, err := a.argNumber(args, 0, math.NaN())
		if err != nil {
			return Undefined, err
		}
		b.order().PutUint32(b.reserve(4), math.Float32bits(float32(f)))
		return Undefined, nil
	})
	add("writeDouble", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		f, err := a.argNumber(args, 0, math.NaN())
		if err != nil {
			return Undefined, err
		}
		b.order().PutUint64(b.reserve(8), math.Float64bits(f))
		return Undefined, nil
	})

	// Strings.
	add("readUTF", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 2)
		if err != nil {
			return Undefined, err
		}
		s, err := a.take(b, int(b.order().Uint16(p)))
		if err != nil {
			return Undefined, err
		}
		return String(decodeUTF8(s)), nil
	})
	add("readUTFBytes", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		n, err := a.argUint(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		s, err := a.take(b, int(n))
		if err != nil {
			return Undefined, err
		}
		return String(decodeUTF8(s)), nil
	})
	add("writeUTF", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		s, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		if len(s) > math.MaxUint16 {
			return Undefined, a.RangeError(2006, "The supplied index is out of bounds.")
		}
		b.order().PutUint16(b.reserve(2), uint16(len(s)))
		copy(b.reserve(len(s)), s)
		return Undefined, nil
	})
	add("writeUTFBytes", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		s, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		copy(b.reserve(len(s)), s)
		return Undefined, nil
	})

	// Bulk transfer.
	add("readBytes", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		dst, err := thisAs[*ByteArrayObject](a, arg(args, 0), "flash.utils.ByteArray")
		if err != nil {
			return Undefined, err
		}
		off, err := a.argUint(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		n, err := a.argUint(args, 2, 0)
		if err != nil {
			return Undefined, err
		}
		if n == 0 {
			n = uint32(max(len(b.data)-b.pos, 0))
		}
		p, err := a.take(b, int(n))
		if err != nil {
			return Undefined, err
		}
		p = append([]byte(nil), p...)
		saved := dst.pos
		dst.pos = int(off)
		copy(dst.reserve(len(p)), p)
		dst.pos = saved
		return Undefined, nil
	})
	add("writeBytes", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		src, err := thisAs[*ByteArrayObject](a, arg(args, 0), "flash.utils.ByteArray")
		if err != nil {
			return Undefined, err
		}
		off, err := a.argUint(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		n, err := a.argUint(args, 2, 0)
		if err != nil {
			return Undefined, err
		}
		if int(off) > len(src.data) {
			return Undefined, a.RangeError(2006, "The supplied index is out of bounds.")
		}
		if n == 0 {
			n = uint32(len(src.data) - int(off))
		}
		if int(off)+int(n) > len(src.data) {
			return Undefined, a.RangeError(2006, "The supplied index is out of bounds.")
		}
		p := append([]byte(nil), src.data[off:int(off)+int(n)]...)
		copy(b.reserve(len(p)), p)
		return Undefined, nil
	})

	// Serialised values.
	add("writeObject", func(a *Activation, b *ByteArrayObject, args []Value) (Value, error) {
		payload, err := a.encodeValue(arg(args, 0), persistPolicy)
		if err != nil {
			return Undefined, err
		}
		binary.BigEndian.PutUint32(b.reserve(4), uint32(len(payload)))
		copy(b.reserve(len(payload)), payload)
		return Undefined, nil
	})
	add("readObject", func(a *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		p, err := a.take(b, 4)
		if err != nil {
			return Undefined, err
		}
		payload, err := a.take(b, int(binary.BigEndian.Uint32(p)))
		if err != nil {
			return Undefined, err
		}
		n, err := wire.Unmarshal(payload)
		if err != nil {
			return Undefined, a.PlainError(0, "Invalid object: %s", err)
		}
		return a.fromWire(n)
	})

	add("clear", func(_ *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		b.data, b.pos = nil, 0
		return Undefined, nil
	})
	add("toString", func(_ *Activation, b *ByteArrayObject, _ []Value) (Value, error) {
		return String(decodeUTF8(b.data)), nil
	})
	for _, name := range []string{"compress", "uncompress", "deflate", "inflate"} {
		name := name
		add(name, func(*Activation, *ByteArrayObject, []Value) (Value, error) {
			return Undefined, unsupported("ByteArray", name, "compression is not implemented")
		})
	}
	return c
}

// decodeUTF8 decodes bytes as UTF-8, dropping a leading byte-order mark and
// stopping at the first NUL the way the player does.
func decodeUTF8(p []byte) string {
	s := strings.TrimPrefix(string(p), "\uFEFF")
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}
