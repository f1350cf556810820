package vm

import (
	"errors"

	"github.com/chazu/avm2/vm/abc"
	"github.com/chazu/avm2/vm/bitmap"
	"github.com/chazu/avm2/vm/heap"
)

var (
	bitmapDataQName  = PackageName("flash.display", "BitmapData")
	cubeTextureQName = PackageName("flash.display3D.textures", "CubeTexture")
)

// displayClasses defines the pixel and display-tree classes.
func displayClasses() []*Class {
	displayObject := NewClass(PackageName("flash.display", "DisplayObject"), "Object", ClassDisplayNode)
	sprite := NewClass(PackageName("flash.display", "Sprite"), "flash.display::DisplayObject", 0)
	return []*Class{displayObject, sprite, bitmapDataClass(), cubeTextureClass()}
}

// bindAsset returns the embedded asset of the given kind bound to cls or
// one of its superclasses.
func bindAsset(cls *ClassObject, kind abc.AssetKind) (*abc.Asset, bool) {
	for k := cls; k != nil; k = k.super {
		if k.def.Asset == "" {
			continue
		}
		if as, ok := k.domain.Asset(k.def.Asset); ok && as.Kind == kind {
			return as, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// BitmapData
// ---------------------------------------------------------------------------

// BitmapDataObject owns a pixel buffer registered with the VM's backend.
// Every mutation is pushed to the backend unless the bitmap is locked.
type BitmapDataObject struct {
	ScriptObject
	buf     heap.Static[*bitmap.Buffer]
	backend heap.Static[bitmap.Backend]
	handle  bitmap.Handle
	locked  bool
}

func (b *BitmapDataObject) Trace(t *heap.Tracer) { b.traceBase(t) }

// Finalize releases the backend texture of a collected bitmap.
func (b *BitmapDataObject) Finalize() { b.release() }

// Buffer returns the pixel buffer, or nil before construction.
func (b *BitmapDataObject) Buffer() *bitmap.Buffer { return b.buf.Get() }

// Handle returns the backend handle.
func (b *BitmapDataObject) Handle() bitmap.Handle { return b.handle }

func (b *BitmapDataObject) release() {
	if be := b.backend.Get(); be != nil && b.handle != 0 {
		be.Release(b.handle)
		b.handle = 0
	}
}

func (b *BitmapDataObject) attach(a *Activation, buf *bitmap.Buffer) {
	b.buf = heap.NewStatic(buf)
	b.backend = heap.NewStatic(a.vm.opts.Backend)
	b.handle = a.vm.opts.Backend.Register(buf)
}

// sync pushes the dirty region to the backend.
func (b *BitmapDataObject) sync() error {
	if b.locked || b.handle == 0 {
		return nil
	}
	buf := b.buf.Get()
	dirty, ok := buf.TakeDirty()
	if !ok {
		return nil
	}
	return b.backend.Get().Update(b.handle, buf, dirty)
}

// liveBitmap returns the receiver's buffer, raising ArgumentError #2015 for a
// disposed or unconstructed bitmap.
func (a *Activation) liveBitmap(v Value) (*BitmapDataObject, *bitmap.Buffer, error) {
	b, err := thisAs[*BitmapDataObject](a, v, "flash.display.BitmapData")
	if err != nil {
		return nil, nil, err
	}
	buf := b.buf.Get()
	if buf == nil || buf.Disposed() {
		return nil, nil, a.ArgumentError(2015, "Invalid BitmapData.")
	}
	return b, buf, nil
}

type bitmapMethod func(a *Activation, b *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error)

func (a *Activation) argRegion(args []Value, i int) (bitmap.Region, error) {
	r, err := a.rectOf(arg(args, i))
	if err != nil {
		return bitmap.Region{}, err
	}
	return r.region(), nil
}

func bitmapDataClass() *Class {
	c := NewClass(bitmapDataQName, "Object", ClassSealed).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &BitmapDataObject{}, nil }).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			b, err := thisAs[*BitmapDataObject](a, this, "flash.display.BitmapData")
			if err != nil {
				return Undefined, err
			}
			var buf *bitmap.Buffer
			if as, ok := bindAsset(b.class, abc.AssetBitmap); ok {
				buf, err = bitmap.FromARGB(as.Width, as.Height, as.Transparent, as.Data)
			} else {
				w, werr := a.argInt(args, 0, 0)
				h, herr := a.argInt(args, 1, 0)
				fill, ferr := a.argUint(args, 3, 0xFFFFFFFF)
				if err := errors.Join(werr, herr, ferr); err != nil {
					return Undefined, err
				}
				buf, err = bitmap.NewBuffer(int(w), int(h), argBool(args, 2, true), bitmap.Color(fill))
			}
			if errors.Is(err, bitmap.ErrInvalidSize) {
				return Undefined, a.ArgumentError(2015, "Invalid BitmapData.")
			}
			if err != nil {
				return Undefined, err
			}
			b.attach(a, buf)
			return Undefined, nil
		})

	add := func(name string, fn bitmapMethod) {
		c.Method(name, func(a *Activation, this Value, args []Value) (Value, error) {
			b, buf, err := a.liveBitmap(this)
			if err != nil {
				return Undefined, err
			}
			v, err := fn(a, b, buf, args)
			if err != nil {
				return Undefined, err
			}
			return v, b.sync()
		})
	}
	get := func(name string, fn func(a *Activation, buf *bitmap.Buffer) (Value, error)) {
		c.Getter(name, func(a *Activation, this Value, _ []Value) (Value, error) {
			_, buf, err := a.liveBitmap(this)
			if err != nil {
				return Undefined, err
			}
			return fn(a, buf)
		})
	}
	get("width", func(_ *Activation, buf *bitmap.Buffer) (Value, error) { return Int(int32(buf.Width())), nil })
	get("height", func(_ *Activation, buf *bitmap.Buffer) (Value, error) { return Int(int32(buf.Height())), nil })
	get("transparent", func(_ *Activation, buf *bitmap.Buffer) (Value, error) { return Bool(buf.Transparent()), nil })
	get("rect", func(a *Activation, buf *bitmap.Buffer) (Value, error) {
		return a.newRectangle(0, 0, float64(buf.Width()), float64(buf.Height()))
	})

	xy := func(a *Activation, args []Value) (int, int, error) {
		x, err := a.argInt(args, 0, 0)
		if err != nil {
			return 0, 0, err
		}
		y, err := a.argInt(args, 1, 0)
		return int(x), int(y), err
	}
	add("getPixel", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		x, y, err := xy(a, args)
		if err != nil {
			return Undefined, err
		}
		return Uint(uint32(buf.Pixel32(x, y)) & 0xFFFFFF), nil
	})
	add("getPixel32", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		x, y, err := xy(a, args)
		if err != nil {
			return Undefined, err
		}
		return Uint(uint32(buf.Pixel32(x, y))), nil
	})
	add("setPixel", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		x, y, err := xy(a, args)
		if err != nil {
			return Undefined, err
		}
		c, err := a.argUint(args, 2, 0)
		if err != nil {
			return Undefined, err
		}
		buf.SetPixel(x, y, bitmap.Color(c))
		return Undefined, nil
	})
	add("setPixel32", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		x, y, err := xy(a, args)
		if err != nil {
			return Undefined, err
		}
		c, err := a.argUint(args, 2, 0)
		if err != nil {
			return Undefined, err
		}
		buf.SetPixel32(x, y, bitmap.Color(c))
		return Undefined, nil
	})
	add("fillRect", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		r, err := a.argRegion(args, 0)
		if err != nil {
			return Undefined, err
		}
		c, err := a.argUint(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		buf.FillRect(r, bitmap.Color(c))
		return Undefined, nil
	})
	add("copyPixels", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		_, src, err := a.liveBitmap(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		r, err := a.argRegion(args, 1)
		if err != nil {
			return Undefined, err
		}
		dx, dy, err := a.pointXY(arg(args, 2))
		if err != nil {
			return Undefined, err
		}
		for _, i := range []int{3, 4} {
			if v := arg(args, i); !v.IsNullish() {
				return Undefined, unsupported("BitmapData", "copyPixels", "alpha bitmaps are not implemented")
			}
		}
		buf.CopyPixels(src, r, int(dx), int(dy), argBool(args, 5, false))
		return Undefined, nil
	})
	add("colorTransform", func(a *Activation, _ *BitmapDataObject, buf *bitmap.Buffer, args []Value) (Value, error) {
		r, err := a.argRegion(args, 0)
		if err != nil {
			return Undefined, err
		}
		t, err := a.colorTransformOf(arg(args, 1))
		if err != nil {
			return Undefined, err
		}
		buf.ColorTransform(r, t)
		return Undefined, nil
	})
	add("clone", func(a *Activation, b *BitmapDataObject, buf *bitmap.Buffer, _ []Value) (Value, error) {
		cls, err := a.builtin(bitmapDataQName)
		if err != nil {
			return Undefined, err
		}
		o := &BitmapDataObject{}
		a.initObject(o, cls)
		o.attach(a, buf.Clone())
		return FromObject(o), nil
	})
	add("lock", func(_ *Activation, b *BitmapDataObject, _ *bitmap.Buffer, _ []Value) (Value, error) {
		b.locked = true
		return Undefined, nil
	})
	add("unlock", func(_ *Activation, b *BitmapDataObject, _ *bitmap.Buffer, _ []Value) (Value, error) {
		b.locked = false
		return Undefined, nil
	})
	c.Method("dispose", func(a *Activation, this Value, _ []Value) (Value, error) {
		b, err := thisAs[*BitmapDataObject](a, this, "flash.display.BitmapData")
		if err != nil {
			return Undefined, err
		}
		if buf := b.buf.Get(); buf != nil {
			buf.Dispose()
		}
		b.release()
		return Undefined, nil
	})
	for _, name := range []string{"draw", "noise", "perlinNoise", "threshold"} {
		name := name
		c.Method(name, func(*Activation, Value, []Value) (Value, error) {
			return Undefined, unsupported("BitmapData", name, "not implemented")
		})
	}
	return c
}

// ---------------------------------------------------------------------------
// CubeTexture
// ---------------------------------------------------------------------------

// CubeTextureObject is a six-sided texture owned by the backend.
type CubeTextureObject struct {
	ScriptObject
	backend heap.Static[bitmap.Backend]
	handle  bitmap.Handle
	size    int
}

func (c *CubeTextureObject) Trace(t *heap.Tracer) { c.traceBase(t) }

func (c *CubeTextureObject) Finalize() {
	if be := c.backend.Get(); be != nil && c.handle != 0 {
		be.Release(c.handle)
		c.handle = 0
	}
}

// Handle returns the backend handle.
func (c *CubeTextureObject) Handle() bitmap.Handle { return c.handle }

func cubeTextureClass() *Class {
	return NewClass(cubeTextureQName, "Object", ClassSealed|ClassFinal).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &CubeTextureObject{}, nil }).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			c, err := thisAs[*CubeTextureObject](a, this, "flash.display3D.textures.CubeTexture")
			if err != nil {
				return Undefined, err
			}
			size, err := a.argInt(args, 0, 1)
			if err != nil {
				return Undefined, err
			}
			placeholder, err := bitmap.NewBuffer(int(size), int(size), true, 0)
			if err != nil {
				return Undefined, a.ArgumentError(2015, "Invalid texture size %d.", size)
			}
			c.size = int(size)
			c.backend = heap.NewStatic(a.vm.opts.Backend)
			c.handle = a.vm.opts.Backend.Register(placeholder)
			return Undefined, nil
		}).
		Method("uploadFromBitmapData", func(a *Activation, this Value, args []Value) (Value, error) {
			c, err := thisAs[*CubeTextureObject](a, this, "flash.display3D.textures.CubeTexture")
			if err != nil {
				return Undefined, err
			}
			_, src, err := a.liveBitmap(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			side, err := a.argUint(args, 1, 0)
			if err != nil {
				return Undefined, err
			}
			mip, err := a.argUint(args, 2, 0)
			if err != nil {
				return Undefined, err
			}
			if mip != 0 {
				return Undefined, unsupported("CubeTexture", "uploadFromBitmapData", "mip level %d", mip)
			}
			if side > 5 {
				return Undefined, a.ArgumentError(2008, "Parameter side must be one of the accepted values.")
			}
			if c.handle == 0 {
				return Undefined, a.ArgumentError(2015, "Invalid texture.")
			}
			return Undefined, c.backend.Get().UploadCubeFace(c.handle, int(side), src)
		}).
		Method("dispose", func(a *Activation, this Value, _ []Value) (Value, error) {
			c, err := thisAs[*CubeTextureObject](a, this, "flash.display3D.textures.CubeTexture")
			if err != nil {
				return Undefined, err
			}
			c.Finalize()
			return Undefined, nil
		})
}
