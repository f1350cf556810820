package vm

import (
	"fmt"
	"math"

	"github.com/chazu/avm2/vm/bitmap"
)

var (
	pointQName          = PackageName("flash.geom", "Point")
	rectangleQName      = PackageName("flash.geom", "Rectangle")
	colorTransformQName = PackageName("flash.geom", "ColorTransform")
)

// geomClasses defines flash.geom.Point, Rectangle and ColorTransform. Their
// state lives in declared Number slots; natives read and write through
// property access so scripted subclasses see consistent values.
func geomClasses() []*Class {
	return []*Class{pointClass(), rectangleClass(), colorTransformClass()}
}

// numbers reads the named Number properties of v.
func (a *Activation) numbers(v Value, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, n := range names {
		f, err := a.getNumber(v, n)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// setNumbers writes alternating name, float64 pairs.
func (a *Activation) setNumbers(v Value, pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := a.Set(v, pairs[i].(string), Number(pairs[i+1].(float64))); err != nil {
			return err
		}
	}
	return nil
}

func (a *Activation) newPoint(x, y float64) (Value, error) {
	return a.construct(pointQName, Number(x), Number(y))
}

func (a *Activation) newRectangle(x, y, w, h float64) (Value, error) {
	return a.construct(rectangleQName, Number(x), Number(y), Number(w), Number(h))
}

// formatNumber renders f the way toString would.
func formatNumber(f float64) string { return NumberToString(f) }

// ---------------------------------------------------------------------------
// Point
// ---------------------------------------------------------------------------

func (a *Activation) pointXY(v Value) (float64, float64, error) {
	if v.IsNullish() {
		return 0, 0, a.nullReceiver(v)
	}
	xy, err := a.numbers(v, "x", "y")
	if err != nil {
		return 0, 0, err
	}
	return xy[0], xy[1], nil
}

type pointMethod func(a *Activation, this Value, x, y float64, args []Value) (Value, error)

func pointClass() *Class {
	c := NewClass(pointQName, "Object", ClassSealed).
		Slot("x", "Number", Number(0)).
		Slot("y", "Number", Number(0)).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			x, err := a.argNumber(args, 0, 0)
			if err != nil {
				return Undefined, err
			}
			y, err := a.argNumber(args, 1, 0)
			if err != nil {
				return Undefined, err
			}
			return Undefined, a.setNumbers(this, "x", x, "y", y)
		}).
		StaticMethod("distance", func(a *Activation, _ Value, args []Value) (Value, error) {
			x1, y1, err := a.pointXY(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			x2, y2, err := a.pointXY(arg(args, 1))
			if err != nil {
				return Undefined, err
			}
			return Number(math.Hypot(x2-x1, y2-y1)), nil
		}).
		StaticMethod("interpolate", func(a *Activation, _ Value, args []Value) (Value, error) {
			x1, y1, err := a.pointXY(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			x2, y2, err := a.pointXY(arg(args, 1))
			if err != nil {
				return Undefined, err
			}
			f, err := a.argNumber(args, 2, math.NaN())
			if err != nil {
				return Undefined, err
			}
			return a.newPoint(x2+f*(x1-x2), y2+f*(y1-y2))
		}).
		StaticMethod("polar", func(a *Activation, _ Value, args []Value) (Value, error) {
			l, err := a.argNumber(args, 0, math.NaN())
			if err != nil {
				return Undefined, err
			}
			ang, err := a.argNumber(args, 1, math.NaN())
			if err != nil {
				return Undefined, err
			}
			return a.newPoint(l*math.Cos(ang), l*math.Sin(ang))
		})

	add := func(name string, fn pointMethod) {
		c.Method(name, func(a *Activation, this Value, args []Value) (Value, error) {
			x, y, err := a.pointXY(this)
			if err != nil {
				return Undefined, err
			}
			return fn(a, this, x, y, args)
		})
	}
	c.Getter("length", func(a *Activation, this Value, _ []Value) (Value, error) {
		x, y, err := a.pointXY(this)
		return Number(math.Hypot(x, y)), err
	})
	add("add", func(a *Activation, _ Value, x, y float64, args []Value) (Value, error) {
		ox, oy, err := a.pointXY(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return a.newPoint(x+ox, y+oy)
	})
	add("subtract", func(a *Activation, _ Value, x, y float64, args []Value) (Value, error) {
		ox, oy, err := a.pointXY(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return a.newPoint(x-ox, y-oy)
	})
	add("clone", func(a *Activation, _ Value, x, y float64, _ []Value) (Value, error) {
		return a.newPoint(x, y)
	})
	add("equals", func(a *Activation, _ Value, x, y float64, args []Value) (Value, error) {
		o := arg(args, 0)
		if o.IsNullish() {
			return False, nil
		}
		ox, oy, err := a.pointXY(o)
		if err != nil {
			return Undefined, err
		}
		return Bool(x == ox && y == oy), nil
	})
	add("normalize", func(a *Activation, this Value, x, y float64, args []Value) (Value, error) {
		thickness, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		if l := math.Hypot(x, y); l > 0 {
			x, y = x*thickness/l, y*thickness/l
		}
		return Undefined, a.setNumbers(this, "x", x, "y", y)
	})
	add("offset", func(a *Activation, this Value, x, y float64, args []Value) (Value, error) {
		dx, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		dy, err := a.argNumber(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		return Undefined, a.setNumbers(this, "x", x+dx, "y", y+dy)
	})
	add("setTo", func(a *Activation, this Value, _, _ float64, args []Value) (Value, error) {
		x, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		y, err := a.argNumber(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		return Undefined, a.setNumbers(this, "x", x, "y", y)
	})
	add("toString", func(_ *Activation, _ Value, x, y float64, _ []Value) (Value, error) {
		return String(fmt.Sprintf("(x=%s, y=%s)", formatNumber(x), formatNumber(y))), nil
	})
	return c
}

// ---------------------------------------------------------------------------
// Rectangle
// ---------------------------------------------------------------------------

type rect struct{ x, y, w, h float64 }

func (r rect) empty() bool { return !(r.w > 0 && r.h > 0) }

func (r rect) right() float64  { return r.x + r.w }
func (r rect) bottom() float64 { return r.y + r.h }

func (r rect) contains(x, y float64) bool {
	return x >= r.x && y >= r.y && x < r.right() && y < r.bottom()
}

func (r rect) intersection(o rect) rect {
	x0, y0 := math.Max(r.x, o.x), math.Max(r.y, o.y)
	x1, y1 := math.Min(r.right(), o.right()), math.Min(r.bottom(), o.bottom())
	if x1 <= x0 || y1 <= y0 {
		return rect{}
	}
	return rect{x0, y0, x1 - x0, y1 - y0}
}

func (r rect) union(o rect) rect {
	switch {
	case r.empty():
		return o
	case o.empty():
		return r
	}
	x0, y0 := math.Min(r.x, o.x), math.Min(r.y, o.y)
	x1, y1 := math.Max(r.right(), o.right()), math.Max(r.bottom(), o.bottom())
	return rect{x0, y0, x1 - x0, y1 - y0}
}

// region converts to integer pixel bounds, truncating like the player.
func (r rect) region() bitmap.Region {
	return bitmap.Region{
		XMin: int(r.x), YMin: int(r.y),
		XMax: int(r.x) + int(r.w), YMax: int(r.y) + int(r.h),
	}
}

func (a *Activation) rectOf(v Value) (rect, error) {
	if v.IsNullish() {
		return rect{}, a.nullReceiver(v)
	}
	f, err := a.numbers(v, "x", "y", "width", "height")
	if err != nil {
		return rect{}, err
	}
	return rect{f[0], f[1], f[2], f[3]}, nil
}

func (a *Activation) setRect(v Value, r rect) error {
	return a.setNumbers(v, "x", r.x, "y", r.y, "width", r.w, "height", r.h)
}

func (a *Activation) rectValue(r rect) (Value, error) {
	return a.newRectangle(r.x, r.y, r.w, r.h)
}

type rectMethod func(a *Activation, this Value, r rect, args []Value) (Value, error)

func rectangleClass() *Class {
	c := NewClass(rectangleQName, "Object", ClassSealed).
		Slot("x", "Number", Number(0)).
		Slot("y", "Number", Number(0)).
		Slot("width", "Number", Number(0)).
		Slot("height", "Number", Number(0)).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			var f [4]float64
			for i := range f {
				n, err := a.argNumber(args, i, 0)
				if err != nil {
					return Undefined, err
				}
				f[i] = n
			}
			return Undefined, a.setRect(this, rect{f[0], f[1], f[2], f[3]})
		})

	get := func(name string, fn func(a *Activation, r rect) (Value, error)) {
		c.Getter(name, func(a *Activation, this Value, _ []Value) (Value, error) {
			r, err := a.rectOf(this)
			if err != nil {
				return Undefined, err
			}
			return fn(a, r)
		})
	}
	set := func(name string, fn func(r rect, f float64) rect) {
		c.Setter(name, func(a *Activation, this Value, args []Value) (Value, error) {
			r, err := a.rectOf(this)
			if err != nil {
				return Undefined, err
			}
			f, err := a.argNumber(args, 0, math.NaN())
			if err != nil {
				return Undefined, err
			}
			return Undefined, a.setRect(this, fn(r, f))
		})
	}
	get("left", func(_ *Activation, r rect) (Value, error) { return Number(r.x), nil })
	set("left", func(r rect, f float64) rect { r.w -= f - r.x; r.x = f; return r })
	get("top", func(_ *Activation, r rect) (Value, error) { return Number(r.y), nil })
	set("top", func(r rect, f float64) rect { r.h -= f - r.y; r.y = f; return r })
	get("right", func(_ *Activation, r rect) (Value, error) { return Number(r.right()), nil })
	set("right", func(r rect, f float64) rect { r.w = f - r.x; return r })
	get("bottom", func(_ *Activation, r rect) (Value, error) { return Number(r.bottom()), nil })
	set("bottom", func(r rect, f float64) rect { r.h = f - r.y; return r })
	get("size", func(a *Activation, r rect) (Value, error) { return a.newPoint(r.w, r.h) })
	get("topLeft", func(a *Activation, r rect) (Value, error) { return a.newPoint(r.x, r.y) })
	get("bottomRight", func(a *Activation, r rect) (Value, error) { return a.newPoint(r.right(), r.bottom()) })

	add := func(name string, fn rectMethod) {
		c.Method(name, func(a *Activation, this Value, args []Value) (Value, error) {
			r, err := a.rectOf(this)
			if err != nil {
				return Undefined, err
			}
			return fn(a, this, r, args)
		})
	}
	add("contains", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		x, err := a.argNumber(args, 0, math.NaN())
		if err != nil {
			return Undefined, err
		}
		y, err := a.argNumber(args, 1, math.NaN())
		if err != nil {
			return Undefined, err
		}
		return Bool(r.contains(x, y)), nil
	})
	add("containsPoint", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		x, y, err := a.pointXY(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(r.contains(x, y)), nil
	})
	add("containsRect", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		o, err := a.rectOf(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if o.empty() {
			return False, nil
		}
		return Bool(o.x >= r.x && o.y >= r.y && o.right() <= r.right() && o.bottom() <= r.bottom()), nil
	})
	add("intersects", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		o, err := a.rectOf(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(!r.intersection(o).empty()), nil
	})
	add("intersection", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		o, err := a.rectOf(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return a.rectValue(r.intersection(o))
	})
	add("union", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		o, err := a.rectOf(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return a.rectValue(r.union(o))
	})
	add("isEmpty", func(_ *Activation, _ Value, r rect, _ []Value) (Value, error) {
		return Bool(r.empty()), nil
	})
	add("setEmpty", func(a *Activation, this Value, _ rect, _ []Value) (Value, error) {
		return Undefined, a.setRect(this, rect{})
	})
	add("inflate", func(a *Activation, this Value, r rect, args []Value) (Value, error) {
		dx, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		dy, err := a.argNumber(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		return Undefined, a.setRect(this, rect{r.x - dx, r.y - dy, r.w + 2*dx, r.h + 2*dy})
	})
	add("offset", func(a *Activation, this Value, r rect, args []Value) (Value, error) {
		dx, err := a.argNumber(args, 0, 0)
		if err != nil {
			return Undefined, err
		}
		dy, err := a.argNumber(args, 1, 0)
		if err != nil {
			return Undefined, err
		}
		return Undefined, a.setRect(this, rect{r.x + dx, r.y + dy, r.w, r.h})
	})
	add("clone", func(a *Activation, _ Value, r rect, _ []Value) (Value, error) {
		return a.rectValue(r)
	})
	add("equals", func(a *Activation, _ Value, r rect, args []Value) (Value, error) {
		o := arg(args, 0)
		if o.IsNullish() {
			return False, nil
		}
		or, err := a.rectOf(o)
		if err != nil {
			return Undefined, err
		}
		return Bool(r == or), nil
	})
	add("toString", func(_ *Activation, _ Value, r rect, _ []Value) (Value, error) {
		return String(fmt.Sprintf("(x=%s, y=%s, w=%s, h=%s)",
			formatNumber(r.x), formatNumber(r.y), formatNumber(r.w), formatNumber(r.h))), nil
	})
	return c
}

// ---------------------------------------------------------------------------
// ColorTransform
// ---------------------------------------------------------------------------

var colorTransformFields = []string{
	"redMultiplier", "greenMultiplier", "blueMultiplier", "alphaMultiplier",
	"redOffset", "greenOffset", "blueOffset", "alphaOffset",
}

func (a *Activation) colorTransformOf(v Value) (bitmap.Transform, error) {
	if v.IsNullish() {
		return bitmap.Transform{}, a.nullReceiver(v)
	}
	f, err := a.numbers(v, colorTransformFields...)
	if err != nil {
		return bitmap.Transform{}, err
	}
	return bitmap.Transform{
		RedMultiplier: f[0], GreenMultiplier: f[1], BlueMultiplier: f[2], AlphaMultiplier: f[3],
		RedOffset: f[4], GreenOffset: f[5], BlueOffset: f[6], AlphaOffset: f[7],
	}, nil
}

func (a *Activation) setColorTransform(v Value, t bitmap.Transform) error {
	return a.setNumbers(v,
		"redMultiplier", t.RedMultiplier, "greenMultiplier", t.GreenMultiplier,
		"blueMultiplier", t.BlueMultiplier, "alphaMultiplier", t.AlphaMultiplier,
		"redOffset", t.RedOffset, "greenOffset", t.GreenOffset,
		"blueOffset", t.BlueOffset, "alphaOffset", t.AlphaOffset)
}

func colorTransformClass() *Class {
	c := NewClass(colorTransformQName, "Object", ClassSealed)
	for i, f := range colorTransformFields {
		def := 1.0
		if i >= 4 {
			def = 0
		}
		c.Slot(f, "Number", Number(def))
	}
	return c.
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			var f [8]float64
			for i := range f {
				def := 1.0
				if i >= 4 {
					def = 0
				}
				n, err := a.argNumber(args, i, def)
				if err != nil {
					return Undefined, err
				}
				f[i] = n
			}
			return Undefined, a.setColorTransform(this, bitmap.Transform{
				RedMultiplier: f[0], GreenMultiplier: f[1], BlueMultiplier: f[2], AlphaMultiplier: f[3],
				RedOffset: f[4], GreenOffset: f[5], BlueOffset: f[6], AlphaOffset: f[7],
			})
		}).
		Accessor("color",
			func(a *Activation, this Value, _ []Value) (Value, error) {
				t, err := a.colorTransformOf(this)
				if err != nil {
					return Undefined, err
				}
				rgb := uint32(NumberToInt32(t.RedOffset))&0xff<<16 |
					uint32(NumberToInt32(t.GreenOffset))&0xff<<8 |
					uint32(NumberToInt32(t.BlueOffset))&0xff
				return Uint(rgb), nil
			},
			func(a *Activation, this Value, args []Value) (Value, error) {
				t, err := a.colorTransformOf(this)
				if err != nil {
					return Undefined, err
				}
				rgb, err := a.argUint(args, 0, 0)
				if err != nil {
					return Undefined, err
				}
				t.RedMultiplier, t.GreenMultiplier, t.BlueMultiplier = 0, 0, 0
				t.RedOffset = float64(rgb >> 16 & 0xff)
				t.GreenOffset = float64(rgb >> 8 & 0xff)
				t.BlueOffset = float64(rgb & 0xff)
				return Undefined, a.setColorTransform(this, t)
			}).
		Method("concat", func(a *Activation, this Value, args []Value) (Value, error) {
			t, err := a.colorTransformOf(this)
			if err != nil {
				return Undefined, err
			}
			o, err := a.colorTransformOf(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			return Undefined, a.setColorTransform(this, t.Concat(o))
		}).
		Method("toString", func(a *Activation, this Value, _ []Value) (Value, error) {
			f, err := a.numbers(this, colorTransformFields...)
			if err != nil {
				return Undefined, err
			}
			return String(fmt.Sprintf("(redMultiplier=%s, greenMultiplier=%s, blueMultiplier=%s, alphaMultiplier=%s, redOffset=%s, greenOffset=%s, blueOffset=%s, alphaOffset=%s)",
				formatNumber(f[0]), formatNumber(f[1]), formatNumber(f[2]), formatNumber(f[3]),
				formatNumber(f[4]), formatNumber(f[5]), formatNumber(f[6]), formatNumber(f[7]))), nil
		})
}
