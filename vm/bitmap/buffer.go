package bitmap

import "errors"

// MaxDimension and MaxPixels bound BitmapData sizes.
const (
	MaxDimension = 8191
	MaxPixels    = 16777215
)

// ErrInvalidSize is returned for zero, negative or oversized dimensions.
var ErrInvalidSize = errors.New("bitmap: invalid size")

// Region is a pixel rectangle with exclusive max bounds.
type Region struct {
	XMin, YMin, XMax, YMax int
}

// Empty reports whether r covers no pixels.
func (r Region) Empty() bool { return r.XMax <= r.XMin || r.YMax <= r.YMin }

// Union returns the smallest region covering r and o.
func (r Region) Union(o Region) Region {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Region{min(r.XMin, o.XMin), min(r.YMin, o.YMin), max(r.XMax, o.XMax), max(r.YMax, o.YMax)}
}

// Clamp intersects r with a w×h surface.
func (r Region) Clamp(w, h int) Region {
	return Region{max(r.XMin, 0), max(r.YMin, 0), min(r.XMax, w), min(r.YMax, h)}
}

// Buffer is a premultiplied ARGB pixel array with dirty tracking.
type Buffer struct {
	width, height int
	transparent   bool
	pixels        []Color
	disposed      bool

	dirty    Region
	hasDirty bool
}

// NewBuffer allocates a width×height buffer filled with the unmultiplied
// colour fill.
func NewBuffer(width, height int, transparent bool, fill Color) (*Buffer, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension || width*height > MaxPixels {
		return nil, ErrInvalidSize
	}
	b := &Buffer{width: width, height: height, transparent: transparent, pixels: make([]Color, width*height)}
	p := fill.Premultiply(transparent)
	for i := range b.pixels {
		b.pixels[i] = p
	}
	return b, nil
}

// FromARGB builds a buffer from unmultiplied big-endian ARGB bytes, the
// layout embedded bitmap assets use.
func FromARGB(width, height int, transparent bool, data []byte) (*Buffer, error) {
	b, err := NewBuffer(width, height, transparent, 0)
	if err != nil {
		return nil, err
	}
	if len(data) < width*height*4 {
		return nil, errors.New("bitmap: pixel data shorter than dimensions")
	}
	for i := range b.pixels {
		o := i * 4
		b.pixels[i] = ARGB(data[o], data[o+1], data[o+2], data[o+3]).Premultiply(transparent)
	}
	return b, nil
}

func (b *Buffer) Width() int        { return b.width }
func (b *Buffer) Height() int       { return b.height }
func (b *Buffer) Transparent() bool { return b.transparent }
func (b *Buffer) Disposed() bool    { return b.disposed }

// Bounds returns the full surface as a region.
func (b *Buffer) Bounds() Region { return Region{0, 0, b.width, b.height} }

// InBounds reports whether (x, y) addresses a pixel.
func (b *Buffer) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.width && y < b.height
}

// Pixel32 returns the unmultiplied colour at (x, y), or 0 outside the
// surface.
func (b *Buffer) Pixel32(x, y int) Color {
	if !b.InBounds(x, y) {
		return 0
	}
	c := b.pixels[x+y*b.width].Unmultiply()
	if !b.transparent {
		c = c.WithAlpha(255)
	}
	return c
}

// SetPixel32 stores an unmultiplied colour. Out-of-bounds writes are ignored.
func (b *Buffer) SetPixel32(x, y int, c Color) {
	if !b.InBounds(x, y) {
		return
	}
	b.pixels[x+y*b.width] = c.Premultiply(b.transparent)
	b.markDirty(Region{x, y, x + 1, y + 1})
}

// SetPixel stores an RGB colour, keeping the pixel's existing alpha.
func (b *Buffer) SetPixel(x, y int, rgb Color) {
	if !b.InBounds(x, y) {
		return
	}
	old := b.pixels[x+y*b.width].Unmultiply()
	b.SetPixel32(x, y, rgb.WithAlpha(old.Alpha()))
}

// FillRect paints r with an unmultiplied colour.
func (b *Buffer) FillRect(r Region, c Color) {
	r = r.Clamp(b.width, b.height)
	if r.Empty() {
		return
	}
	p := c.Premultiply(b.transparent)
	for y := r.YMin; y < r.YMax; y++ {
		row := b.pixels[y*b.width : (y+1)*b.width]
		for x := r.XMin; x < r.XMax; x++ {
			row[x] = p
		}
	}
	b.markDirty(r)
}

// CopyPixels copies src's region r to (dx, dy). When mergeAlpha is set the
// source is composited over the destination instead of replacing it.
func (b *Buffer) CopyPixels(src *Buffer, r Region, dx, dy int, mergeAlpha bool) {
	r = r.Clamp(src.width, src.height)
	if r.Empty() {
		return
	}
	// Snapshot so copying a buffer onto itself reads the original pixels.
	w, h := r.XMax-r.XMin, r.YMax-r.YMin
	tmp := make([]Color, 0, w*h)
	for y := r.YMin; y < r.YMax; y++ {
		tmp = append(tmp, src.pixels[y*src.width+r.XMin:y*src.width+r.XMax]...)
	}
	dirty := Region{}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tx, ty := dx+x, dy+y
			if !b.InBounds(tx, ty) {
				continue
			}
			s := tmp[y*w+x]
			if !src.transparent {
				s = s.WithAlpha(255)
			}
			i := tx + ty*b.width
			if mergeAlpha && b.transparent {
				b.pixels[i] = b.pixels[i].BlendOver(s)
			} else if b.transparent {
				b.pixels[i] = s
			} else {
				b.pixels[i] = ARGB(255, 0, 0, 0).BlendOver(s)
			}
			dirty = dirty.Union(Region{tx, ty, tx + 1, ty + 1})
		}
	}
	b.markDirty(dirty)
}

// ColorTransform applies t to every pixel of r.
func (b *Buffer) ColorTransform(r Region, t Transform) {
	r = r.Clamp(b.width, b.height)
	for y := r.YMin; y < r.YMax; y++ {
		for x := r.XMin; x < r.XMax; x++ {
			i := x + y*b.width
			c := t.Apply(b.pixels[i].Unmultiply())
			b.pixels[i] = c.Premultiply(b.transparent)
		}
	}
	b.markDirty(r)
}

// Clone returns an independent copy.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.pixels = append([]Color(nil), b.pixels...)
	c.hasDirty = false
	c.dirty = Region{}
	return &c
}

// Dispose releases the pixels. A disposed buffer reports zero size.
func (b *Buffer) Dispose() {
	b.pixels = nil
	b.width, b.height = 0, 0
	b.disposed = true
	b.hasDirty = false
}

// RGBA returns the pixels as unmultiplied RGBA bytes, the layout renderers
// consume.
func (b *Buffer) RGBA() []byte {
	out := make([]byte, 0, len(b.pixels)*4)
	for _, p := range b.pixels {
		c := p.Unmultiply()
		out = append(out, c.Red(), c.Green(), c.Blue(), c.Alpha())
	}
	return out
}

func (b *Buffer) markDirty(r Region) {
	if r.Empty() {
		return
	}
	if b.hasDirty {
		b.dirty = b.dirty.Union(r)
	} else {
		b.dirty, b.hasDirty = r, true
	}
}

// TakeDirty returns and clears the pending dirty region.
func (b *Buffer) TakeDirty() (Region, bool) {
	r, ok := b.dirty, b.hasDirty
	b.dirty, b.hasDirty = Region{}, false
	return r, ok
}
