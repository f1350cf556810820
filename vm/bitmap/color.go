// Package bitmap holds the pixel storage behind BitmapData and the narrow
// interface through which pixels reach a renderer.
package bitmap

import "fmt"

// Color is a packed 0xAARRGGBB value. Buffers store colours premultiplied
// by alpha; the script-facing API speaks unmultiplied colours, so every
// read and write converts at the boundary.
type Color uint32

func ARGB(a, r, g, b uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c Color) Alpha() uint8 { return uint8(c >> 24) }
func (c Color) Red() uint8   { return uint8(c >> 16) }
func (c Color) Green() uint8 { return uint8(c >> 8) }
func (c Color) Blue() uint8  { return uint8(c) }

// WithAlpha replaces the alpha channel.
func (c Color) WithAlpha(a uint8) Color {
	return ARGB(a, c.Red(), c.Green(), c.Blue())
}

// Premultiply converts an unmultiplied colour to premultiplied form. Opaque
// buffers ignore the incoming alpha.
func (c Color) Premultiply(transparent bool) Color {
	a := uint32(255)
	if transparent {
		a = uint32(c.Alpha())
	}
	mul := func(ch uint8) uint8 { return uint8((uint32(ch)*a + 127) / 255) }
	return ARGB(uint8(a), mul(c.Red()), mul(c.Green()), mul(c.Blue()))
}

// Unmultiply reverses Premultiply, rounding to nearest.
func (c Color) Unmultiply() Color {
	a := uint32(c.Alpha())
	if a == 0 {
		return 0
	}
	if a == 255 {
		return c
	}
	div := func(ch uint8) uint8 {
		v := (uint32(ch)*255 + a/2) / a
		if v > 255 {
			v = 255
		}
		return uint8(v)
	}
	return ARGB(uint8(a), div(c.Red()), div(c.Green()), div(c.Blue()))
}

// BlendOver composites src over c. Both must be premultiplied.
func (c Color) BlendOver(src Color) Color {
	inv := 255 - uint16(src.Alpha())
	ch := func(d, s uint8) uint8 { return s + uint8((uint16(d)*inv)>>8) }
	return ARGB(ch(c.Alpha(), src.Alpha()), ch(c.Red(), src.Red()), ch(c.Green(), src.Green()), ch(c.Blue(), src.Blue()))
}

func (c Color) String() string { return fmt.Sprintf("%#08x", uint32(c)) }

// Transform is a colour transform: each channel becomes
// clamp(channel*multiplier + offset).
type Transform struct {
	RedMultiplier, GreenMultiplier, BlueMultiplier, AlphaMultiplier float64
	RedOffset, GreenOffset, BlueOffset, AlphaOffset                 float64
}

// Identity is the transform that leaves colours unchanged.
var Identity = Transform{RedMultiplier: 1, GreenMultiplier: 1, BlueMultiplier: 1, AlphaMultiplier: 1}

// Apply transforms an unmultiplied colour.
func (t Transform) Apply(c Color) Color {
	ch := func(v uint8, mul, off float64) uint8 {
		f := float64(v)*mul + off
		switch {
		case f <= 0:
			return 0
		case f >= 255:
			return 255
		}
		return uint8(f)
	}
	return ARGB(
		ch(c.Alpha(), t.AlphaMultiplier, t.AlphaOffset),
		ch(c.Red(), t.RedMultiplier, t.RedOffset),
		ch(c.Green(), t.GreenMultiplier, t.GreenOffset),
		ch(c.Blue(), t.BlueMultiplier, t.BlueOffset),
	)
}

// Concat returns the transform equivalent to applying second and then t.
func (t Transform) Concat(second Transform) Transform {
	return Transform{
		RedMultiplier:   t.RedMultiplier * second.RedMultiplier,
		GreenMultiplier: t.GreenMultiplier * second.GreenMultiplier,
		BlueMultiplier:  t.BlueMultiplier * second.BlueMultiplier,
		AlphaMultiplier: t.AlphaMultiplier * second.AlphaMultiplier,
		RedOffset:       t.RedOffset + t.RedMultiplier*second.RedOffset,
		GreenOffset:     t.GreenOffset + t.GreenMultiplier*second.GreenOffset,
		BlueOffset:      t.BlueOffset + t.BlueMultiplier*second.BlueOffset,
		AlphaOffset:     t.AlphaOffset + t.AlphaMultiplier*second.AlphaOffset,
	}
}
