// Package pixbuf holds the owned pixel buffer that every preprocessing step
// reads from and writes to.
package pixbuf

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Layout describes how samples are packed per pixel.
type Layout int

const (
	// Gray stores one luminance sample per pixel.
	Gray Layout = 1
	// RGBA stores non-premultiplied red, green, blue and alpha samples.
	RGBA Layout = 4
)

// Channels returns the number of samples per pixel.
func (l Layout) Channels() int { return int(l) }

// ColorChannels returns the number of samples that carry colour information.
// Alpha is never touched by the enhancement steps.
func (l Layout) ColorChannels() int {
	if l == RGBA {
		return 3
	}
	return 1
}

func (l Layout) String() string {
	switch l {
	case Gray:
		return "gray"
	case RGBA:
		return "rgba"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Buffer is a tightly packed 2-D array of 8-bit samples.
// len(Samples) == Width*Height*Layout.Channels() always holds for buffers
// produced by this package.
type Buffer struct {
	Width   int
	Height  int
	Layout  Layout
	Samples []uint8
}

// New allocates a zeroed buffer.
func New(width, height int, layout Layout) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{
		Width:   width,
		Height:  height,
		Layout:  layout,
		Samples: make([]uint8, width*height*layout.Channels()),
	}
}

// Validate checks the sample length invariant.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("pixbuf: nil buffer")
	}
	if b.Layout != Gray && b.Layout != RGBA {
		return fmt.Errorf("pixbuf: unsupported layout %v", b.Layout)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("pixbuf: invalid dimensions %dx%d", b.Width, b.Height)
	}
	if want := b.Width * b.Height * b.Layout.Channels(); len(b.Samples) != want {
		return fmt.Errorf("pixbuf: have %d samples, want %d", len(b.Samples), want)
	}
	return nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Width: b.Width, Height: b.Height, Layout: b.Layout}
	out.Samples = make([]uint8, len(b.Samples))
	copy(out.Samples, b.Samples)
	return out
}

// Offset returns the index of the first sample of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * b.Layout.Channels()
}

// At returns sample c of pixel (x, y).
func (b *Buffer) At(x, y, c int) uint8 {
	return b.Samples[b.Offset(x, y)+c]
}

// Set writes sample c of pixel (x, y).
func (b *Buffer) Set(x, y, c int, v uint8) {
	b.Samples[b.Offset(x, y)+c] = v
}

// Equal reports whether two buffers have the same shape and samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Layout != o.Layout {
		return false
	}
	if len(b.Samples) != len(o.Samples) {
		return false
	}
	for i := range b.Samples {
		if b.Samples[i] != o.Samples[i] {
			return false
		}
	}
	return true
}

// FromImage copies img into a new RGBA buffer.
func FromImage(img image.Image) *Buffer {
	return FromImageLayout(img, RGBA)
}

// FromImageLayout copies img into a new buffer of the requested layout.
// Gray buffers use the same luminance weights as the grayscale step.
func FromImageLayout(img image.Image, layout Layout) *Buffer {
	src := imaging.Clone(img) // *image.NRGBA anchored at (0,0)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := New(w, h, layout)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		if layout == RGBA {
			copy(out.Samples[y*w*4:(y+1)*w*4], row)
			continue
		}
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			out.Samples[y*w+x] = Luma(p[0], p[1], p[2])
		}
	}
	return out
}

// ToImage exposes the buffer as a standard library image without sharing memory.
func (b *Buffer) ToImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Layout == Gray {
		img := image.NewGray(rect)
		copy(img.Pix, b.Samples)
		return img
	}
	img := image.NewNRGBA(rect)
	copy(img.Pix, b.Samples)
	return img
}

// ToGray returns a single-channel copy of the buffer.
func (b *Buffer) ToGray() *Buffer {
	if b.Layout == Gray {
		return b.Clone()
	}
	out := New(b.Width, b.Height, Gray)
	for i := 0; i < b.Width*b.Height; i++ {
		p := b.Samples[i*4 : i*4+4]
		out.Samples[i] = Luma(p[0], p[1], p[2])
	}
	return out
}

// ColorAt returns pixel (x, y) as a colour value, mostly for debugging and tests.
func (b *Buffer) ColorAt(x, y int) color.NRGBA {
	o := b.Offset(x, y)
	if b.Layout == Gray {
		v := b.Samples[o]
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	}
	return color.NRGBA{R: b.Samples[o], G: b.Samples[o+1], B: b.Samples[o+2], A: b.Samples[o+3]}
}

// Luma computes 0.299R + 0.587G + 0.114B rounded to the nearest sample value.
func Luma(r, g, bl uint8) uint8 {
	return Clamp(float64(r)*0.299 + float64(g)*0.587 + float64(bl)*0.114)
}
