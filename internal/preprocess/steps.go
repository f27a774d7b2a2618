package preprocess

import (
	"github.com/MeKo-Tech/docscan/internal/pixbuf"
	"github.com/disintegration/imaging"
)

// Scale resamples the buffer to (width*scale, height*scale), truncating and
// never going below one pixel per axis.
func Scale(b *pixbuf.Buffer, scale float64, filter imaging.ResampleFilter) *pixbuf.Buffer {
	w, h := Options{Scale: scale}.ScaledSize(b.Width, b.Height)
	if w == b.Width && h == b.Height {
		return b.Clone()
	}
	resized := imaging.Resize(b.ToImage(), w, h, filter)
	return pixbuf.FromImageLayout(resized, b.Layout)
}

// Grayscale replaces the colour channels with 0.299R + 0.587G + 0.114B.
// Alpha is kept; gray buffers are returned as a copy.
func Grayscale(b *pixbuf.Buffer) *pixbuf.Buffer {
	out := b.Clone()
	if b.Layout != pixbuf.RGBA {
		return out
	}
	for i := 0; i+3 < len(out.Samples); i += 4 {
		g := pixbuf.Luma(out.Samples[i], out.Samples[i+1], out.Samples[i+2])
		out.Samples[i], out.Samples[i+1], out.Samples[i+2] = g, g, g
	}
	return out
}

// AdjustContrastBrightness applies the contrast curve around mid-gray, stores
// the clamped intermediate, then scales it by brightness.
func AdjustContrastBrightness(b *pixbuf.Buffer, contrast, brightness float64) *pixbuf.Buffer {
	factor := ContrastFactor(contrast)
	var lut [256]uint8
	for v := range 256 {
		mid := pixbuf.Clamp(factor*(float64(v)-128) + 128)
		lut[v] = pixbuf.Clamp(float64(mid) * brightness)
	}

	out := b.Clone()
	ch := b.Layout.Channels()
	cc := b.Layout.ColorChannels()
	for i := 0; i < len(out.Samples); i += ch {
		for c := range cc {
			out.Samples[i+c] = lut[out.Samples[i+c]]
		}
	}
	return out
}

// Denoise replaces each interior sample with the mean of its 3x3
// neighbourhood, read from the unmodified input.
func Denoise(b *pixbuf.Buffer) *pixbuf.Buffer {
	out := b.Clone()
	if b.Width < 3 || b.Height < 3 {
		return out
	}
	cc := b.Layout.ColorChannels()
	for y := 1; y < b.Height-1; y++ {
		for x := 1; x < b.Width-1; x++ {
			for c := range cc {
				sum := 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sum += int(b.At(x+dx, y+dy, c))
					}
				}
				out.Set(x, y, c, pixbuf.Clamp(float64(sum)/9))
			}
		}
	}
	return out
}

// Sharpen adds SharpenAmount times the difference between each interior
// sample and the mean of its four orthogonal neighbours.
func Sharpen(b *pixbuf.Buffer) *pixbuf.Buffer {
	out := b.Clone()
	if b.Width < 3 || b.Height < 3 {
		return out
	}
	cc := b.Layout.ColorChannels()
	for y := 1; y < b.Height-1; y++ {
		for x := 1; x < b.Width-1; x++ {
			for c := range cc {
				center := float64(b.At(x, y, c))
				avg := float64(int(b.At(x, y-1, c))+int(b.At(x, y+1, c))+
					int(b.At(x-1, y, c))+int(b.At(x+1, y, c))) / 4
				out.Set(x, y, c, pixbuf.Clamp(center+(center-avg)*SharpenAmount))
			}
		}
	}
	return out
}
