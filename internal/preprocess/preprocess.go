package preprocess

import (
	"github.com/MeKo-Tech/docscan/internal/pixbuf"
)

// Process decodes raw image bytes and runs the enhancement chain.
// The result is deterministic for identical input and options. Both the
// decoded and the scaled size must stay within opts.MaxPixels.
func Process(raw []byte, opts Options) (*pixbuf.Buffer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	buf, _, err := pixbuf.DecodeLimited(raw, opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	w, h := opts.ScaledSize(buf.Width, buf.Height)
	if err := pixbuf.CheckPixels(w, h, opts.MaxPixels); err != nil {
		return nil, &pixbuf.DecodeError{Operation: "scale", Err: err}
	}
	return Enhance(buf, opts), nil
}

// Enhance runs scale, grayscale, contrast/brightness, denoise and sharpen in
// that order. Every step returns a fresh buffer; the input is never modified.
// opts must already be valid.
func Enhance(buf *pixbuf.Buffer, opts Options) *pixbuf.Buffer {
	out := Scale(buf, opts.Scale, opts.filter())
	if opts.Grayscale {
		out = Grayscale(out)
	}
	out = AdjustContrastBrightness(out, opts.Contrast, opts.Brightness)
	if opts.Denoise {
		out = Denoise(out)
	}
	if opts.Sharpen {
		out = Sharpen(out)
	}
	return out
}
