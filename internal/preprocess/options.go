// Package preprocess enhances document images before recognition.
package preprocess

import (
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/docscan/internal/pixbuf"
)

// Resample filter names accepted by Options.Resample.
const (
	ResampleNearest = "nearest"
	ResampleLinear  = "linear"
)

// MaxScale bounds the upscale factor. Pixel count grows quadratically.
const MaxScale = 3.0

// SharpenAmount is the unsharp-mask weight applied to interior pixels.
const SharpenAmount = 0.5

// Options controls the enhancement steps. Scale always applies; the other
// steps are toggled individually.
type Options struct {
	Scale      float64 `json:"scale" yaml:"scale"`
	Contrast   float64 `json:"contrast" yaml:"contrast"`
	Brightness float64 `json:"brightness" yaml:"brightness"`
	Sharpen    bool    `json:"sharpen" yaml:"sharpen"`
	Grayscale  bool    `json:"grayscale" yaml:"grayscale"`
	Denoise    bool    `json:"denoise" yaml:"denoise"`
	Resample   string  `json:"resample" yaml:"resample"`
	// MaxPixels bounds the decoded and the scaled image. Zero means
	// pixbuf.DefaultMaxPixels.
	MaxPixels int `json:"max_pixels,omitempty" yaml:"max_pixels,omitempty"`
}

// DefaultOptions returns the tuned defaults for photographed documents.
func DefaultOptions() Options {
	return Options{
		Scale:      2.0,
		Contrast:   1.4,
		Brightness: 1.1,
		Sharpen:    true,
		Grayscale:  true,
		Denoise:    true,
		Resample:   ResampleNearest,
		MaxPixels:  pixbuf.DefaultMaxPixels,
	}
}

// ValidationError reports an option outside its accepted range.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid preprocess option %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks ranges. Contrast values between roughly 1.0 and 2.0 are the
// practical range; the only hard requirement beyond positivity is staying off
// the pole of the contrast formula at contrast*255 == 259.
func (o Options) Validate() error {
	if math.IsNaN(o.Scale) || o.Scale <= 0 || o.Scale > MaxScale {
		return &ValidationError{Field: "scale", Value: o.Scale, Reason: fmt.Sprintf("must be in (0, %.1f]", MaxScale)}
	}
	if math.IsNaN(o.Contrast) || o.Contrast <= 0 {
		return &ValidationError{Field: "contrast", Value: o.Contrast, Reason: "must be > 0"}
	}
	if math.Abs(o.Contrast*255-259) < 1e-9 {
		return &ValidationError{Field: "contrast", Value: o.Contrast, Reason: "contrast*255 must not equal 259"}
	}
	if math.IsNaN(o.Brightness) || o.Brightness <= 0 {
		return &ValidationError{Field: "brightness", Value: o.Brightness, Reason: "must be > 0"}
	}
	if o.MaxPixels < 0 {
		return &ValidationError{Field: "max_pixels", Value: o.MaxPixels, Reason: "must be >= 0"}
	}
	switch o.Resample {
	case "", ResampleNearest, ResampleLinear:
	default:
		return &ValidationError{Field: "resample", Value: o.Resample, Reason: "must be nearest or linear"}
	}
	return nil
}

// ScaledSize returns the dimensions Scale produces for a width x height input.
func (o Options) ScaledSize(width, height int) (int, int) {
	return max(int(float64(width)*o.Scale), 1), max(int(float64(height)*o.Scale), 1)
}

func (o Options) filter() imaging.ResampleFilter {
	if o.Resample == ResampleLinear {
		return imaging.Linear
	}
	return imaging.NearestNeighbor
}

// ContrastFactor evaluates 259*(c*255+255) / (255*(259-c*255)).
// For c above 259/255 the denominator is negative and the factor inverts
// tones; callers get exactly that behaviour.
func ContrastFactor(contrast float64) float64 {
	c := contrast * 255
	return 259 * (c + 255) / (255 * (259 - c))
}
