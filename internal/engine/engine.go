// Package engine defines the recognition capability shared by the local and
// fallback OCR engines.
package engine

import (
	"context"
	"errors"

	"github.com/MeKo-Tech/docscan/internal/pixbuf"
)

// Engine names reported in results.
const (
	NameTesseract    = "tesseract"
	NameGoogleVision = "google-vision"
)

// ErrNoInput is returned when an Input carries neither pixels nor bytes.
var ErrNoInput = errors.New("engine: empty input")

// Input carries an image either as a decoded buffer, as encoded bytes, or
// both. Engines take whichever form they need.
type Input struct {
	Buffer *pixbuf.Buffer
	Data   []byte
}

// Bytes returns encoded image bytes, encoding the buffer as PNG when only
// pixels are available.
func (in Input) Bytes() ([]byte, error) {
	if len(in.Data) > 0 {
		return in.Data, nil
	}
	if in.Buffer == nil {
		return nil, ErrNoInput
	}
	return pixbuf.EncodePNG(in.Buffer)
}

// Pixels returns the decoded buffer, decoding Data when needed.
func (in Input) Pixels() (*pixbuf.Buffer, error) {
	if in.Buffer != nil {
		return in.Buffer, nil
	}
	if len(in.Data) == 0 {
		return nil, ErrNoInput
	}
	buf, _, err := pixbuf.Decode(in.Data)
	return buf, err
}

// Result is one engine invocation's output. Confidence is on a 0-100 scale.
// ConfidenceMeasured is false when the engine substituted a fixed heuristic
// value because it reported none; such a value is not comparable in precision
// to a measured one.
type Result struct {
	Text               string
	Confidence         float64
	ConfidenceMeasured bool
}

// Engine recognises text in an image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input, languages []string) (Result, error)
}
