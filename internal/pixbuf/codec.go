package pixbuf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedImageExtensions lists file extensions accepted for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// ErrEmptyImage is returned for zero-length input.
var ErrEmptyImage = errors.New("empty image data")

// ErrTooLarge is returned when an image exceeds the pixel limit.
var ErrTooLarge = errors.New("image exceeds pixel limit")

// DefaultMaxPixels bounds decoded and upscaled images. A 12 MP phone photo
// scaled 2x stays below it.
const DefaultMaxPixels = 50_000_000

// CheckPixels returns ErrTooLarge (wrapped) when width*height exceeds limit.
// A limit of zero or less means DefaultMaxPixels.
func CheckPixels(width, height, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	if int64(width)*int64(height) > int64(limit) {
		return fmt.Errorf("%w: %dx%d > %d pixels", ErrTooLarge, width, height, limit)
	}
	return nil
}

// DecodeError wraps failures to turn bytes into pixels.
type DecodeError struct {
	Operation string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image decode error in %s: %v", e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Decode parses encoded image bytes into an RGBA buffer. EXIF orientation is
// applied so phone photos come out upright. The detected format name is
// returned alongside the buffer. Images above DefaultMaxPixels are rejected.
func Decode(data []byte) (*Buffer, string, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with a caller-chosen pixel limit. The declared
// dimensions are checked before any pixel data is decoded.
func DecodeLimited(data []byte, maxPixels int) (*Buffer, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Operation: "decode", Err: ErrEmptyImage}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Operation: "header", Err: err}
	}
	if err := CheckPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, format, &DecodeError{Operation: "header", Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, &DecodeError{Operation: "decode", Err: err}
	}
	buf := FromImage(img)
	if err := buf.Validate(); err != nil {
		return nil, format, &DecodeError{Operation: "decode", Err: err}
	}
	return buf, format, nil
}

// DecodeReader reads r fully and decodes it.
func DecodeReader(r io.Reader) (*Buffer, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", &DecodeError{Operation: "read", Err: err}
	}
	return Decode(data)
}

// ReadFile loads the raw bytes of an image file after checking its extension.
func ReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, &DecodeError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, &DecodeError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, &DecodeError{Operation: "load", Err: err}
	}
	return data, nil
}

// EncodePNG serialises the buffer losslessly.
func EncodePNG(b *Buffer) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, b.ToImage(), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// Clamp rounds v half-to-even and saturates it to the sample range.
func Clamp(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(v))
}
