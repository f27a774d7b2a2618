package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	LargeSize  = ImageSize{1024, 768}
)

// DocumentImageConfig controls synthetic document rendering.
type DocumentImageConfig struct {
	Lines      []string
	Size       ImageSize
	Background color.Color
	Foreground color.Color
	FontFace   font.Face
	Rotation   float64 // degrees
	Noise      float64 // fraction of pixels flipped, 0 disables
}

// DefaultDocumentImageConfig returns a clean single-line document.
func DefaultDocumentImageConfig() DocumentImageConfig {
	return DocumentImageConfig{
		Lines:      []string{"Sample Text"},
		Size:       MediumSize,
		Background: color.White,
		Foreground: color.Black,
		FontFace:   basicfont.Face7x13,
	}
}

// GenerateDocumentImage draws the configured lines left-aligned from the top
// margin, like a printed slip.
func GenerateDocumentImage(cfg DocumentImageConfig) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{cfg.Foreground},
		Face: cfg.FontFace,
	}
	lineHeight := cfg.FontFace.Metrics().Height.Ceil() + 4
	for i, line := range cfg.Lines {
		drawer.Dot = fixed.P(16, 16+(i+1)*lineHeight)
		drawer.DrawString(line)
	}

	out := img
	if cfg.Noise > 0 {
		out = addNoise(out, cfg.Noise)
	}
	if cfg.Rotation != 0 {
		out = imaging.Rotate(out, cfg.Rotation, cfg.Background)
	}
	return out
}

// TextImagePNG renders text (newline separated) and returns PNG bytes.
func TextImagePNG(t *testing.T, text string) []byte {
	t.Helper()
	cfg := DefaultDocumentImageConfig()
	cfg.Lines = strings.Split(text, "\n")
	return EncodePNG(t, GenerateDocumentImage(cfg))
}

// SolidImagePNG returns a uniformly coloured PNG.
func SolidImagePNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	return EncodePNG(t, CreateTestImage(width, height, c))
}

// EncodePNG encodes img or fails the test.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var b bytes.Buffer
	require.NoError(t, png.Encode(&b, img), "Failed to encode PNG image")
	return b.Bytes()
}

// WriteImageFile writes PNG bytes for img to dir/name and returns the path.
func WriteImageFile(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600))
	return path
}

// CreateTestImage creates a simple test image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// addNoise flips a deterministic subset of pixels to mimic scanner speckle.
func addNoise(img *image.NRGBA, level float64) *image.NRGBA {
	noisy := imaging.Clone(img)
	b := noisy.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if math.Mod(float64(x*y), 1.0/level) >= 1.0 || (x+y)%2 != 0 {
				continue
			}
			i := noisy.PixOffset(x, y)
			noisy.Pix[i] = 255 - noisy.Pix[i]
			noisy.Pix[i+1] = 255 - noisy.Pix[i+1]
			noisy.Pix[i+2] = 255 - noisy.Pix[i+2]
		}
	}
	return noisy
}

// PNGHeader returns a PNG signature and IHDR chunk declaring an 8-bit gray
// image of the given size, with no pixel data. Decoders can read its config
// but not its pixels.
func PNGHeader(width, height uint32) []byte {
	var b bytes.Buffer
	b.WriteString("\x89PNG\r\n\x1a\n")
	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, width)
	chunk = binary.BigEndian.AppendUint32(chunk, height)
	chunk = append(chunk, 8, 0, 0, 0, 0)
	b.Write(binary.BigEndian.AppendUint32(nil, uint32(len(chunk)-4)))
	b.Write(chunk)
	b.Write(binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE(chunk)))
	return b.Bytes()
}
