package testutil

import (
	"bytes"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestTextImagePNG_Decodes(t *testing.T) {
	data := TextImagePNG(t, "line one\nline two")
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, MediumSize.Width, img.Bounds().Dx())

	// some ink must have been drawn
	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r < 0x8000 {
				dark++
			}
		}
	}
	assert.Positive(t, dark)
}

func TestGenerateDocumentImage_NoiseAndRotation(t *testing.T) {
	cfg := DefaultDocumentImageConfig()
	cfg.Size = SmallSize
	cfg.Noise = 0.05
	cfg.Rotation = 90
	img := GenerateDocumentImage(cfg)
	assert.Equal(t, SmallSize.Height, img.Bounds().Dx())
	assert.Equal(t, SmallSize.Width, img.Bounds().Dy())
}

func TestWriteImageFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := WriteImageFile(t, dir, "a.png", CreateTestImage(4, 4, color.White))
	assert.True(t, FileExists(path))
	assert.NotEmpty(t, SolidImagePNG(t, 2, 2, color.Black))
}
