package tesseract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Name(t *testing.T) {
	assert.Equal(t, "tesseract", New(Config{}).Name())
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Recognize(ctx, engine.Input{Data: []byte("x")}, []string{"eng"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_EmptyInput(t *testing.T) {
	_, err := New(Config{}).Recognize(context.Background(), engine.Input{}, []string{"eng"})
	require.ErrorIs(t, err, engine.ErrNoInput)
}

func TestClampConfidence(t *testing.T) {
	assert.InDelta(t, 0.0, clampConfidence(-1), 0)
	assert.InDelta(t, 100.0, clampConfidence(120), 0)
	assert.InDelta(t, 42.5, clampConfidence(42.5), 0)
}

func TestEngine_RecognizesRenderedText(t *testing.T) {
	if os.Getenv("DOCSCAN_TESSERACT_TESTS") == "" {
		t.Skip("set DOCSCAN_TESSERACT_TESTS=1 to run against a local tesseract install")
	}
	data := testutil.TextImagePNG(t, "INVOICE 42")
	res, err := New(Config{}).Recognize(context.Background(), engine.Input{Data: data}, []string{"eng"})
	require.NoError(t, err)
	assert.True(t, res.ConfidenceMeasured)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 100.0)
}

func TestAvailableLanguages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hin.traineddata", "eng.traineddata", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	found, langs, err := AvailableLanguages(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, found)
	assert.Equal(t, []string{"eng", "hin"}, langs)
	assert.Equal(t, []string{"tam"}, MissingLanguages(langs, []string{"eng", "tam"}))
	assert.Empty(t, MissingLanguages(langs, []string{"hin"}))

	_, _, err = AvailableLanguages(t.TempDir())
	assert.Error(t, err)
}
