package cmd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docscan/internal/config"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/engine/enginetest"
	"github.com/MeKo-Tech/docscan/internal/testutil"
)

func TestImageCommand_JSON(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "invoice.png")
	local := enginetest.New("tesseract", testutil.InvoiceText, 92)

	res := runCLI(t, fakeEngines(local, nil), "image", page)
	require.NoError(t, res.err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "invoice", out["document_type"])
	assert.Equal(t, "invoice.png", out["filename"])
	assert.Equal(t, "tesseract", out["engine"])
	assert.Equal(t, false, out["fallback_used"])
	assert.Equal(t, 1, local.Calls())
}

func TestImageCommand_LanguagesFlag(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "lr.png")
	local := enginetest.New("tesseract", testutil.LorryReceiptText, 90)

	res := runCLI(t, fakeEngines(local, nil), "image", page, "--languages", "eng,hin")
	require.NoError(t, res.err)
	assert.Equal(t, []string{"eng", "hin"}, local.LastLanguages())
}

func TestImageCommand_LanguagesFromEnvironment(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "lr.png")
	local := enginetest.New("tesseract", testutil.LorryReceiptText, 90)
	t.Setenv("DOCSCAN_RECOGNITION_LANGUAGES", "eng,tam")

	res := runCLI(t, fakeEngines(local, nil), "image", page)
	require.NoError(t, res.err)
	assert.Equal(t, []string{"eng", "tam"}, local.LastLanguages())
}

func TestImageCommand_FallbackUsedOnLowConfidence(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "blurry.png")
	local := enginetest.New("tesseract", "TAX INV0ICE", 20)
	fallback := enginetest.New("google-vision", testutil.InvoiceText, 88)

	res := runCLI(t, fakeEngines(local, fallback), "image", page)
	require.NoError(t, res.err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, true, out["fallback_used"])
	assert.Equal(t, 1, fallback.Calls())
}

func TestImageCommand_FallbackDisabledByFlag(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "blurry.png")
	local := enginetest.New("tesseract", "TAX INV0ICE", 20)
	fallback := enginetest.New("google-vision", testutil.InvoiceText, 88)

	res := runCLI(t, fakeEngines(local, fallback), "image", page, "--fallback=false")
	require.NoError(t, res.err)
	assert.Zero(t, fallback.Calls())
}

func TestImageCommand_CSVToFile(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "invoice.png")
	outFile := filepath.Join(dir, "fields.csv")
	local := enginetest.New("tesseract", testutil.InvoiceText, 92)

	res := runCLI(t, fakeEngines(local, nil), "image", page, "--format", "csv", "-o", outFile)
	require.NoError(t, res.err)
	assert.Empty(t, res.stdout)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file,document_type,label,value,type,confidence")
	assert.Contains(t, string(data), "27AAAPL1234C1Z5")
}

func TestImageCommand_TextFormat(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "invoice.png")
	local := enginetest.New("tesseract", testutil.InvoiceText, 92)

	res := runCLI(t, fakeEngines(local, nil), "image", page, "-f", "text")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "INV-2024-001")
}

func TestImageCommand_Errors(t *testing.T) {
	dir := sandbox(t)
	page := writePage(t, dir, "invoice.png")

	t.Run("no arguments", func(t *testing.T) {
		res := runCLI(t, fakeEngines(enginetest.New("tesseract", "x", 90), nil), "image")
		assert.Error(t, res.err)
	})

	t.Run("batch-only format", func(t *testing.T) {
		res := runCLI(t, fakeEngines(enginetest.New("tesseract", "x", 90), nil), "image", page, "-f", "jsonl")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "invalid output format")
	})

	t.Run("missing file", func(t *testing.T) {
		res := runCLI(t, fakeEngines(enginetest.New("tesseract", "x", 90), nil),
			"image", filepath.Join(dir, "nope.png"))
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "1 of 1 image(s) failed")
	})

	t.Run("engine failure keeps other results", func(t *testing.T) {
		second := writePage(t, dir, "second.png")
		local := enginetest.Failing("tesseract", errors.New("tessdata missing"))
		res := runCLI(t, fakeEngines(local, nil), "image", page, second)
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "2 of 2 image(s) failed")
		assert.Equal(t, 2, local.Calls())
	})

	t.Run("engine factory error", func(t *testing.T) {
		res := runCLI(t, func(_ *config.Config, _ *slog.Logger) (engine.Engine, engine.Engine, error) {
			return nil, nil, errors.New("no libtesseract")
		}, "image", page)
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "failed to create engines")
	})
}
