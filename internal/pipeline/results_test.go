package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/docscan/internal/classify"
	"github.com/MeKo-Tech/docscan/internal/extract"
)

func sampleResult() *ExtractionResult {
	text := "TAX INVOICE\nInvoice No: INV-2024-001\nGSTIN: 27AAAPL1234C1Z5"
	return &ExtractionResult{
		RunID:              "0b7c2a8e-5d7f-4b0e-9a43-0d1f0f7a1c11",
		Filename:           "inv.png",
		Success:            true,
		Text:               text,
		Confidence:         88.5,
		ConfidenceMeasured: true,
		Engine:             "tesseract",
		ProcessingTimeMs:   42,
		DocumentType:       classify.Invoice,
		DocumentLabel:      classify.Invoice.Label(),
		ExtractedFields: []extract.Field{
			{Label: "GSTIN", Value: "27AAAPL1234C1Z5", Type: extract.GSTIN, Confidence: extract.High},
			{Label: "Invoice No", Value: "INV-2024-001", Type: extract.Invoice, Confidence: extract.Medium},
		},
		Lines:        SplitLines(text),
		WordCount:    len(strings.Fields(text)),
		Preprocessed: true,
		Languages:    []string{"eng"},
		Timing:       StageTiming{PreprocessMs: 5, RecognizeMs: 30, ExtractMs: 1},
	}
}

func TestToJSON(t *testing.T) {
	res := sampleResult()
	s, err := ToJSON(res)
	require.NoError(t, err)

	var back ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(s), &back))
	assert.Equal(t, res.ExtractedFields, back.ExtractedFields)
	assert.Contains(t, s, `"document_type": "invoice"`)
	assert.Contains(t, s, `"processing_time_ms": 42`)
	assert.NotContains(t, s, "warnings")

	_, err = ToJSON(nil)
	assert.Error(t, err)
}

func TestToYAML(t *testing.T) {
	s, err := ToYAML(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, s, "document_type: invoice")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(s), &back))
	fields, ok := back["extracted_fields"].([]any)
	require.True(t, ok)
	assert.Len(t, fields, 2)
}

func TestToPlainText(t *testing.T) {
	res := sampleResult()
	res.ConfidenceMeasured = false
	res.Warnings = []string{"confidence is a default"}
	s, err := ToPlainText(res)
	require.NoError(t, err)

	assert.Contains(t, s, "File: inv.png")
	assert.Contains(t, s, "Document: Invoice")
	assert.Contains(t, s, "confidence 88.5, estimated")
	assert.Contains(t, s, "GSTIN       27AAAPL1234C1Z5")
	assert.Contains(t, s, "Warning: confidence is a default")
	assert.True(t, strings.HasSuffix(s, "GSTIN: 27AAAPL1234C1Z5\n"))
}

func TestToCSV(t *testing.T) {
	s, err := ToCSV(sampleResult(), sampleResult())
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"file", "document_type", "label", "value", "type", "confidence"}, rows[0])
	assert.Equal(t, []string{"inv.png", "invoice", "Invoice No", "INV-2024-001", "invoice", "medium"}, rows[2])
}

func TestRender(t *testing.T) {
	res := sampleResult()
	for _, f := range Formats() {
		s, err := Render([]*ExtractionResult{res}, f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, s, f)
	}

	many, err := Render([]*ExtractionResult{res, res}, FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(many, "["))

	_, err = Render([]*ExtractionResult{res}, "xml")
	assert.Error(t, err)
}

func TestValidateJSON(t *testing.T) {
	b, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	require.NoError(t, ValidateJSON(b))

	bad := sampleResult()
	bad.ExtractedFields[0].Type = "passport"
	b, err = json.Marshal(bad)
	require.NoError(t, err)
	assert.Error(t, ValidateJSON(b))

	bad = sampleResult()
	bad.Confidence = 140
	b, err = json.Marshal(bad)
	require.NoError(t, err)
	assert.Error(t, ValidateJSON(b))

	assert.Error(t, ValidateJSON([]byte(`{"success": true}`)))
	assert.Error(t, ValidateJSON([]byte(`not json`)))
	assert.True(t, json.Valid(ResultSchema()))
}

func TestValidateExtractionResult(t *testing.T) {
	require.NoError(t, ValidateExtractionResult(sampleResult()))
	assert.Error(t, ValidateExtractionResult(nil))

	dup := sampleResult()
	dup.ExtractedFields = append(dup.ExtractedFields, dup.ExtractedFields[0])
	assert.Error(t, ValidateExtractionResult(dup))

	untrimmed := sampleResult()
	untrimmed.ExtractedFields[1].Value = " INV-2024-001"
	assert.Error(t, ValidateExtractionResult(untrimmed))

	words := sampleResult()
	words.WordCount = 1
	assert.Error(t, ValidateExtractionResult(words))
}
