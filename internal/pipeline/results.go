package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/docscan/internal/extract"
)

// Output formats understood by Render.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
	FormatCSV  = "csv"
)

// Formats lists the supported output formats.
func Formats() []string { return []string{FormatJSON, FormatYAML, FormatText, FormatCSV} }

// Render serializes results in the named format. JSON and YAML of a single
// result are emitted as an object, several as a list.
func Render(results []*ExtractionResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		if len(results) == 1 {
			return ToJSON(results[0])
		}
		return ToJSONResults(results)
	case FormatYAML:
		if len(results) == 1 {
			return ToYAML(results[0])
		}
		return toYAML(results)
	case FormatText:
		parts := make([]string, 0, len(results))
		for _, r := range results {
			s, err := ToPlainText(r)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, "\n\n"), nil
	case FormatCSV:
		return ToCSV(results...)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// ToJSON serializes a result to pretty JSON.
func ToJSON(res *ExtractionResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONResults serializes several results to a pretty JSON array.
func ToJSONResults(results []*ExtractionResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes a result to YAML.
func ToYAML(res *ExtractionResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	return toYAML(res)
}

func toYAML(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToPlainText renders a short human readable summary followed by the fields
// and the recognized text.
func ToPlainText(res *ExtractionResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var b strings.Builder
	if res.Filename != "" {
		fmt.Fprintf(&b, "File: %s\n", res.Filename)
	}
	fmt.Fprintf(&b, "Document: %s\n", res.DocumentLabel)
	fmt.Fprintf(&b, "Engine: %s (confidence %.1f", res.Engine, res.Confidence)
	if !res.ConfidenceMeasured {
		b.WriteString(", estimated")
	}
	b.WriteString(")\n")
	if res.FallbackUsed {
		b.WriteString("Fallback: used\n")
	}
	if len(res.ExtractedFields) > 0 {
		b.WriteString("\nFields:\n")
		width := 0
		for _, f := range res.ExtractedFields {
			width = max(width, len(f.Label))
		}
		for _, f := range res.ExtractedFields {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, f.Label, f.Value)
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	if len(res.Lines) > 0 {
		b.WriteString("\nText:\n")
		b.WriteString(strings.Join(res.Lines, "\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ToCSV exports one row per extracted field with a header.
func ToCSV(results ...*ExtractionResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"file", "document_type", "label", "value", "type", "confidence"})
	for _, res := range results {
		if res == nil {
			return "", errors.New("nil result")
		}
		for _, f := range res.ExtractedFields {
			_ = w.Write([]string{
				res.Filename,
				string(res.DocumentType),
				f.Label,
				f.Value,
				string(f.Type),
				string(f.Confidence),
			})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateExtractionResult performs consistency checks that the schema
// cannot express.
func ValidateExtractionResult(res *ExtractionResult) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		return fmt.Errorf("confidence %.2f out of range", res.Confidence)
	}
	if res.ProcessingTimeMs < 0 {
		return fmt.Errorf("negative processing time %d", res.ProcessingTimeMs)
	}
	seen := make(map[string]struct{}, len(res.ExtractedFields))
	for i, f := range res.ExtractedFields {
		if err := validateField(f, i); err != nil {
			return err
		}
		key := string(f.Type) + ":" + f.Value
		if _, dup := seen[key]; dup {
			return fmt.Errorf("field %d duplicates %s %q", i, f.Type, f.Value)
		}
		seen[key] = struct{}{}
	}
	if got := len(strings.Fields(res.Text)); got != res.WordCount {
		return fmt.Errorf("word count %d does not match text (%d)", res.WordCount, got)
	}
	return nil
}

func validateField(f extract.Field, i int) error {
	if f.Value == "" || f.Value != strings.TrimSpace(f.Value) {
		return fmt.Errorf("field %d has an untrimmed or empty value", i)
	}
	if f.Label == "" {
		return fmt.Errorf("field %d has no label", i)
	}
	return nil
}
