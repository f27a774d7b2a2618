package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// FormatJSONL writes one JSON object per line.
const FormatJSONL = "jsonl"

// record is the serialized form of an Item.
type record struct {
	File   string                     `json:"file" yaml:"file"`
	Result *pipeline.ExtractionResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string                     `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r *Result) records() []record {
	out := make([]record, len(r.Items))
	for i, it := range r.Items {
		out[i] = record{File: it.Path, Result: it.Result}
		if it.Err != nil {
			out[i].Error = it.Err.Error()
		}
	}
	return out
}

// FormatResults formats the batch results. JSON lines and JSON carry failed
// documents with their error; the other formats render successes only.
func (r *Result) FormatResults(format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSONL:
		return r.formatJSONL()
	case "", pipeline.FormatJSON:
		b, err := json.MarshalIndent(struct {
			Documents []record `json:"documents"`
		}{r.records()}, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case pipeline.FormatText:
		return r.formatText()
	default:
		return pipeline.Render(r.Successful(), format)
	}
}

func (r *Result) formatJSONL() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range r.records() {
		if err := enc.Encode(rec); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func (r *Result) formatText() (string, error) {
	var out strings.Builder
	for i, it := range r.Items {
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "# %s\n", it.Path)
		if it.Err != nil {
			fmt.Fprintf(&out, "Error: %v\n", it.Err)
			continue
		}
		text, err := pipeline.ToPlainText(it.Result)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(format, outputFile string, w io.Writer) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile == "" {
		_, err := io.WriteString(w, output)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
