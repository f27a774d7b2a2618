package pdf

import (
	"strings"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// PageResult holds the pipeline results of every image on one page.
type PageResult struct {
	PageNumber int           `json:"page_number" yaml:"page_number"`
	Images     []ImageResult `json:"images" yaml:"images"`
}

// ImageResult is the outcome of one embedded image. Exactly one of Result
// and Error is set.
type ImageResult struct {
	ImageIndex int                        `json:"image_index" yaml:"image_index"`
	Width      int                        `json:"width" yaml:"width"`
	Height     int                        `json:"height" yaml:"height"`
	Result     *pipeline.ExtractionResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error      string                     `json:"error,omitempty" yaml:"error,omitempty"`
}

// DocumentResult represents the recognition results for a PDF document.
type DocumentResult struct {
	Filename   string         `json:"filename" yaml:"filename"`
	TotalPages int            `json:"total_pages" yaml:"total_pages"`
	Pages      []PageResult   `json:"pages" yaml:"pages"`
	Processing ProcessingInfo `json:"processing" yaml:"processing"`
}

// ProcessingInfo contains timing information.
type ProcessingInfo struct {
	ExtractionTimeMs  int64 `json:"extraction_time_ms" yaml:"extraction_time_ms"`
	RecognitionTimeMs int64 `json:"recognition_time_ms" yaml:"recognition_time_ms"`
	TotalTimeMs       int64 `json:"total_time_ms" yaml:"total_time_ms"`
}

// Results returns the successful extraction results in page order.
func (d *DocumentResult) Results() []*pipeline.ExtractionResult {
	var out []*pipeline.ExtractionResult
	for _, p := range d.Pages {
		for _, img := range p.Images {
			if img.Result != nil {
				out = append(out, img.Result)
			}
		}
	}
	return out
}

// Failures counts images that produced an error.
func (d *DocumentResult) Failures() int {
	n := 0
	for _, p := range d.Pages {
		for _, img := range p.Images {
			if img.Error != "" {
				n++
			}
		}
	}
	return n
}

// Text joins the recognized text of every image, pages separated by a blank line.
func (d *DocumentResult) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		var page []string
		for _, img := range p.Images {
			if img.Result != nil && img.Result.Text != "" {
				page = append(page, img.Result.Text)
			}
		}
		if len(page) > 0 {
			parts = append(parts, strings.Join(page, "\n"))
		}
	}
	return strings.Join(parts, "\n\n")
}
