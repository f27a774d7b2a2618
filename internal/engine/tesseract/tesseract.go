// Package tesseract is the local recognition engine backed by gosseract.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/otiai10/gosseract/v2"
)

// Config tunes the tesseract client.
type Config struct {
	TessdataPrefix string
	PageSegMode    int // 0 keeps the tesseract default
}

// Engine implements engine.Engine on top of a fresh gosseract client per call.
type Engine struct {
	cfg           Config
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return engine.NameTesseract }

// Recognize runs OCR over the image. Confidence is the mean word confidence.
func (e *Engine) Recognize(ctx context.Context, in engine.Input, languages []string) (engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return engine.Result{}, err
	}
	data, err := in.Bytes()
	if err != nil {
		return engine.Result{}, err
	}

	c := e.clientFactory()
	defer func() {
		if cerr := c.Close(); cerr != nil {
			slog.Debug("tesseract client close failed", "error", cerr)
		}
	}()

	if e.cfg.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			return engine.Result{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return engine.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if e.cfg.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.cfg.PageSegMode)); err != nil {
			return engine.Result{}, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return engine.Result{}, fmt.Errorf("set image: %w", err)
	}

	start := time.Now()
	text, err := c.Text()
	if err != nil {
		return engine.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	conf := meanWordConfidence(c)
	slog.Debug("tesseract recognized",
		"languages", engine.TesseractString(languages),
		"chars", len(text),
		"confidence", conf,
		"duration_ms", time.Since(start).Milliseconds())

	return engine.Result{
		Text:               strings.TrimSpace(text),
		Confidence:         conf,
		ConfidenceMeasured: true,
	}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return clampConfidence(sum / float64(len(boxes)))
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Version returns the linked libtesseract version.
func Version() string {
	return gosseract.Version()
}

// tessdataDirs are searched when neither the config nor TESSDATA_PREFIX names one.
var tessdataDirs = []string{
	"/usr/share/tesseract-ocr/5/tessdata",
	"/usr/share/tesseract-ocr/4.00/tessdata",
	"/usr/share/tessdata",
	"/usr/local/share/tessdata",
	"/opt/homebrew/share/tessdata",
}

// AvailableLanguages lists the traineddata codes installed under prefix, or
// under the first existing default location when prefix is empty.
func AvailableLanguages(prefix string) (string, []string, error) {
	dirs := tessdataDirs
	if prefix == "" {
		prefix = os.Getenv("TESSDATA_PREFIX")
	}
	if prefix != "" {
		dirs = []string{prefix, filepath.Join(prefix, "tessdata")}
	}
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.traineddata"))
		if err != nil || len(matches) == 0 {
			continue
		}
		langs := make([]string, 0, len(matches))
		for _, m := range matches {
			langs = append(langs, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
		}
		sort.Strings(langs)
		return dir, langs, nil
	}
	return "", nil, fmt.Errorf("no traineddata found (searched %s)", strings.Join(dirs, ", "))
}

// MissingLanguages returns the codes in want that have no traineddata installed.
func MissingLanguages(installed, want []string) []string {
	var missing []string
	for _, code := range want {
		if !slices.Contains(installed, code) {
			missing = append(missing, code)
		}
	}
	return missing
}
