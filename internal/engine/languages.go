package engine

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// SupportedLanguages lists the Tesseract language codes the service ships
// traineddata for.
var SupportedLanguages = []string{
	"eng", "hin", "tam", "tel", "mar", "guj", "ben", "kan", "mal", "pan", "ori",
}

// DefaultLanguages is used when the caller selects nothing.
var DefaultLanguages = []string{"eng"}

// DefaultHints are sent to the fallback engine when no selected language maps
// to a BCP 47 tag.
var DefaultHints = []string{"en", "hi"}

// NormalizeLanguages lower-cases, trims and de-duplicates codes, splitting
// "eng+hin" style values. An empty selection yields DefaultLanguages.
func NormalizeLanguages(langs []string) ([]string, error) {
	out := make([]string, 0, len(langs))
	for _, raw := range langs {
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '+' || r == ',' }) {
			code := strings.ToLower(strings.TrimSpace(part))
			if code == "" || slices.Contains(out, code) {
				continue
			}
			if !slices.Contains(SupportedLanguages, code) {
				return nil, fmt.Errorf("unsupported language %q (supported: %s)", code, strings.Join(SupportedLanguages, ", "))
			}
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return slices.Clone(DefaultLanguages), nil
	}
	return out, nil
}

// TesseractString joins codes the way tesseract expects them ("eng+hin").
func TesseractString(langs []string) string {
	return strings.Join(langs, "+")
}

// Hints converts Tesseract codes into BCP 47 language hints ("hin" -> "hi").
func Hints(langs []string) []string {
	hints := make([]string, 0, len(langs))
	for _, code := range langs {
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		base, conf := tag.Base()
		if conf == language.No {
			continue
		}
		h := base.String()
		if !slices.Contains(hints, h) {
			hints = append(hints, h)
		}
	}
	if len(hints) == 0 {
		return slices.Clone(DefaultHints)
	}
	return hints
}
