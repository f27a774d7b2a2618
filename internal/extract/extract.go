// Package extract pulls typed fields such as GSTIN, PAN, vehicle numbers and
// amounts out of raw OCR text using a declarative rule registry.
package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Field is one extracted value.
type Field struct {
	Label string `json:"label" yaml:"label"`
	// Value is taken from the NFKC-normalised text, so it need not be an
	// exact substring of the recognized text (full-width digits become ASCII).
	Value      string    `json:"value" yaml:"value"`
	Type       FieldType `json:"type" yaml:"type"`
	Confidence Tier      `json:"confidence" yaml:"confidence"`
}

// Extractor applies an ordered rule list.
type Extractor struct {
	rules []Rule
}

// NewExtractor copies rules so later changes by the caller do not leak in.
func NewExtractor(rules []Rule) *Extractor {
	return &Extractor{rules: append([]Rule(nil), rules...)}
}

var defaultExtractor = NewExtractor(DefaultRules())

// Extract runs the default registry.
func Extract(text string) []Field {
	return defaultExtractor.Extract(text)
}

// Rules returns the extractor's rules in evaluation order.
func (e *Extractor) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Extract evaluates every rule in registry order and returns the fields in
// that order. A (type, value) pair is emitted at most once. The text is
// NFKC-normalised first so full-width digits and compatibility characters
// match the ASCII patterns.
func (e *Extractor) Extract(text string) []Field {
	text = norm.NFKC.String(text)

	fields := []Field{}
	added := make(map[string]struct{})
	seen := make(map[FieldType][]string, len(e.rules))

	for _, r := range e.rules {
		matches := r.Pattern.FindAllStringSubmatch(text, -1)
		if r.Limit > 0 && len(matches) > r.Limit {
			matches = matches[:r.Limit]
		}
		for i, m := range matches {
			if r.Group >= len(m) {
				continue
			}
			raw := m[r.Group]
			seen[r.Type] = append(seen[r.Type], raw)

			if r.Accept != nil && !r.Accept(raw, seen) {
				continue
			}
			value := raw
			if r.Normalize != nil {
				value = r.Normalize(value)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			key := string(r.Type) + ":" + value
			if _, dup := added[key]; dup {
				continue
			}
			added[key] = struct{}{}
			fields = append(fields, Field{
				Label:      r.LabelFor(i),
				Value:      value,
				Type:       r.Type,
				Confidence: r.Tier,
			})
		}
	}
	return fields
}
