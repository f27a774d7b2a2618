// Package classify labels recognised text with a logistics document type.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// DocumentType is one of a fixed set of document kinds.
type DocumentType string

const (
	General   DocumentType = "general"
	LR        DocumentType = "lr"
	POD       DocumentType = "pod"
	Invoice   DocumentType = "invoice"
	EWayBill  DocumentType = "eway"
	Weighment DocumentType = "weighment"
	Challan   DocumentType = "challan"
)

var labels = map[DocumentType]string{
	General:   "General",
	LR:        "Lorry Receipt",
	POD:       "POD",
	Invoice:   "Invoice",
	EWayBill:  "E-Way Bill",
	Weighment: "Weighment",
	Challan:   "Challan",
}

// Label returns the human readable name.
func (d DocumentType) Label() string {
	if l, ok := labels[d]; ok {
		return l
	}
	return string(d)
}

// AllTypes lists every document type in classification order, General last.
func AllTypes() []DocumentType {
	out := make([]DocumentType, 0, len(signatures)+1)
	for _, s := range signatures {
		out = append(out, s.Type)
	}
	return append(out, General)
}

// Parse accepts a wire code or label, case-insensitively.
func Parse(s string) (DocumentType, error) {
	s = strings.TrimSpace(s)
	for _, t := range AllTypes() {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, t.Label()) {
			return t, nil
		}
	}
	return General, fmt.Errorf("unknown document type %q", s)
}

// Signature ties a document type to the pattern that identifies it.
type Signature struct {
	Type    DocumentType
	Pattern *regexp.Regexp
}

// signatures are checked in order; the first match wins. More specific
// vocabularies come first because an LR or e-way bill often also mentions
// "invoice" or "bill".
var signatures = []Signature{
	{LR, regexp.MustCompile(`(?i)lorry\s*receipt|l\.?r\.?\s*no|consignment\s*note|gc\s*no|gr\s*no|bilty`)},
	{POD, regexp.MustCompile(`(?i)proof\s*of\s*delivery|\bpod\b|delivered|delivery\s*receipt`)},
	{Invoice, regexp.MustCompile(`(?i)tax\s*invoice|invoice|bill\s*of\s*supply`)},
	{EWayBill, regexp.MustCompile(`(?i)e-?way\s*bill|ewb`)},
	{Weighment, regexp.MustCompile(`(?i)weigh.*slip|weighbridge|gross.*tare.*net`)},
	{Challan, regexp.MustCompile(`(?i)challan|delivery\s*challan|dc\s*no`)},
}

// Signatures returns a copy of the ordered signature table.
func Signatures() []Signature {
	return append([]Signature(nil), signatures...)
}

// Classify returns the first matching document type, or General.
func Classify(text string) DocumentType {
	return ClassifyWith(signatures, text)
}

// ClassifyWith evaluates a custom ordered signature list.
func ClassifyWith(sigs []Signature, text string) DocumentType {
	if strings.TrimSpace(text) == "" {
		return General
	}
	for _, s := range sigs {
		if s.Pattern.MatchString(text) {
			return s.Type
		}
	}
	return General
}
