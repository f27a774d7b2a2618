package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldType tags what kind of value a field holds.
type FieldType string

const (
	GSTIN    FieldType = "gstin"
	PAN      FieldType = "pan"
	Vehicle  FieldType = "vehicle"
	EWay     FieldType = "eway"
	Email    FieldType = "email"
	Phone    FieldType = "phone"
	Date     FieldType = "date"
	Amount   FieldType = "amount"
	Invoice  FieldType = "invoice"
	LR       FieldType = "lr"
	Weight   FieldType = "weight"
	Quantity FieldType = "quantity"
	URL      FieldType = "url"
	IFSC     FieldType = "ifsc"
)

// Tier is a static confidence label attached to each rule.
type Tier string

const (
	High   Tier = "high"
	Medium Tier = "medium"
	Low    Tier = "low"
)

// Rule describes one extraction pass over the text.
type Rule struct {
	Type    FieldType
	Label   string
	Pattern *regexp.Regexp
	// Group selects the submatch holding the value; 0 uses the whole match.
	Group int
	Tier  Tier
	// Limit caps how many matches are considered, in text order. 0 means all.
	Limit int
	// Numbered labels the i-th match "<Label> i" (or "<NextLabel> i") from the second on.
	Numbered  bool
	NextLabel string
	// Accept may reject a raw value. seen holds raw values of earlier rules.
	Accept func(value string, seen map[FieldType][]string) bool
	// Normalize rewrites an accepted value before it is stored.
	Normalize func(value string) string
}

// LabelFor returns the label for the i-th (zero based) match.
func (r Rule) LabelFor(i int) string {
	if !r.Numbered || i == 0 {
		return r.Label
	}
	base := r.Label
	if r.NextLabel != "" {
		base = r.NextLabel
	}
	return base + " " + strconv.Itoa(i+1)
}

var (
	gstinPattern    = regexp.MustCompile(`\b([0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][0-9A-Z]Z[0-9A-Z])\b`)
	panPattern      = regexp.MustCompile(`\b([A-Z]{5}[0-9]{4}[A-Z])\b`)
	vehiclePattern  = regexp.MustCompile(`(?i)\b([A-Z]{2}[\s\-]?\d{1,2}[\s\-]?[A-Z]{1,3}[\s\-]?\d{4})\b`)
	ewayPattern     = regexp.MustCompile(`(?i)(?:E-?Way|EWB)[\s.:]*(?:Bill)?[\s.:]*(?:No\.?)?[\s.:]*(\d{12,15})`)
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern    = regexp.MustCompile(`(?:\+91[\s\-]?)?[6-9]\d{9}\b`)
	datePattern     = regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})\b`)
	amountPattern   = regexp.MustCompile(`(?i)(?:Rs\.?|₹|INR)\s*([0-9,]+(?:\.\d{1,2})?)`)
	invoicePattern  = regexp.MustCompile(`(?i)\b(?:Invoice|Inv|Bill)[\s.:№#]*(?:No\.?)?[\s.:]*([A-Z0-9\-/]*\d[A-Z0-9\-/]*)`)
	lrPattern       = regexp.MustCompile(`(?i)\b(?:LR|L\.R\.|GC|GR|CN|Consignment)[\s.:№#]*(?:No\.?)?[\s.:]*([A-Z0-9\-/]*\d[A-Z0-9\-/]*)`)
	weightPattern   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:kg|MT|ton|quintal)`)
	quantityPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:pcs?|pieces?|units?|nos?|boxes?|bags?|cartons?)`)
	urlPattern      = regexp.MustCompile(`https?://[^\s]+`)
	ifscPattern     = regexp.MustCompile(`\b([A-Z]{4}0[A-Z0-9]{6})\b`)

	whitespace = regexp.MustCompile(`\s+`)
)

// DefaultRules returns the built-in registry. GSTIN precedes PAN so that the
// PAN embedded in a GSTIN can be suppressed.
func DefaultRules() []Rule {
	return []Rule{
		{Type: GSTIN, Label: "GSTIN", Pattern: gstinPattern, Tier: High},
		{Type: PAN, Label: "PAN", Pattern: panPattern, Tier: High, Accept: notInsideGSTIN},
		{Type: Vehicle, Label: "Vehicle No", Pattern: vehiclePattern, Tier: High, Normalize: normalizeVehicle},
		{Type: EWay, Label: "E-Way Bill", Pattern: ewayPattern, Group: 1, Tier: High, Limit: 1},
		{Type: Email, Label: "Email", Pattern: emailPattern, Tier: High, Normalize: strings.ToLower},
		{Type: Phone, Label: "Phone", Pattern: phonePattern, Tier: High, Limit: 3, Numbered: true, Normalize: stripSpaces},
		{Type: Date, Label: "Date", Pattern: datePattern, Tier: Medium, Limit: 3, Numbered: true},
		{
			Type: Amount, Label: "Amount", Pattern: amountPattern, Group: 1, Tier: Medium, Limit: 3, Numbered: true,
			Accept: positiveAmount, Normalize: func(v string) string { return "₹" + v },
		},
		{Type: Invoice, Label: "Invoice No", Pattern: invoicePattern, Group: 1, Tier: Medium, Limit: 1},
		{Type: LR, Label: "LR No", Pattern: lrPattern, Group: 1, Tier: Medium, Limit: 1},
		{Type: Weight, Label: "Weight", Pattern: weightPattern, Tier: Medium, Limit: 2, Numbered: true},
		{Type: Quantity, Label: "Quantity", NextLabel: "Qty", Pattern: quantityPattern, Tier: Medium, Limit: 2, Numbered: true},
		{Type: URL, Label: "URL", Pattern: urlPattern, Tier: High, Limit: 2},
		{Type: IFSC, Label: "IFSC", Pattern: ifscPattern, Tier: High},
	}
}

func notInsideGSTIN(v string, seen map[FieldType][]string) bool {
	for _, g := range seen[GSTIN] {
		if strings.Contains(g, v) {
			return false
		}
	}
	return true
}

func positiveAmount(v string, _ map[FieldType][]string) bool {
	n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	return err == nil && n > 0
}

func normalizeVehicle(v string) string {
	return whitespace.ReplaceAllString(strings.ToUpper(v), "-")
}

func stripSpaces(v string) string {
	return whitespace.ReplaceAllString(v, "")
}
