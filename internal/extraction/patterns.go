package extraction

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Field names a pattern-matched invoice field
type Field string

const (
	FieldInvoiceNumber Field = "invoice_number"
	FieldDate          Field = "date"
	FieldAmount        Field = "amount"
	FieldTaxID         Field = "tax_id"
)

// fieldOrder is the order fields are resolved in
var fieldOrder = []Field{FieldInvoiceNumber, FieldDate, FieldAmount, FieldTaxID}

// Currency markers that may precede an amount.
const currency = `(?:₹|\brs\.?|\binr|\busd|\$)?`

// gap separates a label from its value without crossing a line break,
// so a label with no value never captures the next line.
const gap = `[^\S\n]*`

// DefaultPatterns returns the built-in candidate patterns, most specific first.
// Each pattern has exactly one capture group holding the raw field value.
// Patterns are always matched case-insensitively.
func DefaultPatterns() map[Field][]string {
	return map[Field][]string{
		FieldInvoiceNumber: {
			`invoice` + gap + `(?:number|num\b|no\b\.?|#)` + gap + `[:#\-]?` + gap + `([A-Z0-9][A-Z0-9\-/]*)`,
			`(?:bill|receipt|document)` + gap + `(?:number|num\b|no\b\.?|#)` + gap + `[:#\-]?` + gap + `([A-Z0-9][A-Z0-9\-/]*)`,
			`\b(INV[\-/]?[0-9][A-Z0-9\-/]*)`,
		},
		FieldDate: {
			`(?:invoice|issue|billing)[^\S\n]+date` + gap + `[:\-]?` + gap + `(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})`,
			`\bdate` + gap + `(?:of[^\S\n]+issue)?` + gap + `[:\-]?` + gap + `(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})`,
			`\bdate` + gap + `(?:of[^\S\n]+issue)?` + gap + `[:\-]?` + gap + `(\d{4}-\d{1,2}-\d{1,2})`,
			`\b(\d{1,2}/\d{1,2}/\d{4})\b`,
			`\b(\d{4}-\d{2}-\d{2})\b`,
		},
		FieldAmount: {
			`\b(?:grand[^\S\n]+)?total(?:[^\S\n]+amount)?(?:[^\S\n]+payable|[^\S\n]+due|[^\S\n]+fare)?` + gap + `[:\-]?` + gap + currency + gap + `([0-9][0-9,.]*)`,
			`\bamount(?:[^\S\n]+paid|[^\S\n]+payable|[^\S\n]+due)?` + gap + `[:\-]?` + gap + currency + gap + `([0-9][0-9,.]*)`,
			`(?:₹|\brs\.?|\binr)` + gap + `([0-9][0-9,.]*)`,
		},
		FieldTaxID: {
			`\bGSTIN` + gap + `(?:no\b\.?|number)?` + gap + `[:#\-]?` + gap + `([A-Z0-9]{15})\b`,
			`\bGST` + gap + `(?:registration` + gap + `)?(?:no\b\.?|number|#)` + gap + `[:#\-]?` + gap + `([A-Z0-9]{15})\b`,
			`\b(\d{2}[A-Z]{5}\d{4}[A-Z][A-Z0-9]Z[A-Z0-9])\b`,
		},
	}
}

// LoadPatterns reads a JSON object mapping field names to ordered pattern lists.
// Fields that are absent keep their default patterns.
func LoadPatterns(r io.Reader) (map[Field][]string, error) {
	var raw map[string][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding patterns: %w", err)
	}

	patterns := make(map[Field][]string, len(raw))
	for name, list := range raw {
		field := Field(strings.TrimSpace(name))
		if !knownField(field) {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		patterns[field] = list
	}
	return patterns, nil
}

func knownField(f Field) bool {
	for _, known := range fieldOrder {
		if f == known {
			return true
		}
	}
	return false
}

// compilePatterns merges overrides onto the defaults and compiles everything
func compilePatterns(overrides map[Field][]string) (map[Field][]*regexp.Regexp, error) {
	sources := DefaultPatterns()
	for field, list := range overrides {
		if !knownField(field) {
			return nil, &EngineFault{Field: string(field), Cause: fmt.Errorf("unknown field")}
		}
		sources[field] = list
	}

	compiled := make(map[Field][]*regexp.Regexp, len(sources))
	for _, field := range fieldOrder {
		for i, src := range sources[field] {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				return nil, &EngineFault{Field: string(field), Cause: fmt.Errorf("pattern %d: %w", i, err)}
			}
			if re.NumSubexp() < 1 {
				return nil, &EngineFault{Field: string(field), Cause: fmt.Errorf("pattern %d has no capture group", i)}
			}
			compiled[field] = append(compiled[field], re)
		}
	}
	return compiled, nil
}
