package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Clock provides the processing time used for synthesized defaults
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// taxIDShape is the positional shape every tax id must have
var taxIDShape = regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z][A-Z0-9]Z[A-Z0-9]$`)

// Extractor derives invoice records from document text.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	patterns map[Field][]*regexp.Regexp
	clock    Clock
}

// NewExtractor compiles the default patterns, with any per-field overrides applied.
// A malformed pattern is reported as an *EngineFault.
func NewExtractor(overrides map[Field][]string) (*Extractor, error) {
	return NewExtractorWithClock(overrides, systemClock{})
}

// NewExtractorWithClock is NewExtractor with a custom processing clock
func NewExtractorWithClock(overrides map[Field][]string, clock Clock) (*Extractor, error) {
	patterns, err := compilePatterns(overrides)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Extractor{patterns: patterns, clock: clock}, nil
}

// ExtractSubject runs Extract for a subject, refusing subjects without a located document
func (e *Extractor) ExtractSubject(subject Subject, text string) (*InvoiceRecord, error) {
	if !subject.DocumentLocated() {
		return nil, &InputStateError{SubjectID: subject.SubjectID(), Reason: "document not located"}
	}
	return e.Extract(text, subject.SubjectID())
}

// Extract builds an invoice record from text. Every field that cannot be
// recovered from the text gets a synthesized default, so the only failure
// is an *EngineFault raised while scanning.
func (e *Extractor) Extract(text string, subjectID int) (record *InvoiceRecord, err error) {
	if subjectID < 0 {
		return nil, &InputStateError{SubjectID: subjectID, Reason: "negative subject id"}
	}

	var field Field
	defer func() {
		if r := recover(); r != nil {
			record = nil
			err = &EngineFault{Field: string(field), Cause: fmt.Errorf("%v", r)}
		}
	}()

	now := e.clock.Now()
	record = &InvoiceRecord{
		SubjectID: subjectID,
		Airline:   DefaultAirline,
		Status:    StatusParsed,
	}

	field = FieldInvoiceNumber
	if v, ok := firstMatch(e.patterns[field], text, acceptNonEmpty); ok {
		record.InvoiceNumber = v
	} else {
		record.InvoiceNumber = SynthesizeInvoiceNumber(subjectID, now)
	}

	field = FieldDate
	if v, ok := firstMatch(e.patterns[field], text, acceptNonEmpty); ok {
		record.Date = v
	} else {
		record.Date = SynthesizeDate(now)
	}

	field = FieldAmount
	// A zero amount is the empty value: it wins the match but is replaced by the default
	if v, ok := firstMatch(e.patterns[field], text, parseAmount); ok && !v.IsZero() {
		record.Amount = v
	} else {
		record.Amount = SynthesizeAmount(subjectID)
	}

	field = FieldTaxID
	if v, ok := firstMatch(e.patterns[field], text, acceptTaxID); ok {
		record.TaxID = v
	} else {
		record.TaxID = SynthesizeTaxID(subjectID)
	}

	return record, nil
}

// firstMatch returns the value of the first pattern whose capture is accepted.
// A rejected capture moves on to the next pattern.
func firstMatch[T any](patterns []*regexp.Regexp, text string, accept func(string) (T, bool)) (T, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v, ok := accept(m[1]); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func acceptNonEmpty(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	return v, v != ""
}

// parseAmount strips grouping separators and parses the rest as a decimal.
// Only unparsable captures are rejected.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func acceptTaxID(raw string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	return v, taxIDShape.MatchString(v)
}

// ValidTaxID reports whether s has the 15 character tax id shape
func ValidTaxID(s string) bool {
	return taxIDShape.MatchString(s)
}
