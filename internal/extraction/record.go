package extraction

import "github.com/shopspring/decimal"

// Status is the outcome stored on an extracted record
type Status string

const (
	// StatusParsed is the only status a record can carry; failures never produce a record
	StatusParsed Status = "Parsed"
)

// DefaultAirline is used for every record. Airline names are not read from the text.
const DefaultAirline = "Thai Airways"

// InvoiceRecord holds the fields derived from one invoice document
type InvoiceRecord struct {
	SubjectID     int             `json:"subject_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Date          string          `json:"date"`
	Airline       string          `json:"airline"`
	Amount        decimal.Decimal `json:"amount"`
	TaxID         string          `json:"tax_id"`
	Status        Status          `json:"status"`
}

// Subject is anything the extractor can be run for
type Subject interface {
	SubjectID() int
	// DocumentLocated reports whether the upstream acquisition step found a document
	DocumentLocated() bool
}
