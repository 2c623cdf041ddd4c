package extraction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder constants for synthesized values. They carry no business meaning.
var (
	baseFare         = decimal.NewFromInt(15000)
	perSubjectFare   = decimal.NewFromInt(1000)
	taxIDPrefix      = "29ABCDE"
	taxIDSuffix      = "F1ZX"
	synthesizedDates = "01/02/2006"
)

// SynthesizeInvoiceNumber builds INV-<year>-<subject id, 3 digits>
func SynthesizeInvoiceNumber(subjectID int, now time.Time) string {
	return fmt.Sprintf("INV-%d-%03d", now.Year(), subjectID)
}

// SynthesizeDate formats the processing date as MM/DD/YYYY
func SynthesizeDate(now time.Time) string {
	return now.Format(synthesizedDates)
}

// SynthesizeAmount is the base fare plus a per-subject increment
func SynthesizeAmount(subjectID int) decimal.Decimal {
	return baseFare.Add(perSubjectFare.Mul(decimal.NewFromInt(int64(subjectID))))
}

// SynthesizeTaxID embeds the subject id in a fixed tax id.
// Only the last four digits of the id fit the shape.
func SynthesizeTaxID(subjectID int) string {
	return fmt.Sprintf("%s%04d%s", taxIDPrefix, subjectID%10000, taxIDSuffix)
}
