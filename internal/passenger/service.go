package passenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

var (
	// ErrParseFailed is the generic failure returned when no invoice could be extracted
	ErrParseFailed = errors.New("failed to parse invoice")
	// ErrDocumentUnavailable is returned when a passenger has no downloaded document
	ErrDocumentUnavailable = errors.New("document not available")
)

// highValueThreshold is the amount above which an invoice counts as high value
var highValueThreshold = decimal.NewFromInt(20000)

// IDGenerator generates unique IDs for invoices
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Extractor derives an invoice record from document text
type Extractor interface {
	ExtractSubject(subject extraction.Subject, text string) (*extraction.InvoiceRecord, error)
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// AcquireOutcome is the result category of a document acquisition
type AcquireOutcome string

const (
	AcquireSuccess  AcquireOutcome = "success"
	AcquireNotFound AcquireOutcome = "not_found"
	AcquireError    AcquireOutcome = "error"
)

// AcquireResult describes what happened when acquiring a passenger's document
type AcquireResult struct {
	Status       AcquireOutcome `json:"status"`
	Message      string         `json:"message"`
	DocumentPath string         `json:"pdf_path,omitempty"`
}

// InvoiceView is an invoice joined with its passenger's name
type InvoiceView struct {
	*Invoice
	PassengerName string `json:"passenger_name"`
}

// Stats summarizes the workflow for the dashboard
type Stats struct {
	TotalDownloads string          `json:"total_downloads"`
	ParsedInvoices int             `json:"parsed_invoices"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	HighValue      int             `json:"high_value"`
}

// Service runs the acquisition and extraction workflow
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	source      DocumentSource
	extractor   Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, source DocumentSource, extractor Extractor) *Service {
	return NewServiceWithDeps(db, scanner, storage, source, extractor, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, source DocumentSource, extractor Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		source:      source,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Bootstrap imports roster entries when there are no passengers yet.
// It returns the number of passengers created.
func (s *Service) Bootstrap(entries []RosterEntry) (int, error) {
	count, err := s.db.CountPassengers()
	if err != nil {
		return 0, fmt.Errorf("counting passengers: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	now := s.timeSource.Now()
	for i, entry := range entries {
		passenger := &Passenger{
			TicketNumber:   entry.TicketNumber,
			FirstName:      entry.FirstName,
			LastName:       entry.LastName,
			Email:          entry.Email,
			DownloadStatus: DownloadPending,
			ParseStatus:    ParsePending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.db.CreatePassenger(passenger); err != nil {
			return i, fmt.Errorf("creating passenger %s: %w", entry.TicketNumber, err)
		}
	}
	return len(entries), nil
}

// GetPassenger retrieves a passenger by ID
func (s *Service) GetPassenger(id int) (*Passenger, error) {
	passenger, err := s.db.GetPassenger(id)
	if err != nil {
		return nil, fmt.Errorf("getting passenger: %w", err)
	}
	return passenger, nil
}

// ListPassengers returns all passengers
func (s *Service) ListPassengers() ([]*Passenger, error) {
	passengers, err := s.db.ListPassengers()
	if err != nil {
		return nil, fmt.Errorf("listing passengers: %w", err)
	}
	return passengers, nil
}

// ListInvoices returns all invoices with passenger names
func (s *Service) ListInvoices() ([]*InvoiceView, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	names := make(map[int]string)
	views := make([]*InvoiceView, 0, len(invoices))
	for _, invoice := range invoices {
		name, ok := names[invoice.SubjectID]
		if !ok {
			passenger, err := s.db.GetPassenger(invoice.SubjectID)
			if err != nil {
				return nil, fmt.Errorf("getting passenger %d for invoice %s: %w", invoice.SubjectID, invoice.ID, err)
			}
			name = passenger.FullName()
			names[invoice.SubjectID] = name
		}
		views = append(views, &InvoiceView{Invoice: invoice, PassengerName: name})
	}
	return views, nil
}

// AcquireDocument fetches a passenger's invoice document and records the outcome.
// Not-found and fetch failures are outcomes, not errors; errors are reserved for
// unknown passengers and repository failures.
func (s *Service) AcquireDocument(ctx context.Context, id int) (*AcquireResult, error) {
	passenger, err := s.db.GetPassenger(id)
	if err != nil {
		return nil, fmt.Errorf("getting passenger: %w", err)
	}

	doc, err := s.source.Fetch(ctx, passenger)
	if errors.Is(err, ErrDocumentNotFound) {
		if err := s.setDownloadStatus(id, DownloadNotFound, "", ""); err != nil {
			return nil, err
		}
		return &AcquireResult{Status: AcquireNotFound, Message: "Invoice not found for this passenger"}, nil
	}
	if err != nil {
		slog.Error("Failed to fetch document", "passenger_id", id, "ticket_number", passenger.TicketNumber, "error", err)
		if err := s.setDownloadStatus(id, DownloadError, "", ""); err != nil {
			return nil, err
		}
		return &AcquireResult{Status: AcquireError, Message: "Failed to download invoice"}, nil
	}

	savedPath, err := s.storage.Save(fmt.Sprintf("invoice_%d%s", id, strings.ToLower(filepath.Ext(doc.Filename))), doc.Data)
	if err != nil {
		slog.Error("Failed to store document", "passenger_id", id, "filename", doc.Filename, "error", err)
		if err := s.setDownloadStatus(id, DownloadError, "", ""); err != nil {
			return nil, err
		}
		return &AcquireResult{Status: AcquireError, Message: "Failed to download invoice"}, nil
	}

	if err := s.setDownloadStatus(id, Downloaded, savedPath, doc.ContentType); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Error("Failed to remove stored document", "passenger_id", id, "path", savedPath, "error", delErr)
		}
		return nil, err
	}

	slog.Info("Document acquired", "passenger_id", id, "path", savedPath, "content_type", doc.ContentType, "size", len(doc.Data))
	return &AcquireResult{Status: AcquireSuccess, Message: "Invoice downloaded successfully", DocumentPath: savedPath}, nil
}

func (s *Service) setDownloadStatus(id int, status DownloadStatus, path, contentType string) error {
	now := s.timeSource.Now()
	err := s.db.UpdatePassenger(id, func(p *Passenger) error {
		p.DownloadStatus = status
		p.DocumentPath = path
		p.ContentType = contentType
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating download status: %w", err)
	}
	return nil
}

// ParseInvoice recovers the text of a passenger's document, extracts an
// invoice from it and stores the result. Any failure after the input
// checks marks the passenger's parse status as Error and is reported as
// ErrParseFailed.
func (s *Service) ParseInvoice(id int) (*Invoice, error) {
	passenger, err := s.db.GetPassenger(id)
	if err != nil {
		return nil, fmt.Errorf("getting passenger: %w", err)
	}
	if !passenger.DocumentLocated() {
		return nil, &extraction.InputStateError{
			SubjectID: id,
			Reason:    fmt.Sprintf("download status is %q", passenger.DownloadStatus),
		}
	}

	data, err := s.storage.Get(passenger.DocumentPath)
	if err != nil {
		return nil, s.parseFailed(id, "reading document", err)
	}

	// A document without recoverable text still yields a record built from defaults
	text, err := s.scanner.ScanText(data, passenger.ContentType)
	if errors.Is(err, scanning.ErrNoText) {
		slog.Warn("No text recovered from document", "passenger_id", id, "content_type", passenger.ContentType)
		text, err = "", nil
	}
	if err != nil {
		return nil, s.parseFailed(id, "recovering text", err)
	}

	record, err := s.extractor.ExtractSubject(passenger, text)
	if errors.Is(err, extraction.ErrInputState) {
		return nil, err
	}
	if err != nil {
		return nil, s.parseFailed(id, "extracting fields", err)
	}

	invoice := &Invoice{
		ID:            s.idGenerator.Generate(),
		InvoiceRecord: *record,
		DocumentPath:  passenger.DocumentPath,
		CreatedAt:     s.timeSource.Now(),
	}
	if err := s.db.AppendInvoice(invoice); err != nil {
		return nil, fmt.Errorf("saving invoice: %w", err)
	}

	slog.Info("Invoice parsed",
		"passenger_id", id,
		"invoice_id", invoice.ID,
		"invoice_number", invoice.InvoiceNumber,
		"amount", invoice.Amount.String(),
	)
	return invoice, nil
}

// parseFailed records the failure and returns the generic parse error
func (s *Service) parseFailed(id int, step string, cause error) error {
	slog.Error("Failed to parse invoice", "passenger_id", id, "step", step, "error", cause)

	now := s.timeSource.Now()
	err := s.db.UpdatePassenger(id, func(p *Passenger) error {
		p.ParseStatus = ParseError
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating parse status: %w", err)
	}
	return fmt.Errorf("%w: %s: %w", ErrParseFailed, step, cause)
}

// GetDocument returns a passenger's downloaded document and its content type
func (s *Service) GetDocument(id int) ([]byte, string, error) {
	passenger, err := s.db.GetPassenger(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting passenger: %w", err)
	}
	if !passenger.DocumentLocated() {
		return nil, "", fmt.Errorf("%w: passenger %d", ErrDocumentUnavailable, id)
	}

	data, err := s.storage.Get(passenger.DocumentPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}
	return data, passenger.ContentType, nil
}

// SetReviewed flags or unflags an invoice for review.
// An invoice already carrying the flag is left untouched.
func (s *Service) SetReviewed(invoiceID string, reviewed bool) error {
	invoice, err := s.db.GetInvoice(invoiceID)
	if err != nil {
		return fmt.Errorf("getting invoice: %w", err)
	}
	if invoice.Reviewed == reviewed {
		return nil
	}

	err = s.db.UpdateInvoice(invoiceID, func(invoice *Invoice) error {
		invoice.Reviewed = reviewed
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating invoice: %w", err)
	}
	return nil
}

// Stats summarizes downloads and parsed invoices
func (s *Service) Stats() (*Stats, error) {
	passengers, err := s.db.ListPassengers()
	if err != nil {
		return nil, fmt.Errorf("listing passengers: %w", err)
	}
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	var downloaded int
	for _, p := range passengers {
		if p.DownloadStatus == Downloaded {
			downloaded++
		}
	}

	stats := &Stats{
		TotalDownloads: fmt.Sprintf("%d/%d", downloaded, len(passengers)),
		TotalAmount:    decimal.Zero,
	}
	for _, invoice := range invoices {
		if invoice.Status != extraction.StatusParsed {
			continue
		}
		stats.ParsedInvoices++
		stats.TotalAmount = stats.TotalAmount.Add(invoice.Amount)
		if invoice.Amount.GreaterThan(highValueThreshold) {
			stats.HighValue++
		}
	}
	return stats, nil
}
