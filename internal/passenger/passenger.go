package passenger

import (
	"fmt"
	"time"

	"github.com/zombor/invoice-tracker/internal/extraction"
)

// DownloadStatus is the outcome of document acquisition for a passenger
type DownloadStatus string

const (
	DownloadPending  DownloadStatus = "Pending"
	Downloaded       DownloadStatus = "Downloaded"
	DownloadNotFound DownloadStatus = "Not Found"
	DownloadError    DownloadStatus = "Error"
)

// ParseStatus is the outcome of invoice extraction for a passenger
type ParseStatus string

const (
	ParsePending ParseStatus = "Pending"
	Parsed       ParseStatus = "Parsed"
	ParseError   ParseStatus = "Error"
)

// Passenger represents a ticket holder tracked through acquisition and extraction
type Passenger struct {
	ID             int            `json:"id"`
	TicketNumber   string         `json:"ticket_number"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email"`
	DownloadStatus DownloadStatus `json:"download_status"`
	ParseStatus    ParseStatus    `json:"parse_status"`
	DocumentPath   string         `json:"pdf_path,omitempty"` // storage key of the acquired document
	ContentType    string         `json:"content_type,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SubjectID implements extraction.Subject
func (p *Passenger) SubjectID() int {
	return p.ID
}

// DocumentLocated implements extraction.Subject
func (p *Passenger) DocumentLocated() bool {
	return p.DownloadStatus == Downloaded && p.DocumentPath != ""
}

// BookingID is the display booking reference
func (p *Passenger) BookingID() string {
	return fmt.Sprintf("AI%06d", p.ID)
}

// FullName joins first and last name
func (p *Passenger) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Invoice is an extracted invoice record as stored
type Invoice struct {
	ID string `json:"id"`
	extraction.InvoiceRecord
	DocumentPath string    `json:"pdf_path,omitempty"`
	Reviewed     bool      `json:"reviewed"`
	CreatedAt    time.Time `json:"created_at"`
}
