package passenger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrDocumentNotFound is returned by a DocumentSource that has no document for a passenger
var ErrDocumentNotFound = errors.New("document not found")

// Document is an acquired invoice document
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DocumentSource locates invoice documents for passengers
type DocumentSource interface {
	Fetch(ctx context.Context, passenger *Passenger) (*Document, error)
}

// documentTypes lists the accepted document extensions in lookup order
var documentTypes = []struct {
	ext         string
	contentType string
}{
	{".pdf", "application/pdf"},
	{".txt", "text/plain"},
	{".png", "image/png"},
	{".jpg", "image/jpeg"},
	{".jpeg", "image/jpeg"},
	{".heic", "image/heic"},
}

// DirectorySource finds documents named after the ticket number in an inbox directory,
// e.g. <inbox>/0987654321.pdf
type DirectorySource struct {
	dir string
}

// NewDirectorySource creates a DirectorySource reading from dir
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir}
}

// Fetch returns the first document matching the passenger's ticket number
func (d *DirectorySource) Fetch(ctx context.Context, passenger *Passenger) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ticket := strings.TrimSpace(passenger.TicketNumber)
	if ticket == "" || filepath.Base(ticket) != ticket || strings.HasPrefix(ticket, ".") {
		return nil, fmt.Errorf("invalid ticket number %q", passenger.TicketNumber)
	}

	for _, t := range documentTypes {
		filename := ticket + t.ext
		data, err := os.ReadFile(filepath.Join(d.dir, filename))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filename, err)
		}
		return &Document{Filename: filename, ContentType: t.contentType, Data: data}, nil
	}

	return nil, fmt.Errorf("%w: ticket %s", ErrDocumentNotFound, ticket)
}
