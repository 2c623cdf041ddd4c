package scanning

import "errors"

// ErrNoText is returned when a document has no recoverable text
var ErrNoText = errors.New("no text recovered from document")

// Scanner defines the interface for document text recovery
type Scanner interface {
	// ScanText recovers the text content of an invoice document
	ScanText(data []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}
