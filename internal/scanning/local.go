package scanning

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
)

// Local recovers text without any remote service: plain text is passed
// through and PDFs are read from their text layer. Documents without a text
// layer go to the fallback scanner when one is configured.
type Local struct {
	fallback Scanner
}

// NewLocal creates a Local scanner. fallback may be nil.
func NewLocal(fallback Scanner) *Local {
	return &Local{fallback: fallback}
}

// ScanText recovers the text of a document
func (l *Local) ScanText(data []byte, contentType string) (string, error) {
	mimeType := normalizeMimeType(contentType)

	switch {
	case mimeType == "text/plain":
		return plainText(data)
	case mimeType == "application/pdf":
		text, err := pdfText(data)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
		slog.Debug("PDF has no text layer", "size", len(data), "fallback", l.fallback != nil)
		return l.scanFallback(data, mimeType)
	case strings.HasPrefix(mimeType, "image/") || isHEICFormat(data):
		return l.scanFallback(data, mimeType)
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
}

func (l *Local) scanFallback(data []byte, mimeType string) (string, error) {
	if l.fallback == nil {
		return "", ErrNoText
	}
	return l.fallback.ScanText(data, mimeType)
}

// Close closes the fallback scanner
func (l *Local) Close() error {
	if l.fallback != nil {
		return l.fallback.Close()
	}
	return nil
}

// plainText validates a text surrogate document
func plainText(data []byte) (string, error) {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text document is not valid UTF-8")
	}
	return string(data), nil
}

// pdfText joins the text layer of every page
func pdfText(pdfData []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("reading text of page %d: %w", n+1, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// normalizeMimeType lowercases a content type and drops its parameters
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
