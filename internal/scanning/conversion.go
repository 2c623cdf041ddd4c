package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// transcribePrompt is the shared prompt used by all LLM providers for transcribing invoices
const transcribePrompt = `You are reading an airline e-ticket invoice. Transcribe every piece of text in the image exactly as printed, line by line, top to bottom.

Important:
- Keep labels and values together on the same line, e.g. "Invoice No: INV-2024-001"
- Keep numbers, currency symbols, dates and tax identifiers (GSTIN) exactly as printed
- Do not summarize, translate, correct or reformat anything
- Do not add any commentary before or after the text
- Do not use markdown code blocks`

// maxTranscribedPages bounds how many PDF pages are rendered for transcription
const maxTranscribedPages = 2

// pdfToImages renders the first pages of a PDF as PNG images
func pdfToImages(pdfData []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := min(doc.NumPage(), maxTranscribedPages)
	if pages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	images := make([][]byte, 0, pages)
	for n := 0; n < pages; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", n+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding PNG: %w", err)
		}
		images = append(images, buf.Bytes())
	}

	return images, nil
}

// imageToPNG converts any image format to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's standard image package doesn't support HEIC, which is what phones produce
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// by looking for an ftyp box with a HEIC brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = normalizeMimeType(mimeType)
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// preparePages turns a PDF or image document into PNG pages for transcription
func preparePages(data []byte, contentType string) ([][]byte, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	switch {
	case mimeType == "application/pdf":
		pages, err := pdfToImages(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to images: %w", err)
		}
		return pages, nil
	case mimeType == "image/png" && !isHEICFormat(data):
		return [][]byte{data}, nil
	default:
		pngData, err := imageToPNG(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return [][]byte{pngData}, nil
	}
}

// cleanTranscript strips markdown fences and surrounding whitespace from an LLM transcription
func cleanTranscript(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
