// Package extract converts uploaded documents into the ordered TextBlock
// sequence the chunker consumes. Each format produces blocks with a page
// number, a document-wide monotonic order, and a source tag.
package extract

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"lexingest/internal/chunker"
)

// Extractor converts raw document bytes into ordered text blocks.
type Extractor interface {
	Extract(r io.Reader, filename string) ([]chunker.TextBlock, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".html": true,
	".htm":  true,
	".pdf":  true,
	".docx": true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".csv":
		return &CSVExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DetectLanguage reports "tj" when Tajik-specific Cyrillic letters are
// present, "ru" otherwise.
func DetectLanguage(text string) string {
	if strings.ContainsAny(strings.ToLower(text), "ӯқҳҷғӣ") {
		return "tj"
	}
	return "ru"
}
