package extract

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"lexingest/internal/chunker"
)

// PDFExtractor reads the PDF text layer per page. When the library cannot
// read the file it optionally falls back to the pdftotext binary.
type PDFExtractor struct {
	FallbackPdftotext bool
}

func (p *PDFExtractor) Extract(r io.Reader, filename string) ([]chunker.TextBlock, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "lexingest-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	blocks, err := extractPDFBlocks(tmpPath)
	if err != nil && p.FallbackPdftotext {
		blocks, err = extractPdftotextBlocks(tmpPath)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return blocks, nil
}

func extractPDFBlocks(path string) ([]chunker.TextBlock, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []chunker.TextBlock
	order := 0
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		blocks = append(blocks, chunker.TextBlock{
			Text:   text,
			Page:   i,
			Order:  order,
			Source: "pdf",
		})
		order++
	}
	return blocks, nil
}

func extractPdftotextBlocks(path string) ([]chunker.TextBlock, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	// pdftotext separates pages with form feeds.
	var blocks []chunker.TextBlock
	order := 0
	for i, pageText := range strings.Split(string(out), "\f") {
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		blocks = append(blocks, chunker.TextBlock{
			Text:   pageText,
			Page:   i + 1,
			Order:  order,
			Source: "pdftotext",
		})
		order++
	}
	return blocks, nil
}
