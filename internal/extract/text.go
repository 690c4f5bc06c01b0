package extract

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"lexingest/internal/chunker"
)

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// TextExtractor splits plain text on blank lines, one block per paragraph.
type TextExtractor struct{}

func (p *TextExtractor) Extract(r io.Reader, filename string) ([]chunker.TextBlock, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return textToBlocks(string(data), "txt"), nil
}

func textToBlocks(text, source string) []chunker.TextBlock {
	var blocks []chunker.TextBlock
	order := 0
	for _, part := range blankLineRe.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		blocks = append(blocks, chunker.TextBlock{
			Text:   part,
			Page:   1,
			Order:  order,
			Source: source,
		})
		order++
	}
	return blocks
}
