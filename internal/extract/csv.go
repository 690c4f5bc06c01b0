package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"lexingest/internal/chunker"
)

// csvBatchSize caps rows per block so wide tables still pack into
// bounded chunks.
const csvBatchSize = 20

// CSVExtractor renders CSV rows as tab-separated lines, batched, with
// the header row repeated at the top of each batch.
type CSVExtractor struct{}

func (p *CSVExtractor) Extract(r io.Reader, filename string) ([]chunker.TextBlock, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := strings.Join(records[0], "\t")
	dataRows := records[1:]

	var blocks []chunker.TextBlock
	order := 0
	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := i + csvBatchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}

		var text strings.Builder
		text.WriteString(header)
		for _, row := range dataRows[i:end] {
			text.WriteString("\n")
			text.WriteString(strings.Join(row, "\t"))
		}

		blocks = append(blocks, chunker.TextBlock{
			Text:   text.String(),
			Page:   1,
			Order:  order,
			Source: "csv",
		})
		order++
	}
	return blocks, nil
}
