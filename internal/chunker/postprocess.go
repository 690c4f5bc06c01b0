package chunker

import "strings"

// mergeUndersized folds chunks below MinTokens into their predecessor when
// the combined size stays within MaxTokens. A chunk whose text begins with a
// strong heading pattern is never absorbed, so legal sections stay
// individually addressable.
func mergeUndersized(chunks []ChunkResult, cfg Config) []ChunkResult {
	if len(chunks) <= 1 {
		return chunks
	}

	merged := make([]ChunkResult, 0, len(chunks))
	merged = append(merged, chunks[0])

	for _, c := range chunks[1:] {
		prev := &merged[len(merged)-1]
		curTokens := EstimateTokens(c.Text, cfg.CharsPerToken)
		combined := prev.Text + "\n\n" + c.Text

		if curTokens < cfg.MinTokens &&
			EstimateTokens(combined, cfg.CharsPerToken) <= cfg.MaxTokens &&
			!startsWithHeading(c.Text) {
			prev.Text = combined
			if c.PageEnd > prev.PageEnd {
				prev.PageEnd = c.PageEnd
			}
			// Keep the more specific section path.
			if len(c.SectionPath) > len(prev.SectionPath) {
				prev.SectionPath = c.SectionPath
			}
			continue
		}
		merged = append(merged, c)
	}

	return merged
}

func startsWithHeading(text string) bool {
	first := firstLine(text)
	for _, p := range headingPatterns {
		if p.MatchString(first) {
			return true
		}
	}
	return false
}

// injectOverlap prepends the word-aligned tail of the previous chunk to each
// chunk after the first, marked with a leading ellipsis. Page ranges and
// section paths are untouched; the addition is purely textual.
func injectOverlap(chunks []ChunkResult, cfg Config) []ChunkResult {
	if len(chunks) <= 1 || cfg.OverlapTokens <= 0 {
		return chunks
	}

	overlapChars := int(float64(cfg.OverlapTokens) * cfg.CharsPerToken)
	for i := 1; i < len(chunks); i++ {
		prevRunes := []rune(chunks[i-1].Text)
		if len(prevRunes) <= overlapChars {
			continue
		}
		tail := string(prevRunes[len(prevRunes)-overlapChars:])
		// Trim back to the nearest word boundary.
		if idx := strings.Index(tail, " "); idx > 0 {
			tail = tail[idx+1:]
		}
		chunks[i].Text = "..." + tail + "\n\n" + chunks[i].Text
	}
	return chunks
}
