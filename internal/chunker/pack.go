package chunker

import (
	"strings"
	"unicode"
)

// packUnits merges units into chunks in a single left-to-right pass.
// Boundary priorities, highest first: heading (always opens a new chunk),
// oversized-unit splitting, the MaxTokens ceiling, and a proactive flush
// once TargetTokens is reached on a heading/paragraph boundary. When the
// buffer is still below MinTokens, an overflowing unit passes through
// without a flush, a deliberate soft tolerance on the ceiling.
func packUnits(units []Unit, cfg Config) []ChunkResult {
	if len(units) == 0 {
		return nil
	}

	var chunks []ChunkResult
	var curTexts []string
	curTokens := 0
	curPageStart := units[0].PageStart
	curPageEnd := units[0].PageEnd
	curSection := units[0].SectionPath

	flush := func() {
		if len(curTexts) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(curTexts, "\n\n"))
		if text != "" {
			chunks = append(chunks, ChunkResult{
				Text:        text,
				PageStart:   curPageStart,
				PageEnd:     curPageEnd,
				SectionPath: append([]string(nil), curSection...),
			})
		}
		curTexts = nil
		curTokens = 0
	}
	restartAt := func(u Unit) {
		curPageStart = u.PageStart
		curPageEnd = u.PageEnd
		curSection = u.SectionPath
	}

	for _, u := range units {
		unitTokens := EstimateTokens(u.Text, cfg.CharsPerToken)

		if u.Kind == KindHeading && len(curTexts) > 0 {
			flush()
			restartAt(u)
		}

		// A unit larger than any single chunk is split at sentence
		// boundaries and fed in piecewise.
		if unitTokens > cfg.MaxTokens {
			if len(curTexts) > 0 {
				flush()
				restartAt(u)
			}
			for _, piece := range splitOversized(u.Text, cfg) {
				pieceTokens := EstimateTokens(piece, cfg.CharsPerToken)
				if curTokens+pieceTokens > cfg.MaxTokens && len(curTexts) > 0 && curTokens >= cfg.MinTokens {
					flush()
					restartAt(u)
				}
				curTexts = append(curTexts, piece)
				curTokens += pieceTokens
				curPageEnd = u.PageEnd
			}
			continue
		}

		if curTokens+unitTokens > cfg.MaxTokens && len(curTexts) > 0 && curTokens >= cfg.MinTokens {
			flush()
			restartAt(u)
		}

		// Near the target, flush on a clean boundary rather than riding up
		// to the ceiling. List items keep accumulating so a list is not
		// split mid-sequence.
		if curTokens >= cfg.TargetTokens && len(curTexts) > 0 &&
			(u.Kind == KindHeading || u.Kind == KindParagraph) {
			flush()
			restartAt(u)
		}

		curTexts = append(curTexts, u.Text)
		curTokens += unitTokens
		curPageEnd = u.PageEnd
		if len(curSection) == 0 {
			curSection = u.SectionPath
		}
	}

	flush()
	return chunks
}

// splitOversized breaks text into pieces that fit MaxTokens: first at
// sentence boundaries, then by hard rune slicing when a single sentence is
// itself oversized.
func splitOversized(text string, cfg Config) []string {
	maxChars := int(float64(cfg.MaxTokens) * cfg.CharsPerToken)
	sentences := splitSentences(text)
	if len(sentences) <= 1 && EstimateTokens(text, cfg.CharsPerToken) > cfg.MaxTokens {
		return sliceByRunes(text, maxChars)
	}

	var result []string
	current := ""
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		candidate := sentence
		if current != "" {
			candidate = current + " " + sentence
		}
		if EstimateTokens(candidate, cfg.CharsPerToken) > cfg.MaxTokens {
			if current != "" {
				result = append(result, current)
			}
			if EstimateTokens(sentence, cfg.CharsPerToken) > cfg.MaxTokens {
				result = append(result, sliceByRunes(sentence, maxChars)...)
				current = ""
			} else {
				current = sentence
			}
		} else {
			current = candidate
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}

// splitSentences splits after terminal punctuation followed by whitespace.
// A rune scan instead of a regexp: Go's regexp has no lookbehind.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if isSentenceEnd(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '։'
}

func sliceByRunes(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+maxChars-1)/maxChars)
	for i := 0; i < len(runes); i += maxChars {
		end := min(i+maxChars, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}
