package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var wsRunRe = regexp.MustCompile(`\s+`)

// normalizeBoundaryLine lowercases and whitespace-collapses a candidate
// line so the same header survives minor extraction jitter across pages.
func normalizeBoundaryLine(s string) string {
	return wsRunRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// removeRepeatingBoundaries strips running headers and footers: short lines
// near page boundaries that repeat on at least BoundaryRepeatRatio of pages.
// Two passes: a per-page candidate frequency map, then a global filter.
// Documents under BoundaryMinPages pages are returned untouched.
func removeRepeatingBoundaries(blocks []TextBlock, cfg Config) []TextBlock {
	if len(blocks) == 0 {
		return blocks
	}

	pages := make(map[int][]TextBlock)
	for _, b := range blocks {
		pages[b.Page] = append(pages[b.Page], b)
	}
	if len(pages) < cfg.BoundaryMinPages {
		return blocks
	}

	counts := make(map[string]int)
	for _, pageBlocks := range pages {
		sorted := append([]TextBlock(nil), pageBlocks...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

		// First two and last two blocks on the page are the candidates.
		candidates := sorted
		if len(sorted) > 4 {
			candidates = append(append([]TextBlock(nil), sorted[:2]...), sorted[len(sorted)-2:]...)
		}

		seenOnPage := make(map[string]bool)
		for _, b := range candidates {
			norm := normalizeBoundaryLine(b.Text)
			if utf8.RuneCountInString(norm) < cfg.BoundaryMaxLen && !seenOnPage[norm] {
				seenOnPage[norm] = true
				counts[norm]++
			}
		}
	}

	threshold := float64(len(pages)) * cfg.BoundaryRepeatRatio
	repeating := make(map[string]bool)
	for line, n := range counts {
		if float64(n) >= threshold {
			repeating[line] = true
		}
	}
	if len(repeating) == 0 {
		return blocks
	}

	// A matching block is removed everywhere, not just at page boundaries.
	out := make([]TextBlock, 0, len(blocks))
	for _, b := range blocks {
		if !repeating[normalizeBoundaryLine(b.Text)] {
			out = append(out, b)
		}
	}
	return out
}
