package chunker

import (
	"regexp"
	"strings"
)

var paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)

// blocksToUnits splits each block into sub-paragraphs on blank-line
// boundaries, classifies every sub-paragraph, and attaches a snapshot of the
// live heading stack. Order is renumbered densely over the resulting
// sequence; relative order is preserved.
func blocksToUnits(blocks []TextBlock) []Unit {
	var subBlocks []TextBlock
	order := 0
	for _, b := range blocks {
		for _, para := range paragraphSplitRe.Split(b.Text, -1) {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			sb := b
			sb.Text = para
			sb.Order = order
			subBlocks = append(subBlocks, sb)
			order++
		}
	}

	units := make([]Unit, 0, len(subBlocks))
	var sectionStack []string

	for _, sb := range subBlocks {
		kind := classifyKind(sb.Text)

		if kind == KindHeading {
			headingText := firstLine(sb.Text)
			level := headingLevel(headingText)
			// Truncate to the heading's level, then push.
			if level < len(sectionStack) {
				sectionStack = sectionStack[:level]
			}
			sectionStack = append(sectionStack, headingText)
		}

		units = append(units, Unit{
			Text:        sb.Text,
			Kind:        kind,
			PageStart:   sb.Page,
			PageEnd:     sb.Page,
			Order:       sb.Order,
			SectionPath: append([]string(nil), sectionStack...),
		})
	}

	return units
}

func firstLine(text string) string {
	return strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
}
