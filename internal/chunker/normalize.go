package chunker

import (
	"regexp"
	"strings"
)

var (
	// "нало-\n гоплательщик" → "налогоплательщик"
	hyphenBreakRe = regexp.MustCompile(`-\s*\n\s*`)
	hspaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	pageNumberRe  = regexp.MustCompile(`^\s*\d{1,4}\s*$`)
)

// NormalizeBlocks canonicalizes each block's text: line endings unified,
// hyphenation breaks joined, whitespace and blank-line runs collapsed,
// standalone page-number lines dropped. The transform is idempotent.
func NormalizeBlocks(blocks []TextBlock) []TextBlock {
	out := make([]TextBlock, 0, len(blocks))
	for _, b := range blocks {
		text := strings.ReplaceAll(b.Text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
		text = hyphenBreakRe.ReplaceAllString(text, "")
		text = hspaceRunRe.ReplaceAllString(text, " ")
		text = blankRunRe.ReplaceAllString(text, "\n\n")
		text = strings.TrimSpace(text)
		if text == "" || pageNumberRe.MatchString(text) {
			continue
		}
		nb := b
		nb.Text = text
		out = append(out, nb)
	}
	return out
}
