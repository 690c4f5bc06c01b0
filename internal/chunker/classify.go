package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strong heading patterns for Russian/Tajik legal structure:
// "СТАТЬЯ 12", "Глава 3", "БОБИ 5", "1.2.3 Заголовок", "IV. Заголовок".
// Order matters only relative to the other classifiers; within the list any
// match means heading.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:СТАТЬЯ|ГЛАВА|РАЗДЕЛ|БОБИ|МОДДАИ)\s+\d+`),
	regexp.MustCompile(`^\d+(?:\.\d+)+\s+\S+`),
	regexp.MustCompile(`^[IVXLCDM]+\.\s+\S+`),
}

// Bullet, numbered (1. / 1)) and lettered (а. / a)) list markers.
var listItemRe = regexp.MustCompile(`(?i)^(?:[-–—•]\s+|\d+[.)]\s+|[a-zа-яёӯқҳҷғ][.)]\s+)`)

// Pipe- or tab-delimited line with at least two separators.
var tableLineRe = regexp.MustCompile(`(?:\|.*){2,}|(?:\t\S+){2,}`)

// classifyKind tags a sub-paragraph with its structural kind. The rules are
// a fixed ordered list with first-match-wins semantics: table_like,
// list_item, heading (strong patterns, then the weak uppercase heuristic),
// paragraph.
func classifyKind(text string) Kind {
	stripped := strings.TrimSpace(text)
	lines := strings.Split(stripped, "\n")

	if len(lines) >= 2 {
		tabular := 0
		for _, l := range lines {
			if tableLineRe.MatchString(l) {
				tabular++
			}
		}
		if tabular >= 2 {
			return KindTableLike
		}
	}

	first := strings.TrimSpace(lines[0])

	if listItemRe.MatchString(first) {
		return KindListItem
	}

	for _, p := range headingPatterns {
		if p.MatchString(first) {
			return KindHeading
		}
	}

	if isWeakHeading(lines, first) {
		return KindHeading
	}

	return KindParagraph
}

// isWeakHeading catches headings the strong patterns miss: a short,
// fully-uppercase line without a trailing period.
func isWeakHeading(lines []string, first string) bool {
	if len(lines) > 2 {
		return false
	}
	n := utf8.RuneCountInString(first)
	if n <= 3 || n > 80 {
		return false
	}
	if strings.HasSuffix(first, ".") {
		return false
	}
	if first != strings.ToUpper(first) {
		return false
	}
	for _, r := range first {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

var (
	topHeadingRe     = regexp.MustCompile(`^(?:ГЛАВА|РАЗДЕЛ|БОБИ)\s+\d+`)
	articleHeadingRe = regexp.MustCompile(`^(?:СТАТЬЯ|МОДДАИ)\s+\d+`)
	dottedPrefixRe   = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+`)
)

// headingLevel derives the nesting level used by the section tracker:
// chapter/part keywords → 0, article keywords → 1, a dotted numeric prefix
// → its dot count, anything else → 2.
func headingLevel(heading string) int {
	h := strings.ToUpper(strings.TrimSpace(heading))
	if topHeadingRe.MatchString(h) {
		return 0
	}
	if articleHeadingRe.MatchString(h) {
		return 1
	}
	if m := dottedPrefixRe.FindStringSubmatch(h); m != nil {
		return strings.Count(m[1], ".")
	}
	return 2
}
