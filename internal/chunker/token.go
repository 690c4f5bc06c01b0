package chunker

import "unicode/utf8"

// EstimateTokens approximates a token count from rune length. Counting runes
// rather than bytes keeps the chars-per-token factor meaningful for Cyrillic
// text. Exact tokenization is intentionally out of scope; any monotonic
// length proxy works as long as the limits are calibrated to it.
func EstimateTokens(text string, charsPerToken float64) int {
	if charsPerToken <= 0 {
		charsPerToken = DefaultConfig().CharsPerToken
	}
	n := int(float64(utf8.RuneCountInString(text)) / charsPerToken)
	if n < 1 {
		return 1
	}
	return n
}
