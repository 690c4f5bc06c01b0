// Package rag answers questions over the indexed legal corpus: it embeds
// the query, retrieves candidate chunks from the vector index, filters and
// re-ranks them, and asks the LLM for an answer grounded in the survivors.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"lexingest/internal/embedding"
	"lexingest/internal/extract"
	"lexingest/internal/llm"
	"lexingest/internal/vector"
)

// DefaultDistanceThreshold is the maximum cosine distance for a chunk to
// count as relevant.
const DefaultDistanceThreshold = 1.2

// minBoostCandidates is how many chunks to retrieve when the query names
// a specific article, so the boost pass has enough recall to work with.
const minBoostCandidates = 15

// ErrPromptInjection is returned when the query tries to override the
// answering instructions instead of asking a question.
var ErrPromptInjection = errors.New("query rejected: prompt injection pattern")

// Source identifies one chunk an answer was grounded in.
type Source struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	PageStart    int     `json:"page_start"`
	PageEnd      int     `json:"page_end"`
	Section      string  `json:"section,omitempty"`
	Distance     float64 `json:"distance"`
}

// Answer is the result of one question.
type Answer struct {
	Answer   string   `json:"answer"`
	Language string   `json:"language"`
	Sources  []Source `json:"sources"`
}

// Service wires embedding, vector search and the LLM together.
type Service struct {
	embedder  embedding.Client
	index     vector.Index
	answerer  llm.Answerer
	threshold float64
	logger    *slog.Logger
}

func NewService(embedder embedding.Client, index vector.Index, answerer llm.Answerer, threshold float64, logger *slog.Logger) *Service {
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	return &Service{
		embedder:  embedder,
		index:     index,
		answerer:  answerer,
		threshold: threshold,
		logger:    logger,
	}
}

// Ask answers a question grounded in the indexed documents. topK bounds
// how many sources the answer may cite.
func (s *Service) Ask(ctx context.Context, query string, topK int) (Answer, error) {
	normalized := NormalizeQuery(query)
	lang := extract.DetectLanguage(normalized)
	noData := noDataAnswer(lang)

	if normalized == "" {
		return Answer{Answer: noData, Language: lang}, nil
	}
	if IsPromptInjection(normalized) {
		s.logger.Warn("prompt injection attempt rejected", "query_len", len(query))
		return Answer{}, ErrPromptInjection
	}

	articleRef := DetectArticleReference(normalized)
	limit := topK
	if articleRef != "" && limit < minBoostCandidates {
		limit = minBoostCandidates
	}

	vecs, err := s.embedder.GetEmbeddings(ctx, []string{normalized})
	if err != nil {
		return Answer{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return Answer{}, fmt.Errorf("expected 1 query vector, got %d", len(vecs))
	}

	hits, err := s.index.Search(ctx, vecs[0], limit)
	if err != nil {
		return Answer{}, fmt.Errorf("vector search: %w", err)
	}

	if articleRef != "" {
		hits = BoostArticleHits(hits, articleRef)
	}

	var relevant []vector.Hit
	for _, h := range hits {
		if h.Distance <= s.threshold {
			relevant = append(relevant, h)
		}
	}
	if len(relevant) > topK {
		relevant = relevant[:topK]
	}
	if len(relevant) == 0 {
		return Answer{Answer: noData, Language: lang}, nil
	}

	text, err := s.answerer.Answer(ctx, systemPrompt(lang, noData), buildPrompt(query, relevant))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	out := Answer{
		Answer:   SanitizeAnswer(text),
		Language: lang,
	}
	for _, h := range relevant {
		out.Sources = append(out.Sources, Source{
			DocumentID:   h.DocumentID,
			DocumentName: h.DocumentName,
			ChunkIndex:   h.ChunkIndex,
			PageStart:    h.PageStart,
			PageEnd:      h.PageEnd,
			Section:      h.Section,
			Distance:     h.Distance,
		})
	}
	return out, nil
}

func noDataAnswer(lang string) string {
	if lang == "tj" {
		return "Маълумот дар база мавҷуд нест / Ответ не найден в базе"
	}
	return "Ответ не найден в базе / Маълумот дар база мавҷуд нест"
}

func systemPrompt(lang, noData string) string {
	return "You are a legal reference assistant for Russian and Tajik legislation. " +
		"Answer the user question based only on the provided context.\n" +
		"Rules:\n" +
		"1) Use ONLY factual information from the provided context.\n" +
		"2) Answer in the language of the question (Russian or Tajik).\n" +
		"3) If the context does not contain the answer to the core question, respond exactly with: \"" + noData + "\".\n" +
		"4) Cite article and section numbers when the context provides them."
}

func buildPrompt(query string, hits []vector.Hit) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, h := range hits {
		sb.WriteString(fmt.Sprintf("[%d] %s", i+1, h.DocumentName))
		if h.Section != "" {
			sb.WriteString(" | " + h.Section)
		}
		sb.WriteString("\n")
		sb.WriteString(h.Text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

var wsRunRe = regexp.MustCompile(`\s+`)

// NormalizeQuery lowercases and collapses whitespace.
func NormalizeQuery(query string) string {
	return wsRunRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), " ")
}

var injectionPatterns = []string{
	"ignore previous instructions",
	"forget all instructions",
	"system prompt",
	"developer message",
	"reveal prompt",
	"bypass",
	"jailbreak",
	"act as",
	"disregard above",
	"игнорируй предыдущие",
	"раскрой системный",
	"обойди ограничения",
	"фаромӯш кун дастур",
	"дастурҳоро нодида гир",
}

// IsPromptInjection reports whether the query tries to override the
// assistant's instructions.
func IsPromptInjection(query string) bool {
	lowered := strings.ToLower(query)
	for _, p := range injectionPatterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

var (
	articleRuPrefixRe = regexp.MustCompile(`(?:стать[а-яё]*|ст\.?)\s*(\d+)`)
	articleRuSuffixRe = regexp.MustCompile(`(\d+)\s*-?\s*(?:стать[а-яё]*|ст\.?)`)
	articleTjPrefixRe = regexp.MustCompile(`(?:моддаи?|мод\.?)\s*(\d+)`)
	articleTjSuffixRe = regexp.MustCompile(`(\d+)\s*(?:мақола|моддаи?)`)
	lawSuffixRe       = regexp.MustCompile(`(\d+)\s*-?(?:й|ый|ого)?\s*закон`)
	lawPrefixRe       = regexp.MustCompile(`закон[а-яё]*\s*(\d+)`)
	punktPrefixRe     = regexp.MustCompile(`(?:пункт[а-яё]*|п\.?)\s*(\d+)`)
	punktSuffixRe     = regexp.MustCompile(`(\d+)\s*-?\s*пункт[а-яё]*`)
)

// DetectArticleReference returns a canonical lowercase reference string
// ("статья 80", "моддаи 2", "закон 243", "пункт 10") when the query asks
// about a specific numbered provision, or "" otherwise.
func DetectArticleReference(query string) string {
	q := strings.ToLower(query)

	if m := articleRuPrefixRe.FindStringSubmatch(q); m != nil {
		return "статья " + m[1]
	}
	if m := articleRuSuffixRe.FindStringSubmatch(q); m != nil {
		return "статья " + m[1]
	}
	if m := articleTjPrefixRe.FindStringSubmatch(q); m != nil {
		return "моддаи " + m[1]
	}
	if m := articleTjSuffixRe.FindStringSubmatch(q); m != nil {
		return "моддаи " + m[1]
	}
	if m := lawSuffixRe.FindStringSubmatch(q); m != nil {
		return "закон " + m[1]
	}
	if m := lawPrefixRe.FindStringSubmatch(q); m != nil {
		return "закон " + m[1]
	}
	if m := punktPrefixRe.FindStringSubmatch(q); m != nil {
		return "пункт " + m[1]
	}
	if m := punktSuffixRe.FindStringSubmatch(q); m != nil {
		return "пункт " + m[1]
	}
	return ""
}

var refNumberRe = regexp.MustCompile(`\d+`)

// BoostArticleHits moves chunks containing the referenced provision to the
// front and halves their distance so they survive the relevance filter.
func BoostArticleHits(hits []vector.Hit, articleRef string) []vector.Hit {
	if len(hits) == 0 {
		return hits
	}

	refLower := strings.ToLower(articleRef)
	numberStr := refNumberRe.FindString(articleRef)
	isListItemRef := strings.HasPrefix(refLower, "закон ") || strings.HasPrefix(refLower, "пункт ")

	var flexRe, listRe *regexp.Regexp
	if numberStr != "" {
		keyword := strings.TrimSpace(strings.Replace(refLower, numberStr, "", 1))
		flexRe = regexp.MustCompile(regexp.QuoteMeta(keyword) + `\s+` + regexp.QuoteMeta(numberStr) + `\b`)
		if isListItemRef {
			listRe = regexp.MustCompile(`(?:^|\n)` + regexp.QuoteMeta(numberStr) + `[.\s]`)
		}
	}

	var boosted, normal []vector.Hit
	for _, h := range hits {
		textLower := strings.ToLower(h.Text)
		contains := strings.Contains(textLower, refLower)
		if !contains && flexRe != nil {
			contains = flexRe.MatchString(textLower)
		}
		if !contains && listRe != nil {
			contains = listRe.MatchString(textLower)
		}
		if contains {
			h.Distance *= 0.5
			boosted = append(boosted, h)
		} else {
			normal = append(normal, h)
		}
	}
	return append(boosted, normal...)
}

var (
	noDataRuPhrase = "ответ не найден в базе"
	noDataTjPhrase = "маълумот дар база мавҷуд нест"

	citationHeadingRe = regexp.MustCompile(`(?im)^\s*(legal\s+sources(?:\s*&\s*references)?|references)\s*:?\s*$`)
	answerLabelRe     = regexp.MustCompile(`(?i)^\s*(answer|ответ|ҷавоб)\s*:\s*`)
)

// LooksLikeNoData reports whether the answer is the no-data sentinel.
func LooksLikeNoData(answer string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(answer)), " ")
	return strings.Contains(normalized, noDataRuPhrase) || strings.Contains(normalized, noDataTjPhrase)
}

// SanitizeAnswer strips model-generated citation blocks and leading
// answer labels; sources are rendered separately.
func SanitizeAnswer(answer string) string {
	text := strings.TrimSpace(answer)
	if text == "" || LooksLikeNoData(text) {
		return text
	}
	if loc := citationHeadingRe.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[:loc[0]])
	}
	return strings.TrimSpace(answerLabelRe.ReplaceAllString(text, ""))
}
