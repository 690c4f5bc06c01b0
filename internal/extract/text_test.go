package extract

import (
	"strings"
	"testing"
)

func TestTextExtractor_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	p := &TextExtractor{}
	blocks, err := p.Extract(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"First paragraph line one.\nFirst paragraph line two.",
		"Second paragraph.",
		"Third paragraph.",
	}
	if len(blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(blocks))
	}
	for i, w := range want {
		if blocks[i].Text != w {
			t.Errorf("block[%d]: expected %q, got %q", i, w, blocks[i].Text)
		}
		if blocks[i].Order != i {
			t.Errorf("block[%d]: expected order %d, got %d", i, i, blocks[i].Order)
		}
		if blocks[i].Page != 1 {
			t.Errorf("block[%d]: expected page 1, got %d", i, blocks[i].Page)
		}
		if blocks[i].Source != "txt" {
			t.Errorf("block[%d]: expected source txt, got %q", i, blocks[i].Source)
		}
	}
}

func TestTextExtractor_EmptyInput(t *testing.T) {
	p := &TextExtractor{}
	blocks, err := p.Extract(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected 0 blocks for empty input, got %d", len(blocks))
	}
}

func TestTextExtractor_MultipleBlankLines(t *testing.T) {
	// Consecutive blank lines should not produce empty blocks.
	input := "Para one.\n\n\n\nPara two."
	p := &TextExtractor{}
	blocks, err := p.Extract(strings.NewReader(input), "gaps.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
}

func TestTextExtractor_WhitespaceOnlyLines(t *testing.T) {
	input := "Para one.\n   \nPara two."
	p := &TextExtractor{}
	blocks, err := p.Extract(strings.NewReader(input), "ws.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
}

func TestForFile(t *testing.T) {
	cases := []struct {
		filename string
		wantErr  bool
	}{
		{"doc.txt", false},
		{"doc.md", false},
		{"doc.csv", false},
		{"doc.html", false},
		{"doc.htm", false},
		{"Doc.PDF", false},
		{"doc.docx", false},
		{"doc.xlsx", true},
		{"doc", true},
	}
	for _, tc := range cases {
		_, err := ForFile(tc.filename)
		if (err != nil) != tc.wantErr {
			t.Errorf("ForFile(%q): err = %v, wantErr %v", tc.filename, err, tc.wantErr)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Настоящий закон регулирует отношения", "ru"},
		{"Қонуни мазкур муносибатҳоро танзим мекунад", "tj"},
		{"МОДДАИ 1. Мафҳумҳои асосӣ", "tj"},
		{"", "ru"},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
