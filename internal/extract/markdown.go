package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"lexingest/internal/chunker"
)

// MarkdownExtractor walks the goldmark AST and emits one block per
// top-level element. Headings become their own blocks so the structural
// classifier can pick them up downstream.
type MarkdownExtractor struct{}

func (p *MarkdownExtractor) Extract(r io.Reader, filename string) ([]chunker.TextBlock, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []chunker.TextBlock
	order := 0
	push := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		blocks = append(blocks, chunker.TextBlock{
			Text:   t,
			Page:   1,
			Order:  order,
			Source: "markdown",
		})
		order++
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			push(string(node.Text(src)))
		case *ast.List:
			push(listText(node, src))
		default:
			push(nodeText(n, src))
		}
	}
	return blocks, nil
}

// listText renders a list as one block, one "- " line per item, so the
// items stay together as list_item lines.
func listText(list *ast.List, src []byte) string {
	var lines []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		t := nodeText(item, src)
		if t == "" {
			continue
		}
		lines = append(lines, "- "+strings.ReplaceAll(t, "\n", " "))
	}
	return strings.Join(lines, "\n")
}

// nodeText gets the text content of a goldmark AST node.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(nodeText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
