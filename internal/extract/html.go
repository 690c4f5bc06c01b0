package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"lexingest/internal/chunker"
)

// HTMLExtractor flattens an HTML document into blocks: one block per
// heading, paragraph, list item or table cell. Script, style and page
// chrome elements are skipped.
type HTMLExtractor struct{}

func (p *HTMLExtractor) Extract(r io.Reader, filename string) ([]chunker.TextBlock, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

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
			Source: "html",
		})
		order++
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				push(htmlText(n))
				return
			case "p", "li", "td", "blockquote":
				push(htmlText(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return blocks, nil
}

func htmlText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
