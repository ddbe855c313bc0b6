package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// renderMarkdown converts a cell's markup to markdown-flavoured text,
// keeping paragraphs, lists, emphasis, headings, images, and nested
// tables readable for the grading prompt.
func renderMarkdown(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		renderChildren(&b, node)
	}
	return tidyMarkdown(b.String())
}

func renderChildren(b *strings.Builder, node *html.Node) {
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
}

func renderNode(b *strings.Builder, node *html.Node) {
	if node.Type == html.TextNode {
		b.WriteString(collapseSpace(node.Data) + " ")
		return
	}
	if node.Type != html.ElementNode {
		return
	}

	switch node.Data {
	case "p", "div":
		b.WriteString("\n")
		renderChildren(b, node)
		b.WriteString("\n")
	case "br":
		b.WriteString("\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(node.Data[1] - '0')
		b.WriteString("\n" + strings.Repeat("#", level) + " ")
		renderChildren(b, node)
		b.WriteString("\n")
	case "ul", "ol":
		b.WriteString("\n")
		renderChildren(b, node)
	case "li":
		b.WriteString("- ")
		renderChildren(b, node)
		b.WriteString("\n")
	case "strong", "b":
		if inner := renderInner(node); inner != "" {
			b.WriteString("**" + inner + "** ")
		}
	case "em", "i":
		if inner := renderInner(node); inner != "" {
			b.WriteString("*" + inner + "* ")
		}
	case "img":
		if src := attr(node, "src"); src != "" {
			b.WriteString("![image](" + src + ") ")
		}
	case "table":
		renderTable(b, node)
	case "blockquote":
		b.WriteString("\n> ")
		renderChildren(b, node)
		b.WriteString("\n")
	default:
		renderChildren(b, node)
	}
}

// renderInner renders a node's children and trims the surrounding
// whitespace, for inline wrappers where spaces must stay outside the
// markers.
func renderInner(node *html.Node) string {
	var b strings.Builder
	renderChildren(&b, node)
	return strings.TrimSpace(b.String())
}

// renderTable flattens a nested table into pipe-delimited rows.
func renderTable(b *strings.Builder, table *html.Node) {
	sel := selectionOf(table)
	b.WriteString("\n")
	sel.Find("tr").Each(func(i int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, collapseSpace(cell.Text()))
		})
		if len(cells) == 0 {
			return
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat(" --- |", len(cells)) + "\n")
		}
	})
	b.WriteString("\n")
}

func selectionOf(node *html.Node) *goquery.Selection {
	doc := goquery.NewDocumentFromNode(node)
	return doc.Selection
}

func attr(node *html.Node, name string) string {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// tidyMarkdown collapses the whitespace noise the renderer leaves behind.
func tidyMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if strings.TrimSpace(line) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
