package chat

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// CoercePlainText strips Markdown structure from a model reply so it reads
// naturally in a messenger bubble. Code fences and inline code keep their
// content, links become "text (url)", ordered lists keep plain numbering,
// and everything else is flattened.
func CoercePlainText(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	trimmed = splitInlineNumberedList(trimmed)

	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(trimmed))

	var b strings.Builder
	renderPlain(&b, doc)
	return collapseBlankLines(b.String())
}

func renderPlain(b *strings.Builder, node ast.Node) {
	switch n := node.(type) {
	case *ast.Text:
		b.Write(n.Literal)
	case *ast.Code:
		b.Write(n.Literal)
	case *ast.CodeBlock:
		b.Write(bytes.TrimSpace(n.Literal))
		b.WriteString("\n")
	case *ast.Link:
		renderChildren(b, n)
		if len(n.Destination) > 0 {
			fmt.Fprintf(b, " (%s)", n.Destination)
		}
		return
	case *ast.Image:
		renderChildren(b, n)
		return
	case *ast.Heading:
		renderChildren(b, n)
		b.WriteString("\n")
		return
	case *ast.Paragraph:
		renderChildren(b, n)
		b.WriteString("\n")
		return
	case *ast.List:
		ordered := n.ListFlags&ast.ListTypeOrdered != 0
		for i, item := range n.GetChildren() {
			if ordered {
				fmt.Fprintf(b, "%d. ", i+1)
			}
			renderPlain(b, item)
		}
		b.WriteString("\n")
		return
	case *ast.ListItem:
		renderChildren(b, n)
		return
	case *ast.HTMLBlock, *ast.HTMLSpan:
		return
	case *ast.Hardbreak:
		b.WriteString("\n")
		return
	case *ast.HorizontalRule:
		return
	}
	renderChildren(b, node)
}

func renderChildren(b *strings.Builder, node ast.Node) {
	for _, child := range node.GetChildren() {
		renderPlain(b, child)
	}
}

// collapseBlankLines compacts each line's internal whitespace and allows at
// most one blank line between paragraphs.
func collapseBlankLines(text string) string {
	var lines []string
	previousBlank := false
	for _, line := range strings.Split(text, "\n") {
		compact := strings.Join(strings.Fields(line), " ")
		if compact == "" {
			if !previousBlank {
				lines = append(lines, "")
			}
			previousBlank = true
			continue
		}
		lines = append(lines, compact)
		previousBlank = false
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var (
	numberedItemPattern  = regexp.MustCompile(`(\d{1,2})\.\s+`)
	numberedSplitPattern = regexp.MustCompile(`\s+(\d{1,2}\.\s+)`)
)

// splitInlineNumberedList breaks "1. foo 2. bar 3. baz" written on one line
// into separate lines, but only when the numbers form a sequence starting
// at 1 so prose like "version 2. It works" is left alone.
func splitInlineNumberedList(text string) string {
	matches := numberedItemPattern.FindAllStringSubmatchIndex(text, -1)
	var numbers []int
	for _, m := range matches {
		if m[0] > 0 && text[m[0]-1] >= '0' && text[m[0]-1] <= '9' {
			continue
		}
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	if len(numbers) < 2 || numbers[0] != 1 {
		return text
	}
	for i := 1; i < len(numbers); i++ {
		if numbers[i] != numbers[i-1]+1 {
			return text
		}
	}
	return numberedSplitPattern.ReplaceAllString(text, "\n$1")
}
