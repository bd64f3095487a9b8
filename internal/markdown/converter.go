// Package markdown converts markdown sources into the plain text the chunker
// consumes, plus a section outline used as a fallback description.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Document is the plain-text rendering of a markdown source.
type Document struct {
	Title   string   // Text of the first H1, if any
	Text    string   // Plain text; headings end in ':' on their own line
	Outline []string // Header paths: "# Doc Title > ## Section Name"
}

// Description summarises the outline in one line.
func (d *Document) Description() string {
	if len(d.Outline) == 0 {
		return d.Title
	}
	return "Sections: " + strings.Join(d.Outline, "; ")
}

// Converter renders markdown to plain text with a goldmark parser.
type Converter struct {
	parser   goldmark.Markdown
	maxDepth int
}

// NewConverter creates a converter whose outline includes headings up to
// maxDepth (H1..H6). maxDepth <= 0 defaults to 2.
func NewConverter(maxDepth int) *Converter {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Converter{parser: md, maxDepth: maxDepth}
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Convert parses source and returns its plain text and outline.
func (c *Converter) Convert(source []byte) (*Document, error) {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(c.maxDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var outline []string
	collectOutline(tree.Items, nil, &outline)

	var b strings.Builder
	title := ""
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Heading:
			heading := strings.TrimSpace(inlineText(v, source))
			if title == "" && v.Level == 1 {
				title = heading
			}
			if heading != "" && !strings.HasSuffix(heading, ":") {
				heading += ":"
			}
			b.WriteString(heading)
			b.WriteString("\n\n")
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.TextBlock:
			if _, ok := n.Parent().(*ast.ListItem); ok && n.PreviousSibling() == nil {
				b.WriteString("- ")
			}
			b.WriteString(strings.TrimSpace(inlineText(n, source)))
			if _, tight := n.(*ast.TextBlock); tight {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	plain := blankRuns.ReplaceAllString(b.String(), "\n\n")
	return &Document{
		Title:   title,
		Text:    strings.TrimSpace(plain),
		Outline: outline,
	}, nil
}

// inlineText concatenates the text leaves under n.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			switch {
			case v.HardLineBreak():
				b.WriteByte('\n')
			case v.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func collectOutline(items toc.Items, ancestors []string, out *[]string) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))
		*out = append(*out, formatHeaderPath(path))
		if len(item.Items) > 0 {
			collectOutline(item.Items, path, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	parts := make([]string, 0, len(path))
	for i, segment := range path {
		prefix := strings.Repeat("#", i+1)
		parts = append(parts, fmt.Sprintf("%s %s", prefix, segment))
	}

	return strings.Join(parts, " > ")
}
