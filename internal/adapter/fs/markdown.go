package fs

import (
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New().Parser()

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// markdownSections splits a markdown file at its top-level headings. Each
// section is the heading line followed by its body as plain text. Link
// targets, images and raw HTML are dropped; link text is kept.
func markdownSections(source []byte) []string {
	doc := markdownParser.Parse(text.NewReader(source))

	var sections []string
	var header string
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		switch {
		case header != "" && content != "":
			sections = append(sections, header+"\n"+content)
		case header != "":
			sections = append(sections, header)
		case content != "":
			sections = append(sections, content)
		}
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			header = strings.Repeat("#", h.Level) + " " + strings.TrimSpace(plainText(h, source))
			continue
		}
		body.WriteString(plainText(n, source))
		body.WriteString("\n")
	}
	flush()

	return sections
}

func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := node.(type) {
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				sb.Write(v.Segment.Value(source))
				if v.SoftLineBreak() || v.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(v.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(v.Label(source))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		default:
			if !entering && node.Type() == ast.TypeBlock && node.NextSibling() != nil {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
