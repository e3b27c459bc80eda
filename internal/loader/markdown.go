package loader

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.Table))

// MarkdownText renders markdown to plain text. Block elements are separated
// by blank lines so the splitter can prefer paragraph boundaries. Headings
// stay as their own paragraph, table rows become pipe separated lines and
// code blocks are kept verbatim.
func MarkdownText(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	doc := markdownParser.Parser().Parse(text.NewReader(content))

	var blocks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				flush()
				cur.WriteString(inlineText(node, content))
				flush()
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.TextBlock:
			if entering {
				if _, inItem := n.Parent().(*ast.ListItem); !inItem {
					flush()
				} else if cur.Len() > 0 {
					cur.WriteString("\n")
				}
				cur.WriteString(inlineText(node, content))
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				flush()
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					cur.Write(line.Value(content))
				}
				flush()
			}
			return ast.WalkSkipChildren, nil

		case *ast.List:
			if entering {
				if _, nested := n.Parent().(*ast.ListItem); !nested {
					flush()
				}
			} else if _, nested := n.Parent().(*ast.ListItem); !nested {
				flush()
			}
			return ast.WalkContinue, nil

		case *extast.Table:
			if entering {
				flush()
				for row := node.FirstChild(); row != nil; row = row.NextSibling() {
					cur.WriteString(tableRowText(row, content))
					cur.WriteString("\n")
				}
				flush()
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	flush()

	return strings.Join(blocks, "\n\n")
}

// MarkdownTitle returns the first level-1 heading, falling back to the first
// level-2 heading, or "" when the document has neither.
func MarkdownTitle(content []byte) string {
	doc := markdownParser.Parser().Parse(text.NewReader(content))

	var h1, h2 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			switch {
			case heading.Level == 1 && h1 == "":
				h1 = inlineText(heading, content)
				return ast.WalkStop, nil
			case heading.Level == 2 && h2 == "":
				h2 = inlineText(heading, content)
			}
		}
		return ast.WalkContinue, nil
	})

	if h1 != "" {
		return h1
	}
	return h2
}

// HTMLText converts an HTML page to markdown and then to plain text.
func HTMLText(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return MarkdownText([]byte(markdown)), nil
}

// inlineText collects the text of n's inline descendants.
func inlineText(n ast.Node, content []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(content))
			if v.SoftLineBreak() {
				sb.WriteString("\n")
			} else if v.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(v.Value)
		case *ast.AutoLink:
			sb.Write(v.URL(content))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func tableRowText(row ast.Node, content []byte) string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		cells = append(cells, inlineText(cell, content))
	}
	return strings.Join(cells, " | ")
}
