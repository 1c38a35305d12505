package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/wareline/kbcore/internal/model"
)

// MarkdownParser handles Markdown using goldmark. Markdown exposes
// explicit structure: real heading levels and real list/code markers. A
// leading front-matter block is parsed into document metadata before the
// body is parsed structurally.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte, filename string) (*model.ParsedDocument, error) {
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("%w: front matter: %v", model.ErrCorruptInput, err)
	}

	md := goldmark.New()
	reader := text.NewReader(body)
	root := md.Parser().Parse(reader)

	var blocks []model.StructureBlock
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := string(node.Text(body))
			if title == "" {
				continue
			}
			blocks = append(blocks, model.StructureBlock{
				Type:    model.BlockHeading,
				Level:   node.Level,
				Content: title,
			})

		case *ast.List:
			if content := listText(node, body); content != "" {
				blocks = append(blocks, model.StructureBlock{
					Type:    model.BlockList,
					Content: content,
				})
			}

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if content := extractText(n, body); content != "" {
				blocks = append(blocks, model.StructureBlock{
					Type:    model.BlockCode,
					Content: content,
				})
			}

		default:
			content := extractText(n, body)
			if content == "" {
				continue
			}
			blockType := model.BlockParagraph
			if isPipeTable(content) {
				blockType = model.BlockTable
			}
			blocks = append(blocks, model.StructureBlock{
				Type:    blockType,
				Content: content,
			})
		}
	}

	fullText := joinBlocks(blocks)
	metadata := metadataFromFrontMatter(meta)
	if metadata.Title == "" {
		metadata.Title = firstTopHeading(blocks)
	}
	if metadata.Title == "" {
		metadata.Title = titleFromFilename(filename)
	}
	metadata.WordCount = countWords(fullText)

	return &model.ParsedDocument{
		Text:      fullText,
		Structure: blocks,
		Metadata:  metadata,
	}, nil
}

// splitFrontMatter peels off a leading "---" delimited key: value block.
func splitFrontMatter(data []byte) (map[string]any, []byte, error) {
	trimmed := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(trimmed, []byte("---\n")) && !bytes.HasPrefix(trimmed, []byte("---\r\n")) {
		return nil, data, nil
	}

	rest := trimmed[bytes.IndexByte(trimmed, '\n')+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, data, nil
	}

	var meta map[string]any
	if err := yaml.Unmarshal(rest[:end], &meta); err != nil {
		return nil, nil, err
	}

	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return meta, body, nil
}

func metadataFromFrontMatter(meta map[string]any) model.DocumentMetadata {
	return model.DocumentMetadata{
		Title:    frontMatterString(meta, "title"),
		Author:   frontMatterString(meta, "author"),
		Language: frontMatterString(meta, "language"),
	}
}

// frontMatterString reads a scalar key; non-string values (lists, maps,
// numbers) are not an error, they just carry no metadata for us.
func frontMatterString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

// firstTopHeading returns the first level-1 heading, the usual document
// title in markdown without front matter.
func firstTopHeading(blocks []model.StructureBlock) string {
	for _, b := range blocks {
		if b.Type == model.BlockHeading && b.Level == 1 {
			return b.Content
		}
	}
	return ""
}

// listText flattens a list node into one marker-prefixed line per item.
func listText(list *ast.List, src []byte) string {
	var lines []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var sb strings.Builder
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if t := extractText(c, src); t != "" {
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(t)
			}
		}
		if sb.Len() > 0 {
			lines = append(lines, "- "+sb.String())
		}
	}
	return strings.Join(lines, "\n")
}

// isPipeTable reports whether every line of a paragraph starts with a pipe,
// which is how table rows come through without the table extension.
func isPipeTable(content string) bool {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return false
	}
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "|") {
			return false
		}
	}
	return true
}

// extractText gets the text content of a goldmark AST node. Leaf blocks
// carry their source lines directly; container nodes are walked through
// their inline children.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			if s := extractText(c, src); s != "" {
				if buf.Len() > 0 {
					buf.WriteByte('\n')
				}
				buf.WriteString(s)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
