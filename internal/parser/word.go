package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/wareline/kbcore/internal/model"
)

// Binary signatures distinguishing the two Word container formats.
var (
	oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipSignature = []byte{'P', 'K', 0x03, 0x04}
)

// WordParser handles the Word family. Modern .docx (zip container) exposes
// real heading levels through paragraph styles; legacy .doc (OLE compound
// document) gets a cruder text extraction with inferred structure.
type WordParser struct{}

func (p *WordParser) Parse(data []byte, filename string) (*model.ParsedDocument, error) {
	switch {
	case bytes.HasPrefix(data, zipSignature):
		return p.parseModern(data, filename)
	case bytes.HasPrefix(data, oleSignature):
		return p.parseLegacy(data, filename)
	default:
		return nil, fmt.Errorf("%w: no word-family signature in %q", model.ErrCorruptInput, filename)
	}
}

func (p *WordParser) parseModern(data []byte, filename string) (*model.ParsedDocument, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse docx: %v", model.ErrCorruptInput, err)
	}

	var blocks []model.StructureBlock
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}

		text := paragraphText(para)
		if text == "" {
			continue
		}

		if level := headingStyleLevel(para); level > 0 {
			blocks = append(blocks, model.StructureBlock{
				Type:    model.BlockHeading,
				Level:   level,
				Content: text,
			})
			continue
		}

		blockType := model.BlockParagraph
		if isListStyle(para) {
			blockType = model.BlockList
		}
		blocks = append(blocks, model.StructureBlock{
			Type:    blockType,
			Content: text,
		})
	}

	text := joinBlocks(blocks)
	return &model.ParsedDocument{
		Text:      text,
		Structure: blocks,
		Metadata: model.DocumentMetadata{
			Title:     titleFromFilename(filename),
			WordCount: countWords(text),
		},
	}, nil
}

// headingStyleLevel maps a paragraph's style to a heading level, or 0.
func headingStyleLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	switch strings.TrimPrefix(style, "heading") {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func isListStyle(para *docx.Paragraph) bool {
	if para.Properties == nil || para.Properties.Style == nil {
		return false
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	return style == "listparagraph"
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
