package parser

import (
	"strings"
	"testing"

	"github.com/wareline/kbcore/internal/model"
)

func TestMarkdownParser_HeadingsAndParagraphs(t *testing.T) {
	src := []byte("# Title\n\nFirst paragraph.\n\n## Section\n\nSecond paragraph.\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		typ     model.BlockType
		level   int
		content string
	}{
		{model.BlockHeading, 1, "Title"},
		{model.BlockParagraph, 0, "First paragraph."},
		{model.BlockHeading, 2, "Section"},
		{model.BlockParagraph, 0, "Second paragraph."},
	}
	if len(doc.Structure) != len(want) {
		t.Fatalf("expected %d blocks, got %d: %+v", len(want), len(doc.Structure), doc.Structure)
	}
	for i, w := range want {
		b := doc.Structure[i]
		if b.Type != w.typ || b.Level != w.level || b.Content != w.content {
			t.Errorf("block %d = {%s %d %q}, want {%s %d %q}", i, b.Type, b.Level, b.Content, w.typ, w.level, w.content)
		}
		if b.Inferred {
			t.Errorf("block %d: markdown structure is explicit, must not be marked inferred", i)
		}
	}
}

func TestMarkdownParser_FrontMatter(t *testing.T) {
	src := []byte("---\ntitle: Receiving Procedure\nauthor: Ops Team\n---\n# Steps\n\nUnload the truck.\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "receiving.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Metadata.Title != "Receiving Procedure" {
		t.Errorf("expected front matter title, got %q", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "Ops Team" {
		t.Errorf("expected front matter author, got %q", doc.Metadata.Author)
	}
	if strings.Contains(doc.Text, "Ops Team") {
		t.Error("front matter must not leak into body text")
	}
	if len(doc.Structure) == 0 || doc.Structure[0].Content != "Steps" {
		t.Errorf("expected body structure to start at the heading, got %+v", doc.Structure)
	}
}

func TestMarkdownParser_FrontMatterAfterBOM(t *testing.T) {
	src := []byte("\xef\xbb\xbf---\ntitle: BOM Doc\n---\nBody text.\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "bom.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Metadata.Title != "BOM Doc" {
		t.Errorf("byte-order mark must not hide front matter, got title %q", doc.Metadata.Title)
	}
}

func TestMarkdownParser_FrontMatterNonScalarValues(t *testing.T) {
	src := []byte("---\ntitle: Tagged Doc\ntags:\n  - ops\n  - safety\nextra:\n  nested: yes\n---\nBody text.\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "tagged.md")
	if err != nil {
		t.Fatalf("lists and maps in front matter are valid yaml, got error: %v", err)
	}
	if doc.Metadata.Title != "Tagged Doc" {
		t.Errorf("expected scalar title alongside non-scalar keys, got %q", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "" {
		t.Errorf("missing author must stay empty, got %q", doc.Metadata.Author)
	}
}

func TestMarkdownParser_NoFrontMatterFallsBackToFilename(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse([]byte("Just a paragraph.\n"), "safety-notes.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Metadata.Title != "safety-notes" {
		t.Errorf("expected filename-derived title, got %q", doc.Metadata.Title)
	}
}

func TestMarkdownParser_Lists(t *testing.T) {
	src := []byte("# Checklist\n\n- count stock\n- verify labels\n- sign off\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "checklist.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list *model.StructureBlock
	for i := range doc.Structure {
		if doc.Structure[i].Type == model.BlockList {
			list = &doc.Structure[i]
		}
	}
	if list == nil {
		t.Fatalf("expected a list block, got %+v", doc.Structure)
	}
	lines := strings.Split(list.Content, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 list items, got %d: %q", len(lines), list.Content)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "- ") {
			t.Errorf("list item %q missing marker prefix", line)
		}
	}
}

func TestMarkdownParser_CodeBlock(t *testing.T) {
	src := []byte("# Usage\n\n```\ncurl -X POST /api/documents\n```\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "usage.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var code *model.StructureBlock
	for i := range doc.Structure {
		if doc.Structure[i].Type == model.BlockCode {
			code = &doc.Structure[i]
		}
	}
	if code == nil {
		t.Fatalf("expected a code block, got %+v", doc.Structure)
	}
	if !strings.Contains(code.Content, "curl -X POST") {
		t.Errorf("code block content = %q", code.Content)
	}
}

func TestMarkdownParser_PipeTable(t *testing.T) {
	src := []byte("| SKU | Qty |\n|-----|-----|\n| A-1 | 40 |\n")
	p := &MarkdownParser{}

	doc, err := p.Parse(src, "stock.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Structure) != 1 || doc.Structure[0].Type != model.BlockTable {
		t.Fatalf("expected a single table block, got %+v", doc.Structure)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse(nil, "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Text != "" || len(doc.Structure) != 0 {
		t.Errorf("expected empty parse result, got text=%q blocks=%d", doc.Text, len(doc.Structure))
	}
	if doc.Metadata.WordCount != 0 {
		t.Errorf("expected zero word count, got %d", doc.Metadata.WordCount)
	}
}
