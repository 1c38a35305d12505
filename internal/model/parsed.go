package model

// BlockType identifies the structural role of a parsed block.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockTable     BlockType = "table"
	BlockCode      BlockType = "code"
)

// StructureBlock is one unit of a document's normalized structure, in
// reading order. Level is set only for headings (1-6). Inferred marks
// structure recovered heuristically from flat text (PDF, legacy Word);
// inferred headings are advisory and lower-confidence than explicit ones.
type StructureBlock struct {
	Type     BlockType
	Level    int
	Content  string
	Inferred bool
}

// DocumentMetadata carries optional document-level metadata extracted
// during parsing (front matter, container properties).
type DocumentMetadata struct {
	Title     string
	Author    string
	PageCount int
	WordCount int
	Language  string
}

// ParsedDocument is the transient output of the format parser and the
// input to the chunker. It is never persisted directly.
type ParsedDocument struct {
	Text      string
	Structure []StructureBlock
	Metadata  DocumentMetadata
}
