// Package parser converts raw document bytes into a normalized
// ParsedDocument: full text plus an ordered sequence of typed structure
// blocks. Parsers are pure transformations; they touch nothing beyond the
// input bytes.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wareline/kbcore/internal/model"
)

// Parser converts raw document bytes into a ParsedDocument.
type Parser interface {
	Parse(data []byte, filename string) (*model.ParsedDocument, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".doc":      true,
	".md":       true,
	".markdown": true,
}

// ForFile returns the appropriate parser for a filename. Detection is by
// extension only; content sniffing happens inside the Word-family parser,
// which sub-branches on binary signature.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx", ".doc":
		return &WordParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, ext)
	}
}

// Parse selects a parser for filename and runs it.
func Parse(data []byte, filename string) (*model.ParsedDocument, error) {
	p, err := ForFile(filename)
	if err != nil {
		return nil, err
	}
	return p.Parse(data, filename)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// titleFromFilename strips the extension to produce a fallback title.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// joinBlocks renders a block sequence back into flat text, preserving
// reading order.
func joinBlocks(blocks []model.StructureBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(b.Content)
	}
	return sb.String()
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
