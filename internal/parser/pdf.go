package parser

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/wareline/kbcore/internal/model"
)

// PDFParser extracts per-page text and infers structure heuristically;
// PDF exposes no document object model, so every block it produces is
// tagged as inferred.
type PDFParser struct{}

func (p *PDFParser) Parse(data []byte, filename string) (*model.ParsedDocument, error) {
	text, pages, err := extractPDFText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruptInput, err)
	}

	doc := &model.ParsedDocument{
		Text:      text,
		Structure: InferStructure(text),
		Metadata: model.DocumentMetadata{
			Title:     titleFromFilename(filename),
			PageCount: pages,
			WordCount: countWords(text),
		},
	}
	return doc, nil
}

// extractPDFText concatenates page text with explicit [Page N] markers.
// The markers stay in the text; the chunker consumes them to attribute
// page numbers to chunks.
func extractPDFText(data []byte) (text string, pages int, err error) {
	// ledongthuc/pdf panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf decode: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		fmt.Fprintf(&buf, "[Page %d]\n", i)
		buf.WriteString(pageText)
	}

	return buf.String(), numPages, nil
}
