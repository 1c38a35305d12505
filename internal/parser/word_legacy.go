package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"

	"github.com/wareline/kbcore/internal/model"
)

// Legacy .doc decoding. The OLE compound document is opened with mscfb and
// readable text is recovered from the WordDocument stream. The binary
// format exposes no usable styles through this path, so structure is
// inferred the same way as for PDF text.

const minTextRun = 4

func (p *WordParser) parseLegacy(data []byte, filename string) (*model.ParsedDocument, error) {
	reader, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open compound document: %v", model.ErrCorruptInput, err)
	}

	var stream []byte
	for entry, err := reader.Next(); err == nil; entry, err = reader.Next() {
		if entry.Name != "WordDocument" {
			continue
		}
		stream, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: read WordDocument stream: %v", model.ErrCorruptInput, err)
		}
		break
	}
	if stream == nil {
		return nil, fmt.Errorf("%w: no WordDocument stream in %q", model.ErrCorruptInput, filename)
	}

	text := extractReadableText(stream)
	return &model.ParsedDocument{
		Text:      text,
		Structure: InferStructure(text),
		Metadata: model.DocumentMetadata{
			Title:     titleFromFilename(filename),
			WordCount: countWords(text),
		},
	}, nil
}

// extractReadableText scans the raw stream for runs of printable text,
// trying both single-byte and UTF-16LE interpretations and keeping the
// longer recovery. Control characters used as field/paragraph markers in
// the binary format become line breaks.
func extractReadableText(stream []byte) string {
	single := extractRuns(stream, decodeSingleByte)
	wide := extractRuns(stream, decodeUTF16LE)
	if len(wide) > len(single) {
		return wide
	}
	return single
}

func decodeSingleByte(stream []byte) []rune {
	runes := make([]rune, len(stream))
	for i, b := range stream {
		runes[i] = rune(b)
	}
	return runes
}

func decodeUTF16LE(stream []byte) []rune {
	u := make([]uint16, 0, len(stream)/2)
	for i := 0; i+1 < len(stream); i += 2 {
		u = append(u, uint16(stream[i])|uint16(stream[i+1])<<8)
	}
	return utf16.Decode(u)
}

func extractRuns(stream []byte, decode func([]byte) []rune) string {
	var sb strings.Builder
	var run []rune

	flush := func() {
		text := strings.TrimSpace(string(run))
		run = run[:0]
		if len([]rune(text)) < minTextRun {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	for _, r := range decode(stream) {
		switch {
		case r == '\r' || r == '\n' || r == 0x0B || r == 0x07:
			// Paragraph, line and cell marks.
			flush()
		case unicode.IsPrint(r) || r == '\t':
			run = append(run, r)
		default:
			flush()
		}
	}
	flush()

	return sb.String()
}
