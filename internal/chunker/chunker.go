// Package chunker splits a parsed document into token-budgeted,
// context-preserving chunks. For a fixed input and option set the output
// is deterministic: same blocks, same boundaries, always.
package chunker

import (
	"regexp"
	"strings"

	"github.com/wareline/kbcore/internal/model"
)

// OverlapMarker prefixes the carried-over context at the start of every
// chunk after the first. Everything between the marker and the first blank
// line is overlap, not original content.
const OverlapMarker = "[...]"

// Options controls chunking behavior.
type Options struct {
	MaxTokens         int  // Hard per-chunk token ceiling (overlap excluded).
	OverlapTokens     int  // Approximate trailing context carried into the next chunk.
	PreserveStructure bool // Use parsed structure; false falls back to plain paragraphs.
	MinChunkSize      int  // Chunks below this are merged, not emitted standalone.
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		MaxTokens:         500,
		OverlapTokens:     50,
		PreserveStructure: true,
		MinChunkSize:      50,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 500
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = 50
	}
	return o
}

var (
	pageMarkerRe        = regexp.MustCompile(`\[Page (\d+)\]`)
	leadingPageMarkerRe = regexp.MustCompile(`^\[Page (\d+)\]`)
)

// rawChunk is a chunk before index assignment and overlap prefixing.
type rawChunk struct {
	content      string
	tokens       int
	types        []model.BlockType
	sectionTitle string
	sectionPath  string
	page         int // 0 when the document carries no page markers
}

// Chunk splits a parsed document into ordered chunks. Empty documents
// yield zero chunks; documents with no detected structure fall back to
// paragraph-based chunking over the full text with the same rules.
func Chunk(doc *model.ParsedDocument, opts Options) []model.Chunk {
	opts = opts.withDefaults()

	blocks := doc.Structure
	if !opts.PreserveStructure || len(blocks) == 0 {
		blocks = paragraphBlocks(doc.Text)
	}
	if len(blocks) == 0 {
		return nil
	}

	raw := buildRawChunks(blocks, opts)
	raw = mergeSmall(raw, opts)
	return finalize(raw, opts)
}

// paragraphBlocks builds a flat paragraph sequence from plain text, for
// documents with no usable structure.
func paragraphBlocks(text string) []model.StructureBlock {
	var blocks []model.StructureBlock
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		blocks = append(blocks, model.StructureBlock{
			Type:     model.BlockParagraph,
			Content:  p,
			Inferred: true,
		})
	}
	return blocks
}

// buildRawChunks walks blocks in reading order, grouping them into
// heading-delimited sections and accumulating section content against the
// token budget. Page markers embedded in block content update the running
// page attribution.
func buildRawChunks(blocks []model.StructureBlock, opts Options) []rawChunk {
	currentPage := 0
	if hasPageMarkers(blocks) {
		currentPage = 1
	}

	// Breadcrumb stack of ancestor headings.
	var titles []string
	var levels []int

	var raw []rawChunk
	var cur rawChunk
	var parts []string

	flush := func() {
		if len(parts) == 0 {
			return
		}
		cur.content = strings.Join(parts, "\n\n")
		raw = append(raw, cur)
		cur = rawChunk{}
		parts = nil
	}

	for _, b := range blocks {
		if b.Type == model.BlockHeading {
			// A new section starts at every heading; shallower headings
			// truncate the deeper part of the breadcrumb.
			flush()
			for len(levels) > 0 && levels[len(levels)-1] >= b.Level {
				titles = titles[:len(titles)-1]
				levels = levels[:len(levels)-1]
			}
			titles = append(titles, b.Content)
			levels = append(levels, b.Level)
		}

		sectionTitle := ""
		if len(titles) > 0 {
			sectionTitle = titles[len(titles)-1]
		}
		sectionPath := strings.Join(titles, " > ")

		if m := leadingPageMarkerRe.FindStringSubmatch(b.Content); m != nil {
			currentPage = atoiSafe(m[1])
		}
		blockPage := currentPage
		markers := pageMarkerRe.FindAllStringSubmatch(b.Content, -1)
		if len(markers) > 0 {
			currentPage = atoiSafe(markers[len(markers)-1][1])
		}

		for _, piece := range splitOversized(b.Content, opts.MaxTokens) {
			t := EstimateTokens(piece)
			if t == 0 {
				continue
			}
			if cur.tokens > 0 && cur.tokens+t > opts.MaxTokens {
				flush()
			}
			if len(parts) == 0 {
				cur.sectionTitle = sectionTitle
				cur.sectionPath = sectionPath
				cur.page = blockPage
			}
			parts = append(parts, piece)
			cur.tokens += t
			cur.types = appendType(cur.types, b.Type)
		}
	}
	flush()

	return raw
}

// splitOversized breaks a block that alone exceeds the budget, first at
// sentence boundaries and, for sentences still too large, at word
// boundaries. The result pieces each fit within maxTokens.
func splitOversized(text string, maxTokens int) []string {
	if EstimateTokens(text) <= maxTokens {
		return []string{text}
	}

	var parts []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.Join(cur, " "))
			cur = nil
			curTokens = 0
		}
	}

	for _, sent := range SplitSentences(text) {
		st := EstimateTokens(sent)
		if st > maxTokens {
			flush()
			parts = append(parts, splitWords(sent, maxTokens)...)
			continue
		}
		if curTokens+st > maxTokens && curTokens > 0 {
			flush()
		}
		cur = append(cur, sent)
		curTokens += st
	}
	flush()

	return parts
}

// splitWords is the last-resort split for a single sentence larger than
// the whole budget.
func splitWords(text string, maxTokens int) []string {
	words := strings.Fields(text)
	step := maxWordsFor(maxTokens)

	var parts []string
	for start := 0; start < len(words); start += step {
		end := start + step
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[start:end], " "))
	}
	return parts
}

// mergeSmall folds chunks below the minimum size into a neighbor. The
// following chunk is preferred; the preceding one is the fallback when the
// combination would blow the budget. A chunk that fits nowhere is emitted
// standalone rather than dropped.
func mergeSmall(raw []rawChunk, opts Options) []rawChunk {
	i := 0
	for i < len(raw) {
		if raw[i].tokens >= opts.MinChunkSize {
			i++
			continue
		}
		if i+1 < len(raw) && raw[i].tokens+raw[i+1].tokens <= opts.MaxTokens {
			next := raw[i+1]
			next.content = raw[i].content + "\n\n" + next.content
			next.tokens += raw[i].tokens
			next.types = mergeTypes(raw[i].types, next.types)
			if raw[i].page != 0 {
				next.page = raw[i].page
			}
			raw[i+1] = next
			raw = append(raw[:i], raw[i+1:]...)
			continue
		}
		if i > 0 && raw[i-1].tokens+raw[i].tokens <= opts.MaxTokens {
			prev := raw[i-1]
			prev.content = prev.content + "\n\n" + raw[i].content
			prev.tokens += raw[i].tokens
			prev.types = mergeTypes(prev.types, raw[i].types)
			raw[i-1] = prev
			raw = append(raw[:i], raw[i+1:]...)
			continue
		}
		i++
	}
	return raw
}

// finalize assigns dense indexes, prefixes overlap context, and shapes
// the result into persisted chunk records. Overlap is applied after all
// boundaries are final so it never influences split decisions, and the
// stored token estimate covers original content only.
func finalize(raw []rawChunk, opts Options) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(raw))
	for i, rc := range raw {
		content := rc.content
		if i > 0 && opts.OverlapTokens > 0 {
			if tail := overlapTail(raw[i-1].content, opts.OverlapTokens); tail != "" {
				content = OverlapMarker + " " + tail + "\n\n" + content
			}
		}

		var page *int
		if rc.page > 0 {
			p := rc.page
			page = &p
		}

		chunks = append(chunks, model.Chunk{
			ChunkIndex:    i,
			Content:       content,
			ContentType:   contentTypeFor(rc.types),
			SectionTitle:  rc.sectionTitle,
			SectionPath:   rc.sectionPath,
			PageNumber:    page,
			WordCount:     len(strings.Fields(rc.content)),
			TokenEstimate: EstimateTokens(rc.content),
		})
	}
	return chunks
}

// overlapTail pulls trailing sentences from the previous chunk's content,
// walking backward until the overlap budget is reached. Up to 1.5x the
// target is allowed as slack so a sentence is never cut mid-way; a single
// trailing sentence larger than the slack degrades to a word tail.
func overlapTail(prev string, target int) string {
	slack := target + target/2
	sentences := SplitSentences(prev)

	var picked []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		st := EstimateTokens(sentences[i])
		if total == 0 && st > slack {
			words := strings.Fields(sentences[i])
			n := maxWordsFor(target)
			if n > len(words) {
				n = len(words)
			}
			return strings.Join(words[len(words)-n:], " ")
		}
		if total > 0 && total+st > slack {
			break
		}
		picked = append([]string{sentences[i]}, picked...)
		total += st
		if total >= target {
			break
		}
	}
	return strings.Join(picked, " ")
}

func contentTypeFor(types []model.BlockType) model.ContentType {
	if len(types) != 1 {
		return model.ContentMixed
	}
	switch types[0] {
	case model.BlockHeading:
		return model.ContentHeading
	case model.BlockList:
		return model.ContentList
	case model.BlockTable:
		return model.ContentTable
	case model.BlockCode:
		return model.ContentCode
	default:
		return model.ContentText
	}
}

func appendType(types []model.BlockType, t model.BlockType) []model.BlockType {
	for _, existing := range types {
		if existing == t {
			return types
		}
	}
	return append(types, t)
}

func mergeTypes(a, b []model.BlockType) []model.BlockType {
	out := append([]model.BlockType(nil), a...)
	for _, t := range b {
		out = appendType(out, t)
	}
	return out
}

func hasPageMarkers(blocks []model.StructureBlock) bool {
	for _, b := range blocks {
		if pageMarkerRe.MatchString(b.Content) {
			return true
		}
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
