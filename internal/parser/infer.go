package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/wareline/kbcore/internal/model"
)

// Heuristic structure inference for formats with no document object model
// (PDF text, legacy Word). Every block produced here is tagged Inferred so
// downstream consumers treat the headings as advisory only.

var (
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)
	bulletRe          = regexp.MustCompile(`^([-*•]|\d+[.)])\s+`)
	pageMarkerRe      = regexp.MustCompile(`^\[Page \d+\]$`)
)

const maxHeadingLen = 80

// InferStructure recovers an approximate block sequence from flat text.
// Short, all-caps, or numbered lines with no terminal punctuation become
// headings; runs of bullet/number-marker lines become lists; everything
// else groups into paragraphs on blank lines.
func InferStructure(text string) []model.StructureBlock {
	var blocks []model.StructureBlock
	var para []string

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		blocks = append(blocks, model.StructureBlock{
			Type:     model.BlockParagraph,
			Content:  strings.Join(para, "\n"),
			Inferred: true,
		})
		para = nil
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			flushPara()
			continue
		}

		if pageMarkerRe.MatchString(line) {
			flushPara()
			blocks = append(blocks, model.StructureBlock{
				Type:     model.BlockParagraph,
				Content:  line,
				Inferred: true,
			})
			continue
		}

		if bulletRe.MatchString(line) {
			flushPara()
			items := []string{line}
			for i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if next == "" || !bulletRe.MatchString(next) {
					break
				}
				i++
				items = append(items, next)
			}
			blocks = append(blocks, model.StructureBlock{
				Type:     model.BlockList,
				Content:  strings.Join(items, "\n"),
				Inferred: true,
			})
			continue
		}

		if level, ok := headingLevel(line); ok {
			flushPara()
			blocks = append(blocks, model.StructureBlock{
				Type:     model.BlockHeading,
				Level:    level,
				Content:  line,
				Inferred: true,
			})
			continue
		}

		para = append(para, line)
	}
	flushPara()

	return blocks
}

// headingLevel reports whether a line reads like a heading and, when it
// does, how deep it nests. Numbered headings nest by their dotted depth;
// all-caps lines are treated as top-level; other short lines as level 2.
func headingLevel(line string) (int, bool) {
	if len(line) > maxHeadingLen || hasTerminalPunctuation(line) {
		return 0, false
	}

	if numberedHeadingRe.MatchString(line) {
		prefix := strings.Fields(line)[0]
		depth := strings.Count(strings.TrimSuffix(prefix, "."), ".") + 1
		if depth > 6 {
			depth = 6
		}
		return depth, true
	}

	if isAllCaps(line) {
		return 1, true
	}

	// Short standalone lines without terminal punctuation are likely
	// headings, but only when they are genuinely short.
	if countWords(line) <= 8 && len(line) <= 60 && startsUpper(line) {
		return 2, true
	}

	return 0, false
}

func hasTerminalPunctuation(line string) bool {
	r := []rune(line)
	switch r[len(r)-1] {
	case '.', '!', '?', ',', ';', ':':
		return true
	}
	return false
}

func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

func startsUpper(line string) bool {
	for _, r := range line {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
	}
	return false
}
