package chunker

import (
	"math"
	"strings"
)

// EstimateTokens gives a rough token count: word count x 1.3, rounded up.
// Not a real tokenizer. The formula is load-bearing: chunk boundaries
// downstream depend on it staying exactly this.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.3))
}

// maxWordsFor returns how many words fit in a token budget under the
// same estimate.
func maxWordsFor(tokens int) int {
	n := int(float64(tokens) / 1.3)
	if n < 1 {
		n = 1
	}
	return n
}

// SplitSentences does basic sentence splitting on terminal punctuation
// followed by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
