package tokenizer

import (
	"strings"
)

// CountTokens provides a rough token count estimate.
// For production, use tiktoken-go for exact counts.
func CountTokens(text string) int {
	// Rough estimate: ~4 chars per token for English
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}

// Truncate trims text to approximately budget tokens, cutting at a word
// boundary. Text already within budget is returned unchanged.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if CountTokens(text) <= budget {
		return text
	}
	words := strings.Fields(text)
	keep := budget * 3 / 4
	if keep >= len(words) {
		return text
	}
	if keep < 1 {
		keep = 1
	}
	return strings.Join(words[:keep], " ")
}
