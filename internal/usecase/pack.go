package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// contextSeparator divides formatted contexts in ContextsText.
const contextSeparator = "\n\n---\n\n"

// PackContexts formats ranked contexts into one prompt-ready block, in
// rank order. With maxChars > 0 it stops before the first context that
// would overflow the budget; the top context is always kept.
func PackContexts(contexts []Context, maxChars int) string {
	var b strings.Builder
	used := 0

	for i, c := range contexts {
		block := formatContext(c)
		cost := utf8.RuneCountInString(block)
		if i > 0 {
			cost += utf8.RuneCountInString(contextSeparator)
		}
		if maxChars > 0 && i > 0 && used+cost > maxChars {
			break
		}
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(block)
		used += cost
	}

	return b.String()
}

func formatContext(c Context) string {
	score := c.SimilarityScore
	label := "score"
	if c.FinalScore != nil {
		score = *c.FinalScore
		label = "final score"
	}
	return fmt.Sprintf("[%s] (chunk %d, %s %.3f)\n%s", c.DocName, c.ChunkIndex, label, score, c.Text)
}
