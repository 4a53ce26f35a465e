package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer splits text into lowercase, accent-folded terms with
// stopwords removed.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: defaultStopwords()}
}

// Tokenize splits text into tokens in input order.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(Fold(text))
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Terms returns the distinct tokens of text.
func (t *Tokenizer) Terms(text string) map[string]struct{} {
	tokens := t.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// Fold lowercases text and strips diacritics, so "Retención" and
// "retencion" compare equal.
func Fold(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns common Spanish and English stopwords, already
// folded.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		// es
		"el", "la", "los", "las", "un", "una", "unos", "unas", "de", "del",
		"al", "en", "por", "para", "con", "sin", "que", "se", "su", "sus",
		"es", "son", "fue", "ser", "como", "mas", "pero", "lo", "le", "les",
		"y", "o", "u", "ni", "si", "no", "ya", "este", "esta", "estos",
		"estas", "ese", "esa", "cual", "cuales", "donde", "cuando", "hay",
		// en
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"what", "which", "who", "how", "or", "not", "do", "does",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
