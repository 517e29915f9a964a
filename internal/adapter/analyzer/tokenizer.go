package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer estimates LLM token counts for budget decisions.
type Tokenizer struct {
	ratio float64
}

// NewTokenizer creates a Tokenizer using the default words-to-tokens ratio.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{ratio: 1.3}
}

// CountTokens returns an approximate token count for LLM budget estimation.
// Average English word is about 1.3 tokens; punctuation runs count once.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	punct := countPunctuation(text)
	if len(words) == 0 && punct == 0 {
		return 0
	}
	n := int(float64(len(words))*t.ratio) + punct
	if n == 0 {
		n = 1
	}
	return n
}

// Words splits text into words using unicode word boundaries.
func (t *Tokenizer) Words(text string) []string {
	return splitWords(text)
}

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

func countPunctuation(text string) int {
	n := 0
	inRun := false
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if !inRun {
				n++
			}
			inRun = true
			continue
		}
		inRun = false
	}
	return n
}
