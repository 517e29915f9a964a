package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"localrag/internal/domain"
	"localrag/internal/port"
)

// LineChunker groups lines into chunks under a token budget. Lines that
// exceed the budget on their own are broken into sentences, then words.
type LineChunker struct {
	maxTokens int
	overlap   int
	tokenizer port.Tokenizer
}

func NewLineChunker(maxTokens, overlap int, tokenizer port.Tokenizer) *LineChunker {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

// unit is the smallest piece the chunker moves around: a line or a
// fragment of an oversized line.
type unit struct {
	text   string
	line   int
	tokens int
	cont   bool // continues the previous unit's line
}

func (c *LineChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	units := c.split(doc.Text)

	var chunks []domain.Chunk
	start := 0

	for start < len(units) {
		end := start
		currentTokens := 0
		var chunkText strings.Builder

		for end < len(units) {
			u := units[end]
			if currentTokens > 0 && currentTokens+u.tokens > c.maxTokens {
				break
			}
			if end > start {
				if u.cont {
					chunkText.WriteString(" ")
				} else {
					chunkText.WriteString("\n")
				}
			}
			chunkText.WriteString(u.text)
			currentTokens += u.tokens
			end++
		}

		text := chunkText.String()
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:        generateChunkID(doc.ID, start, end),
				DocID:     doc.ID,
				Path:      doc.Path,
				StartLine: units[start].line + 1,
				EndLine:   units[end-1].line + 1,
				Text:      text,
			})
		}

		if end >= len(units) {
			break
		}

		newStart := end - c.overlapUnits(units, start, end)
		if newStart <= start {
			newStart = end
		}
		start = newStart
	}

	return chunks, nil
}

// overlapUnits returns how many trailing units of [start, end) fit in the
// overlap budget.
func (c *LineChunker) overlapUnits(units []unit, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	n := 0
	tokens := 0
	for i := end - 1; i > start; i-- {
		if tokens+units[i].tokens > c.overlap {
			break
		}
		tokens += units[i].tokens
		n++
	}
	return n
}

func (c *LineChunker) split(content string) []unit {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	units := make([]unit, 0, len(lines))

	for i, line := range lines {
		tokens := c.tokenizer.CountTokens(line)
		if tokens <= c.maxTokens {
			units = append(units, unit{text: line, line: i, tokens: tokens})
			continue
		}

		first := true
		for _, sentence := range splitSentences(line) {
			for _, piece := range c.splitToBudget(sentence) {
				units = append(units, unit{
					text:   piece,
					line:   i,
					tokens: c.tokenizer.CountTokens(piece),
					cont:   !first,
				})
				first = false
			}
		}
	}

	return units
}

// splitToBudget breaks text on word boundaries into pieces that fit the budget.
func (c *LineChunker) splitToBudget(text string) []string {
	if c.tokenizer.CountTokens(text) <= c.maxTokens {
		return []string{text}
	}

	var pieces []string
	var current []string
	for _, word := range strings.Fields(text) {
		candidate := append(current, word)
		if len(current) > 0 && c.tokenizer.CountTokens(strings.Join(candidate, " ")) > c.maxTokens {
			pieces = append(pieces, strings.Join(current, " "))
			current = []string{word}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	begin := 0

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
				if s := strings.TrimSpace(string(runes[begin : i+1])); s != "" {
					sentences = append(sentences, s)
				}
				begin = i + 1
			}
		}
	}
	if s := strings.TrimSpace(string(runes[begin:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func generateChunkID(docID string, startUnit, endUnit int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, startUnit, endUnit)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
