package chunker

import (
	"strings"
	"testing"

	"localrag/internal/adapter/analyzer"
	"localrag/internal/domain"
)

func newDoc(content string) domain.Document {
	return domain.Document{
		ID:   "doc1",
		Path: "/docs/villains.txt",
		Text: content,
	}
}

func TestLineChunkerBasic(t *testing.T) {
	chunker := NewLineChunker(50, 10, analyzer.NewTokenizer())

	content := `Villain report, week 42.

Doctor Vex was sighted near the harbor on Monday.
The Gray Baron has not been seen since the museum heist.

Captain Null remains in custody.`

	chunks, err := chunker.Chunk(newDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	for _, chunk := range chunks {
		if chunk.ID == "" {
			t.Error("chunk has empty ID")
		}
		if chunk.DocID != "doc1" {
			t.Errorf("expected DocID 'doc1', got '%s'", chunk.DocID)
		}
		if chunk.Path != "/docs/villains.txt" {
			t.Errorf("expected path to propagate, got '%s'", chunk.Path)
		}
		if chunk.StartLine < 1 {
			t.Errorf("invalid StartLine: %d", chunk.StartLine)
		}
		if chunk.EndLine < chunk.StartLine {
			t.Errorf("EndLine (%d) < StartLine (%d)", chunk.EndLine, chunk.StartLine)
		}
		if chunk.Text == "" {
			t.Error("chunk has empty text")
		}
	}
}

func TestLineChunkerBoundaries(t *testing.T) {
	tokenizer := analyzer.NewTokenizer()
	chunker := NewLineChunker(10, 2, tokenizer)

	lines := []string{
		"Line one",
		"Line two",
		"Line three",
		"Line four",
		"Line five",
		"Line six",
		"Line seven",
		"Line eight",
	}

	chunks, err := chunker.Chunk(newDoc(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	for _, chunk := range chunks {
		if n := tokenizer.CountTokens(chunk.Text); n > 10 {
			t.Errorf("chunk exceeds budget: %d tokens", n)
		}
	}

	for _, line := range lines {
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk.Text, line) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("line '%s' not found in any chunk", line)
		}
	}
}

func TestLineChunkerOverlap(t *testing.T) {
	chunker := NewLineChunker(2, 1, analyzer.NewTokenizer())

	chunks, err := chunker.Chunk(newDoc("Line1\nLine2\nLine3\nLine4\nLine5"))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	for i := 0; i < len(chunks)-1; i++ {
		current := chunks[i]
		next := chunks[i+1]

		if next.StartLine > current.EndLine {
			t.Errorf("no overlap between chunk %d (ends at %d) and chunk %d (starts at %d)",
				i, current.EndLine, i+1, next.StartLine)
		}
	}

	last := chunks[len(chunks)-1]
	if last.EndLine != 5 {
		t.Errorf("expected last chunk to end at line 5, got %d", last.EndLine)
	}
}

func TestLineChunkerNoOverlap(t *testing.T) {
	chunker := NewLineChunker(2, 0, analyzer.NewTokenizer())

	chunks, err := chunker.Chunk(newDoc("Line1\nLine2\nLine3\nLine4"))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].StartLine != 3 {
		t.Errorf("expected second chunk to start at line 3, got %d", chunks[1].StartLine)
	}
}

func TestLineChunkerEmptyContent(t *testing.T) {
	chunker := NewLineChunker(50, 10, analyzer.NewTokenizer())

	for _, content := range []string{"", "   \n\n\t"} {
		chunks, err := chunker.Chunk(newDoc(content))
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected 0 chunks for %q, got %d", content, len(chunks))
		}
	}
}

func TestLineChunkerSingleLine(t *testing.T) {
	chunker := NewLineChunker(50, 10, analyzer.NewTokenizer())

	content := "Just a single line of text"

	chunks, err := chunker.Chunk(newDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for single line, got %d", len(chunks))
	}

	if chunks[0].Text != content {
		t.Errorf("expected chunk text to match content")
	}

	if chunks[0].StartLine != 1 || chunks[0].EndLine != 1 {
		t.Errorf("expected lines 1-1, got %d-%d", chunks[0].StartLine, chunks[0].EndLine)
	}
}

func TestLineChunkerLongLine(t *testing.T) {
	tokenizer := analyzer.NewTokenizer()
	chunker := NewLineChunker(5, 0, tokenizer)

	content := "This is a very long line with many many words that will exceed the token limit"

	chunks, err := chunker.Chunk(newDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected oversized line split into 4 chunks, got %d", len(chunks))
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
		if n := tokenizer.CountTokens(chunk.Text); n > 5 {
			t.Errorf("chunk %d exceeds budget: %d tokens", i, n)
		}
		if chunk.StartLine != 1 || chunk.EndLine != 1 {
			t.Errorf("chunk %d: expected lines 1-1, got %d-%d", i, chunk.StartLine, chunk.EndLine)
		}
	}

	if strings.Join(texts, " ") != content {
		t.Errorf("split chunks do not reassemble the line: %q", strings.Join(texts, " "))
	}
}

func TestLineChunkerSentenceSplit(t *testing.T) {
	tokenizer := analyzer.NewTokenizer()
	chunker := NewLineChunker(8, 0, tokenizer)

	content := "Vex robbed the bank. Baron fled north. Nobody saw the third one coming at all."

	chunks, err := chunker.Chunk(newDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) < 3 {
		t.Fatalf("expected sentence-level chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "Vex robbed the bank." {
		t.Errorf("expected first sentence as first chunk, got %q", chunks[0].Text)
	}
	if chunks[1].Text != "Baron fled north." {
		t.Errorf("expected second sentence as second chunk, got %q", chunks[1].Text)
	}
	for i, chunk := range chunks {
		if n := tokenizer.CountTokens(chunk.Text); n > 8 {
			t.Errorf("chunk %d exceeds budget: %d tokens", i, n)
		}
	}
}

func TestLineChunkerCRLF(t *testing.T) {
	chunker := NewLineChunker(50, 0, analyzer.NewTokenizer())

	chunks, err := chunker.Chunk(newDoc("first\r\nsecond"))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Text != "first\nsecond" {
		t.Errorf("expected CRLF normalized, got %+v", chunks)
	}
	if chunks[0].EndLine != 2 {
		t.Errorf("expected EndLine 2, got %d", chunks[0].EndLine)
	}
}

func TestChunkIDUniqueness(t *testing.T) {
	chunker := NewLineChunker(3, 1, analyzer.NewTokenizer())

	content := "Line1\nLine2\nLine3\nLine4\nLine5\nLine6\nLine7\nLine8"

	chunks, err := chunker.Chunk(newDoc(content))
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool)
	for _, chunk := range chunks {
		if ids[chunk.ID] {
			t.Errorf("duplicate chunk ID: %s", chunk.ID)
		}
		ids[chunk.ID] = true
	}
}

func TestChunkEmbedTextHeader(t *testing.T) {
	chunker := NewLineChunker(50, 0, analyzer.NewTokenizer())

	chunks, err := chunker.Chunk(newDoc("Doctor Vex"))
	if err != nil {
		t.Fatal(err)
	}
	want := "file_path: /docs/villains.txt\n\nDoctor Vex"
	if got := chunks[0].EmbedText(); got != want {
		t.Errorf("EmbedText() = %q, want %q", got, want)
	}
}
