package domain

import (
	"errors"
	"time"
)

// EmptyResponse is returned as the answer text when retrieval finds nothing.
const EmptyResponse = "Empty Response"

var (
	ErrNoDocuments       = errors.New("no documents found")
	ErrEmptyIndex        = errors.New("index is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyEmbedding    = errors.New("embedding server returned no vectors")
)

// Document is a file loaded from the input directory.
type Document struct {
	ID       string
	Path     string
	Text     string
	ModTime  time.Time
	Size     int64
	Metadata map[string]string
}

type Chunk struct {
	ID        string
	DocID     string
	Path      string
	StartLine int
	EndLine   int
	Text      string
}

// EmbedText is the text sent to the embedding model: the file path header
// followed by the chunk body.
func (c Chunk) EmbedText() string {
	return c.withHeader()
}

// ContextText is the text placed in the LLM prompt for this chunk.
func (c Chunk) ContextText() string {
	return c.withHeader()
}

func (c Chunk) withHeader() string {
	if c.Path == "" {
		return c.Text
	}
	return "file_path: " + c.Path + "\n\n" + c.Text
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Answer is the synthesized response to a query.
type Answer struct {
	Query    string        `json:"query"`
	Response string        `json:"response"`
	Sources  []ScoredChunk `json:"-"`
}

func (a Answer) String() string {
	return a.Response
}

// IndexStats describes a built index.
type IndexStats struct {
	Documents int
	Chunks    int
	Dimension int
}
