package domain

import (
	"fmt"
	"time"
)

// Document is the metadata record of an indexed source file.
type Document struct {
	ID              string    `json:"doc_id"`
	Name            string    `json:"doc_name"`
	SourceURI       string    `json:"source_uri"`
	FileType        string    `json:"file_type"`
	TotalChunks     int       `json:"total_chunks"`
	TotalCharacters int       `json:"total_characters,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Chunk is an embedded slice of a document's extracted text.
type Chunk struct {
	ID           string     `json:"chunk_id"`
	DocID        string     `json:"doc_id"`
	Index        int        `json:"chunk_index"`
	Text         string     `json:"text"`
	Embedding    []float32  `json:"embedding"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// ChunkRef addresses a single chunk inside its owning document.
type ChunkRef struct {
	DocID   string
	ChunkID string
}

// ScoredChunk is a chunk ranked against a query.
type ScoredChunk struct {
	Chunk      Chunk
	Doc        Document
	Similarity float64
	// FinalScore and OracleScore are set only when the re-ranking stage
	// produced the ordering.
	FinalScore  *float64
	OracleScore *int
}

// Ref returns the store address of the scored chunk.
func (s ScoredChunk) Ref() ChunkRef {
	return ChunkRef{DocID: s.Chunk.DocID, ChunkID: s.Chunk.ID}
}

// Snapshot is an immutable view of all document metadata at a point in time.
type Snapshot struct {
	Docs      map[string]Document
	Timestamp time.Time
}

// Documents returns the snapshot's documents in map iteration order.
func (s *Snapshot) Documents() []Document {
	if s == nil {
		return nil
	}
	docs := make([]Document, 0, len(s.Docs))
	for _, d := range s.Docs {
		docs = append(docs, d)
	}
	return docs
}

// Len returns the number of documents in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Docs)
}

// ChunkID derives the deterministic identifier of a document's chunk.
// Re-writing a chunk under the same id is idempotent.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}

// Validate checks the fields a stored document must carry.
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document has empty doc_id")
	}
	if d.Name == "" {
		return fmt.Errorf("document %s has empty doc_name", d.ID)
	}
	if d.TotalChunks < 0 {
		return fmt.Errorf("document %s has negative total_chunks", d.ID)
	}
	return nil
}

// Validate checks the fields a stored chunk must carry.
func (c Chunk) Validate() error {
	if c.ID == "" || c.DocID == "" {
		return fmt.Errorf("chunk is missing chunk_id or doc_id")
	}
	if c.Index < 0 {
		return fmt.Errorf("chunk %s has negative chunk_index", c.ID)
	}
	if c.Text == "" {
		return fmt.Errorf("chunk %s has empty text", c.ID)
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("chunk %s has no embedding", c.ID)
	}
	if c.AccessCount < 0 {
		return fmt.Errorf("chunk %s has negative access_count", c.ID)
	}
	return nil
}
