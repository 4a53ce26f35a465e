package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
)

// DefaultWriteBatchSize caps the chunk records written per transaction.
const DefaultWriteBatchSize = 500

var (
	bucketDocuments = []byte("documents")
	bucketChunks    = []byte("chunks")
	bucketMeta      = []byte("meta")
)

// BoltStore keeps one record per document in the documents bucket and
// each document's chunks in a nested bucket under chunks/<doc_id>.
type BoltStore struct {
	db             *bbolt.DB
	writeBatchSize int
}

func NewBoltStore(path string, writeBatchSize int) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, domain.NewStoreError("open", fmt.Errorf("failed to open bolt db: %w", err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketChunks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, domain.NewStoreError("open", err)
	}

	if writeBatchSize <= 0 {
		writeBatchSize = DefaultWriteBatchSize
	}
	return &BoltStore{db: db, writeBatchSize: writeBatchSize}, nil
}

type docRecord struct {
	Name            string    `json:"doc_name"`
	SourceURI       string    `json:"source_uri"`
	FileType        string    `json:"file_type"`
	TotalChunks     int       `json:"total_chunks"`
	TotalCharacters int       `json:"total_characters,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type chunkRecord struct {
	DocID        string     `json:"doc_id"`
	Index        int        `json:"chunk_index"`
	Text         string     `json:"text"`
	Embedding    []float32  `json:"embedding"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

func (s *BoltStore) PutDocument(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("put document", err)
	}
	if err := doc.Validate(); err != nil {
		return domain.NewStoreError("put document", err)
	}

	data, err := json.Marshal(docRecord{
		Name:            doc.Name,
		SourceURI:       doc.SourceURI,
		FileType:        doc.FileType,
		TotalChunks:     doc.TotalChunks,
		TotalCharacters: doc.TotalCharacters,
		CreatedAt:       doc.CreatedAt,
	})
	if err != nil {
		return domain.NewStoreError("put document", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(doc.ID), data)
	})
	if err != nil {
		return domain.NewStoreError("put document", err)
	}
	return nil
}

func (s *BoltStore) GetDocument(ctx context.Context, docID string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, domain.NewStoreError("get document", err)
	}

	var (
		doc   domain.Document
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(docID))
		if data == nil {
			return nil
		}
		found = true
		var err error
		doc, err = decodeDocument(docID, data)
		return err
	})
	if err != nil {
		return domain.Document{}, domain.NewStoreError("get document", err)
	}
	if !found {
		return domain.Document{}, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *BoltStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("list documents", err)
	}

	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			doc, err := decodeDocument(string(k), v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, domain.NewStoreError("list documents", err)
	}
	return docs, nil
}

func decodeDocument(id string, data []byte) (domain.Document, error) {
	var rec docRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Document{}, fmt.Errorf("corrupt document %s: %w", id, err)
	}
	doc := domain.Document{
		ID:              id,
		Name:            rec.Name,
		SourceURI:       rec.SourceURI,
		FileType:        rec.FileType,
		TotalChunks:     rec.TotalChunks,
		TotalCharacters: rec.TotalCharacters,
		CreatedAt:       rec.CreatedAt,
	}
	return doc, doc.Validate()
}

// PutChunks writes chunks in transactions of at most writeBatchSize
// records. Every chunk must share the corpus embedding dimension.
func (s *BoltStore) PutChunks(ctx context.Context, docID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("put chunks", err)
	}

	dim := len(chunks[0].Embedding)
	for _, c := range chunks {
		if c.DocID != docID {
			return domain.NewStoreError("put chunks", fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocID, docID))
		}
		if err := c.Validate(); err != nil {
			return domain.NewStoreError("put chunks", err)
		}
		if len(c.Embedding) != dim {
			return domain.NewStoreError("put chunks", fmt.Errorf("chunk %s has dimension %d, batch has %d", c.ID, len(c.Embedding), dim))
		}
	}
	if err := s.ensureDimension(dim); err != nil {
		return domain.NewStoreError("put chunks", err)
	}

	for start := 0; start < len(chunks); start += s.writeBatchSize {
		if err := ctx.Err(); err != nil {
			return domain.NewStoreError("put chunks", err)
		}
		end := start + s.writeBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.writeChunkBatch(docID, chunks[start:end]); err != nil {
			return domain.NewStoreError(fmt.Sprintf("put chunks %d-%d", start, end), err)
		}
	}
	return nil
}

func (s *BoltStore) writeChunkBatch(docID string, batch []domain.Chunk) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketChunks).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return err
		}
		for _, c := range batch {
			data, err := json.Marshal(chunkRecord{
				DocID:        c.DocID,
				Index:        c.Index,
				Text:         c.Text,
				Embedding:    c.Embedding,
				AccessCount:  c.AccessCount,
				LastAccessed: c.LastAccessed,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(c.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get chunks", err)
	}

	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks).Bucket([]byte(docID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			c, err := decodeChunk(string(k), v)
			if err != nil {
				return err
			}
			chunks = append(chunks, c)
			return nil
		})
	})
	if err != nil {
		return nil, domain.NewStoreError("get chunks", err)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks, nil
}

func decodeChunk(id string, data []byte) (domain.Chunk, error) {
	var rec chunkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Chunk{}, fmt.Errorf("corrupt chunk %s: %w", id, err)
	}
	c := domain.Chunk{
		ID:           id,
		DocID:        rec.DocID,
		Index:        rec.Index,
		Text:         rec.Text,
		Embedding:    rec.Embedding,
		AccessCount:  rec.AccessCount,
		LastAccessed: rec.LastAccessed,
	}
	return c, c.Validate()
}

// IncrementAccess updates every referenced chunk in a single transaction.
func (s *BoltStore) IncrementAccess(ctx context.Context, refs []domain.ChunkRef, at time.Time) error {
	if len(refs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("increment access", err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		for _, ref := range refs {
			b := chunks.Bucket([]byte(ref.DocID))
			if b == nil {
				continue
			}
			data := b.Get([]byte(ref.ChunkID))
			if data == nil {
				continue
			}
			var rec chunkRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("corrupt chunk %s: %w", ref.ChunkID, err)
			}
			rec.AccessCount++
			accessed := at
			rec.LastAccessed = &accessed

			updated, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(ref.ChunkID), updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError("increment access", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
