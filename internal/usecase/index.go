package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docrag/internal/domain"
	"docrag/internal/logging"
	"docrag/internal/port"
)

// minContentChars is the shortest extracted text worth indexing.
const minContentChars = 10

// IndexOptions tunes an IndexUseCase.
type IndexOptions struct {
	EmbedBatchSize     int
	InterDocumentDelay time.Duration
}

// IndexUseCase turns source files into stored, embedded chunks.
type IndexUseCase struct {
	reader    port.BlobReader
	extractor port.TextExtractor
	chunker   port.Chunker
	embedder  port.Embedder
	store     port.DocumentStore
	walker    port.FileWalker
	metadata  port.MetadataSource
	opts      IndexOptions
	logger    *slog.Logger

	newID func() string
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIndexUseCase creates a new index use case. walker and metadata may be
// nil when only single documents are indexed and no cache is shared.
func NewIndexUseCase(
	reader port.BlobReader,
	extractor port.TextExtractor,
	chunker port.Chunker,
	embedder port.Embedder,
	store port.DocumentStore,
	walker port.FileWalker,
	metadata port.MetadataSource,
	opts IndexOptions,
	logger *slog.Logger,
) *IndexUseCase {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 5
	}
	return &IndexUseCase{
		reader:    reader,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		walker:    walker,
		metadata:  metadata,
		opts:      opts,
		logger:    logging.OrDefault(logger),
		newID:     uuid.NewString,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// IndexResult is the outcome of indexing one document.
type IndexResult struct {
	OK            bool   `json:"ok"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	DocID         string `json:"doc_id,omitempty"`
	DocName       string `json:"doc_name,omitempty"`
	ChunksCreated int    `json:"chunks_created"`
	SourceURI     string `json:"source_uri,omitempty"`
	Path          string `json:"path,omitempty"`
}

// IndexDocument reads, extracts, chunks, embeds and stores one source
// file. A failure at any stage leaves no visible document behind; the
// whole document can be retried.
func (u *IndexUseCase) IndexDocument(ctx context.Context, sourcePath, displayName string) (result IndexResult) {
	result.Path = sourcePath
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("indexing panicked", "path", sourcePath, "panic", r)
			result = IndexResult{
				Status:    "Error",
				Message:   fmt.Sprintf("internal error: %v", r),
				ErrorKind: "internal",
				Path:      sourcePath,
			}
		}
	}()

	docName := displayName
	if docName == "" {
		docName = filepath.Base(sourcePath)
	}
	result.DocName = docName

	doc, chunks, err := u.indexDocument(ctx, sourcePath, docName)
	if err != nil {
		u.logger.Warn("document not indexed", "path", sourcePath, "error", err)
		result.Status = "Error"
		result.Message = err.Error()
		result.ErrorKind = domain.ErrorKind(err)
		return result
	}

	if u.metadata != nil {
		u.metadata.Invalidate()
	}

	u.logger.Info("document indexed",
		"doc_id", doc.ID,
		"doc_name", doc.Name,
		"chunks", chunks)

	result.OK = true
	result.Status = "Indexed"
	result.Message = fmt.Sprintf("%d chunks created", chunks)
	result.DocID = doc.ID
	result.ChunksCreated = chunks
	result.SourceURI = doc.SourceURI
	return result
}

func (u *IndexUseCase) indexDocument(ctx context.Context, sourcePath, docName string) (domain.Document, int, error) {
	blob, err := u.reader.Read(ctx, sourcePath)
	if err != nil {
		return domain.Document{}, 0, fmt.Errorf("failed to read %s: %w", sourcePath, err)
	}

	text, err := u.extractor.Extract(blob.Content, blob.FileType)
	if err != nil {
		return domain.Document{}, 0, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minContentChars {
		return domain.Document{}, 0, domain.NewExtractionError(blob.FileType, "document is empty or has too little content", nil)
	}
	u.logger.Debug("text extracted", "path", sourcePath, "characters", utf8.RuneCountInString(text))

	pieces := u.chunker.Chunk(text)
	if len(pieces) == 0 {
		return domain.Document{}, 0, domain.NewExtractionError(blob.FileType, "no chunks could be produced", nil)
	}

	vectors, err := u.embedAll(ctx, pieces)
	if err != nil {
		return domain.Document{}, 0, err
	}

	doc := domain.Document{
		ID:              u.newID(),
		Name:            docName,
		SourceURI:       blob.URI,
		FileType:        blob.FileType,
		TotalChunks:     len(pieces),
		TotalCharacters: utf8.RuneCountInString(text),
		CreatedAt:       u.now().UTC(),
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			ID:        domain.ChunkID(doc.ID, i),
			DocID:     doc.ID,
			Index:     i,
			Text:      piece,
			Embedding: vectors[i],
		}
	}

	// chunks first: a document record is only visible once its chunks exist
	if err := u.store.PutChunks(ctx, doc.ID, chunks); err != nil {
		return domain.Document{}, 0, err
	}
	if err := u.store.PutDocument(ctx, doc); err != nil {
		return domain.Document{}, 0, err
	}
	return doc, len(chunks), nil
}

// embedAll embeds pieces in small synchronous batches.
func (u *IndexUseCase) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(pieces))
	batches := (len(pieces) + u.opts.EmbedBatchSize - 1) / u.opts.EmbedBatchSize

	for start := 0; start < len(pieces); start += u.opts.EmbedBatchSize {
		end := start + u.opts.EmbedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := u.embedder.Embed(ctx, pieces[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, domain.NewEmbeddingError("embed chunks", fmt.Errorf("expected %d vectors, got %d", end-start, len(batch)))
		}
		vectors = append(vectors, batch...)
		u.logger.Debug("embedding batch done", "batch", start/u.opts.EmbedBatchSize+1, "of", batches)
	}
	return vectors, nil
}

// CorpusProgress reports each finished document of a corpus run.
type CorpusProgress struct {
	Done   int
	Total  int
	Result IndexResult
}

// CorpusResult summarises a corpus run.
type CorpusResult struct {
	OK          bool          `json:"ok"`
	Processed   int           `json:"processed"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	TotalChunks int           `json:"total_chunks"`
	Cancelled   bool          `json:"cancelled,omitempty"`
	Message     string        `json:"message,omitempty"`
	Results     []IndexResult `json:"results"`
}

// IndexCorpus indexes every matching file under root. A failed document is
// recorded and the run moves on; cancellation stops it between documents.
func (u *IndexUseCase) IndexCorpus(ctx context.Context, root string, progress func(CorpusProgress)) CorpusResult {
	if u.walker == nil {
		return CorpusResult{Message: "no file walker configured"}
	}

	files, err := u.walker.Walk(root)
	if err != nil {
		return CorpusResult{Message: fmt.Sprintf("failed to walk directory: %v", err)}
	}
	if len(files) == 0 {
		return CorpusResult{OK: true, Message: "no files to index"}
	}

	u.logger.Info("indexing corpus", "root", root, "files", len(files))

	res := CorpusResult{Total: len(files)}
	for i, file := range files {
		if i > 0 && u.opts.InterDocumentDelay > 0 {
			if err := u.sleep(ctx, u.opts.InterDocumentDelay); err != nil {
				res.Cancelled = true
				break
			}
		}
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		r := u.IndexDocument(ctx, file.Path, "")
		res.Processed++
		res.Results = append(res.Results, r)
		if r.OK {
			res.Succeeded++
			res.TotalChunks += r.ChunksCreated
		} else {
			res.Failed++
		}

		if progress != nil {
			progress(CorpusProgress{Done: res.Processed, Total: res.Total, Result: r})
		}
	}

	res.OK = !res.Cancelled
	res.Message = fmt.Sprintf("%d of %d documents indexed, %d failed", res.Succeeded, res.Total, res.Failed)
	if res.Cancelled {
		res.Message += " (cancelled)"
	}

	u.logger.Info("corpus indexing finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"chunks", res.TotalChunks)
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
