package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by point reads for a missing record.
var ErrNotFound = errors.New("not found")

// ExtractionError indicates an unsupported or corrupt source.
type ExtractionError struct {
	FileType string
	Reason   string
	cause    error
}

func NewExtractionError(fileType, reason string, cause error) *ExtractionError {
	return &ExtractionError{FileType: fileType, Reason: reason, cause: cause}
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction failed for %q: %s", e.FileType, e.Reason)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.cause }

// EmbeddingError indicates the embedding service failed or returned a
// malformed batch.
type EmbeddingError struct {
	Op    string
	cause error
}

func NewEmbeddingError(op string, cause error) *EmbeddingError {
	return &EmbeddingError{Op: op, cause: cause}
}

func (e *EmbeddingError) Error() string {
	if e.cause == nil {
		return "embedding " + e.Op + " failed"
	}
	return fmt.Sprintf("embedding %s failed: %v", e.Op, e.cause)
}

func (e *EmbeddingError) Unwrap() error { return e.cause }

// StoreError indicates a read or write failure against the document store.
type StoreError struct {
	Op    string
	cause error
}

func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{Op: op, cause: cause}
}

func (e *StoreError) Error() string {
	if e.cause == nil {
		return "store " + e.Op + " failed"
	}
	return fmt.Sprintf("store %s failed: %v", e.Op, e.cause)
}

func (e *StoreError) Unwrap() error { return e.cause }

// NotFoundError indicates an explicit document-name filter matched nothing.
// Available lists every known document name for disambiguation.
type NotFoundError struct {
	Query     string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %q (available: %s)", e.Query, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// OracleError indicates the re-ranking oracle failed. It never escapes a
// query; the re-ranking stage recovers from it.
type OracleError struct {
	Reason string
	cause  error
}

func NewOracleError(reason string, cause error) *OracleError {
	return &OracleError{Reason: reason, cause: cause}
}

func (e *OracleError) Error() string {
	if e.cause == nil {
		return "relevance oracle: " + e.Reason
	}
	return fmt.Sprintf("relevance oracle: %s: %v", e.Reason, e.cause)
}

func (e *OracleError) Unwrap() error { return e.cause }

// ErrorKind names the taxonomy class of err for structured results.
func ErrorKind(err error) string {
	var (
		extractErr *ExtractionError
		embedErr   *EmbeddingError
		storeErr   *StoreError
		notFound   *NotFoundError
		oracleErr  *OracleError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &extractErr):
		return "extraction"
	case errors.As(err, &embedErr):
		return "embedding"
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &oracleErr):
		return "oracle"
	default:
		return "internal"
	}
}
