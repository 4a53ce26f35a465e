package port

import "context"

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// Blob is a raw source file and its type tag.
type Blob struct {
	Content  []byte
	FileType string
	URI      string
}

type BlobReader interface {
	Read(ctx context.Context, path string) (Blob, error)
}
