package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"docrag/internal/adapter/extractor"
	"docrag/internal/port"
)

type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// Walk returns matching files under root in lexical path order.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, port.FileInfo{
				Path:    path,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// BlobReader serves source files from the local filesystem.
type BlobReader struct {
	maxSize int64
}

// NewBlobReader returns a reader that refuses files larger than maxSize
// bytes. A maxSize of 0 disables the limit.
func NewBlobReader(maxSize int64) *BlobReader {
	return &BlobReader{maxSize: maxSize}
}

func (r *BlobReader) Read(ctx context.Context, path string) (port.Blob, error) {
	if err := ctx.Err(); err != nil {
		return port.Blob{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return port.Blob{}, err
	}
	if info.IsDir() {
		return port.Blob{}, fmt.Errorf("%s is a directory", path)
	}
	if r.maxSize > 0 && info.Size() > r.maxSize {
		return port.Blob{}, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), r.maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return port.Blob{}, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return port.Blob{
		Content:  data,
		FileType: extractor.FileType(path),
		URI:      "file://" + filepath.ToSlash(abs),
	}, nil
}
