package extractor

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"docrag/internal/domain"
)

// rowSeparator joins the cells of a flattened table row.
const rowSeparator = " | "

// Extractor converts raw source bytes into plain text by file type.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// SupportedTypes lists the type tags Extract accepts.
func SupportedTypes() []string {
	return []string{"txt", "md", "csv", "docx"}
}

// FileType returns the type tag for a path: its lowercased extension
// without the dot.
func FileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (e *Extractor) Extract(content []byte, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "txt", "md":
		return decodeText(content)
	case "csv":
		return extractCSV(content)
	case "docx":
		return extractDOCX(content)
	case "pdf":
		return "", domain.NewExtractionError(fileType, "pdf extraction is not supported", nil)
	default:
		return "", domain.NewExtractionError(fileType, "unsupported file type", nil)
	}
}

// decodeText reads UTF-8, falling back to Latin-1 for legacy files.
func decodeText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if utf8.Valid(content) {
		return string(content), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", domain.NewExtractionError("txt", "undecodable text", err)
	}
	return string(decoded), nil
}
