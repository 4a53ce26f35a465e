package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"docrag/internal/domain"
)

// extractCSV flattens every record to one delimiter-joined line.
func extractCSV(content []byte) (string, error) {
	text, err := decodeText(content)
	if err != nil {
		return "", err
	}

	r := csv.NewReader(bytes.NewReader([]byte(text)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var lines []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", domain.NewExtractionError("csv", "malformed csv", err)
		}
		if line := joinCells(record); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// joinCells trims each cell and joins them; rows with only empty cells
// yield "".
func joinCells(cells []string) string {
	trimmed := make([]string, len(cells))
	empty := true
	for i, c := range cells {
		trimmed[i] = strings.TrimSpace(c)
		if trimmed[i] != "" {
			empty = false
		}
	}
	if empty {
		return ""
	}
	return strings.Join(trimmed, rowSeparator)
}
