package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"docrag/internal/domain"
)

// documentXML represents the parts of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
		Tables     []table     `xml:"tbl"`
	} `xml:"body"`
}

type paragraph struct {
	Runs       []run       `xml:"r"`
	Hyperlinks []hyperlink `xml:"hyperlink"`
}

type hyperlink struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type table struct {
	Rows []tableRow `xml:"tr"`
}

type tableRow struct {
	Cells []tableCell `xml:"tc"`
}

type tableCell struct {
	Paragraphs []paragraph `xml:"p"`
}

// extractDOCX returns paragraph text followed by one line per table row,
// with whitespace runs collapsed.
func extractDOCX(content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", domain.NewExtractionError("docx", "not a zip archive", err)
	}

	raw, err := readZipEntry(reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	var doc documentXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", domain.NewExtractionError("docx", "malformed document.xml", err)
	}

	var parts []string
	for _, p := range doc.Body.Paragraphs {
		if text := strings.TrimSpace(p.text()); text != "" {
			parts = append(parts, text)
		}
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				cells[i] = cell.text()
			}
			if line := joinCells(cells); line != "" {
				parts = append(parts, line)
			}
		}
	}

	return strings.Join(strings.Fields(strings.Join(parts, "\n\n")), " "), nil
}

func readZipEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, domain.NewExtractionError("docx", "cannot open "+name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, domain.NewExtractionError("docx", "cannot read "+name, err)
		}
		return data, nil
	}
	return nil, domain.NewExtractionError("docx", "missing "+name, nil)
}

func (p paragraph) text() string {
	var b strings.Builder
	writeRuns(&b, p.Runs)
	for _, h := range p.Hyperlinks {
		writeRuns(&b, h.Runs)
	}
	return b.String()
}

func (c tableCell) text() string {
	texts := make([]string, 0, len(c.Paragraphs))
	for _, p := range c.Paragraphs {
		if t := strings.TrimSpace(p.text()); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " ")
}

func writeRuns(b *strings.Builder, runs []run) {
	for _, r := range runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
}
