package textextract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type ExtractedText struct {
	Content  string
	Pages    int
	Metadata map[string]string
}

// Extract pulls raw text out of a document. The format is selected once by
// extension; the content bytes are never inspected to guess a type.
func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch normalize(fileType) {
	case ".pdf":
		return extractPDF(data, size)
	case ".docx":
		return extractDOCX(data, size)
	case ".txt", ".md", ".csv", ".tsv":
		return extractPlain(data, size, normalize(fileType))
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

func SupportedTypes() []string {
	return []string{".txt", ".md", ".csv", ".tsv", ".docx", ".pdf"}
}

func Supported(fileType string) bool {
	switch normalize(fileType) {
	case ".txt", ".md", ".csv", ".tsv", ".docx", ".pdf":
		return true
	}
	return false
}

func normalize(fileType string) string {
	t := strings.ToLower(fileType)
	if !strings.HasPrefix(t, ".") {
		t = "." + t
	}
	return t
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content:  buf.String(),
		Pages:    numPages,
		Metadata: map[string]string{"type": "pdf"},
	}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	var buf strings.Builder
	for _, f := range reader.File {
		if filepath.Base(f.Name) != "document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		// w:p elements become paragraphs, everything else is stripped
		buf.WriteString(stripXMLTags(string(content)))
		break
	}

	return &ExtractedText{
		Content:  buf.String(),
		Pages:    1,
		Metadata: map[string]string{"type": "docx"},
	}, nil
}

func extractPlain(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	buf := make([]byte, size)
	if _, err := data.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", fileType, err)
	}

	return &ExtractedText{
		Content:  string(bytes.TrimSpace(buf)),
		Pages:    1,
		Metadata: map[string]string{"type": strings.TrimPrefix(fileType, ".")},
	}, nil
}

func stripXMLTags(s string) string {
	var result strings.Builder
	inTag := false
	var tag strings.Builder

	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>':
			inTag = false
			// paragraph closes become newlines so chunking sees boundaries
			if strings.HasPrefix(tag.String(), "/w:p") {
				result.WriteRune('\n')
			} else {
				result.WriteRune(' ')
			}
		case inTag:
			tag.WriteRune(r)
		default:
			result.WriteRune(r)
		}
	}

	var lines []string
	for _, line := range strings.Split(result.String(), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " "))
		}
	}
	return strings.Join(lines, "\n")
}
