package corpus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/askdocs/askdocs/pkg/textextract"
)

// Document is a named unit of text discovered under the corpus root.
// ID is the root-relative path; Fingerprint is the sha256 of the raw bytes,
// so an unmodified file always produces the same fingerprint.
type Document struct {
	ID          string
	Fingerprint string
	Text        string
}

// Skipped records a file that was enumerated but could not be indexed.
type Skipped struct {
	ID     string
	Reason string
}

// Source yields the current document set. Deletions surface as absence from
// the returned set between calls.
type Source interface {
	List(ctx context.Context) ([]Document, []Skipped, error)
}

// FSSource walks a directory root and extracts text from every supported
// file, dispatching the extractor once per document by extension.
type FSSource struct {
	root string
}

func NewFSSource(root string) *FSSource {
	return &FSSource{root: root}
}

func (s *FSSource) List(ctx context.Context) ([]Document, []Skipped, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, nil, fmt.Errorf("corpus root %s: %w", s.root, err)
	}

	var docs []Document
	var skipped []Skipped

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isTempOrSystemFile(name) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !textextract.Supported(ext) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("unreadable corpus file", "doc", id, "error", err)
			skipped = append(skipped, Skipped{ID: id, Reason: err.Error()})
			return nil
		}

		extracted, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), ext)
		if err != nil {
			slog.Warn("text extraction failed", "doc", id, "error", err)
			skipped = append(skipped, Skipped{ID: id, Reason: err.Error()})
			return nil
		}

		docs = append(docs, Document{
			ID:          id,
			Fingerprint: Fingerprint(data),
			Text:        extracted.Content,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk corpus root: %w", err)
	}

	return docs, skipped, nil
}

// Fingerprint hashes raw document bytes. Format independent and stable
// across re-reads of an unmodified file.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isTempOrSystemFile(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tmp", ".temp", ".bak", ".swp", ".lock"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	switch lower {
	case "thumbs.db", "desktop.ini":
		return true
	}
	return false
}
