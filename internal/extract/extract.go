// Package extract reads source documents from the corpus directory.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is a discovered corpus file, not yet read.
type Document struct {
	Path   string // location on disk
	Name   string // base filename, used in chunk IDs
	Source string // path relative to the corpus root
	Title  string // human readable, derived from Name
}

// Title derives a display title from a filename: extension stripped,
// underscores become spaces.
func Title(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.ReplaceAll(name, "_", " ")
}

// Discover walks dir for PDF documents. Results are ordered
// lexicographically by relative path and capped at max when max > 0, so
// repeated runs over the same corpus see the same documents.
func Discover(dir string, max int) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		docs = append(docs, Document{
			Path:   path,
			Name:   name,
			Source: filepath.ToSlash(rel),
			Title:  Title(name),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning corpus %s: %w", dir, err)
	}

	// Sort before capping so the cap always keeps the same documents.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	if max > 0 && len(docs) > max {
		docs = docs[:max]
	}
	return docs, nil
}

// Text extracts plain text from a PDF read from r. Returns an empty
// string and nil error if the PDF has no extractable text.
func Text(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// File extracts plain text from the PDF at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	text, err := Text(f)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return text, nil
}
