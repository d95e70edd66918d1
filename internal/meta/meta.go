// Package meta reads document metadata: page counts from PDF structure and
// file sizes from the filesystem. The two reads are independent so that a
// parse failure never suppresses the stat result.
package meta

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Reader reads document metadata.
type Reader interface {
	// PageCount returns the number of pages in the document at path.
	PageCount(path string) (int, error)

	// FileSize returns the document's size in bytes.
	FileSize(path string) (int64, error)
}

// PDFReader reads metadata using pdfcpu and the filesystem.
type PDFReader struct{}

// NewReader creates a pdfcpu-backed metadata reader.
func NewReader() *PDFReader {
	return &PDFReader{}
}

// PageCount returns the page count from the document's cross-reference table.
func (r *PDFReader) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// FileSize returns the file size in bytes.
func (r *PDFReader) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}
