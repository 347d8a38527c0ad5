package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// Extractor pulls per-page text out of a document.
type Extractor interface {
	ExtractPages(data []byte) ([]doctree.PageRecord, error)
	Title(data []byte, filename string) string
}

// ExtractionError reports a document that could not be read at all.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("extract pages: %v", e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SupportedExtensions lists file extensions tree generation can handle.
var SupportedExtensions = map[string]bool{
	".pdf": true,
}

// FileType returns the lowercase extension without the dot, e.g. "pdf".
func FileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string, fallbackPdftotext bool) (Extractor, error) {
	switch FileType(filename) {
	case "pdf":
		return &PDFExtractor{FallbackPdftotext: fallbackPdftotext}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(filename))
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ApproxTokenCount estimates tokens as one per four bytes, never below one.
// It is only used to budget prompt windows.
func ApproxTokenCount(text string) int {
	return max(1, len(text)/4)
}

// TitleFromFilename returns the filename without directory or extension.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
