package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/pagetree/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFExtractor reads page text with the Go PDF library and falls back to
// pdftotext when the library cannot open the file.
type PDFExtractor struct {
	FallbackPdftotext bool
}

// ExtractPages returns one record per physical page, 1-indexed. A document
// without any extractable text yields zero pages and no error.
func (p *PDFExtractor) ExtractPages(data []byte) ([]doctree.PageRecord, error) {
	texts, err := extractPDFPages(data)
	if err != nil && p.FallbackPdftotext {
		var fbErr error
		texts, fbErr = extractPdftotextPages(data)
		if fbErr != nil {
			err = errors.Join(err, fbErr)
		} else {
			err = nil
		}
	}
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	return toPageRecords(texts), nil
}

// Title reads the document title from the PDF info dictionary, falling back
// to the filename stem.
func (p *PDFExtractor) Title(data []byte, filename string) string {
	if title := pdfMetadataTitle(data); title != "" {
		return title
	}
	return TitleFromFilename(filename)
}

func toPageRecords(texts []string) []doctree.PageRecord {
	anyText := false
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			anyText = true
			break
		}
	}
	if !anyText {
		return []doctree.PageRecord{}
	}

	pages := make([]doctree.PageRecord, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		pages[i] = doctree.PageRecord{
			Index:        i + 1,
			Text:         t,
			ApproxTokens: ApproxTokenCount(t),
		}
	}
	return pages
}

func openPDF(data []byte) (r *pdflib.Reader, err error) {
	// The library panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
}

func extractPDFPages(data []byte) (pages []string, err error) {
	reader, err := openPDF(data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read pdf pages: %v", rec)
		}
	}()

	numPages := reader.NumPage()
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func pdfMetadataTitle(data []byte) (title string) {
	defer func() {
		if recover() != nil {
			title = ""
		}
	}()
	reader, err := openPDF(data)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
}

func extractPdftotextPages(data []byte) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	// pdftotext reads from a path, so the bytes go to a temp file.
	tmp, err := os.CreateTemp("", "pagetree-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command("pdftotext", "-layout", tmpPath, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return splitPages(string(out)), nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates
// every page with one, so a trailing empty segment is dropped.
func splitPages(text string) []string {
	pages := strings.Split(text, "\f")
	if len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
