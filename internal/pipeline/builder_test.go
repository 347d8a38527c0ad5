package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/enrich"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/store"
	"github.com/dgallion1/pagetree/internal/toc"
)

type stubExtractor struct {
	pages []doctree.PageRecord
	err   error
	title string
}

func (s *stubExtractor) ExtractPages([]byte) ([]doctree.PageRecord, error) {
	return s.pages, s.err
}

func (s *stubExtractor) Title([]byte, string) string { return s.title }

// routedLLM answers TOC, summary and description prompts differently.
type routedLLM struct {
	toc string
}

func (r *routedLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Section title:"):
		line := prompt[strings.Index(prompt, "Section title:"):]
		line = strings.TrimSpace(strings.SplitN(line, "\n", 2)[0])
		return "Summary for " + strings.TrimPrefix(line, "Section title: "), nil
	case strings.Contains(prompt, "Outline:"):
		return "A handbook about widgets.", nil
	default:
		return r.toc, nil
	}
}

func newTestBuilder(ext parser.Extractor, llm *routedLLM) *Builder {
	b := NewBuilder(
		toc.NewGenerator(llm, toc.Options{Logger: testLogger()}),
		enrich.New(llm, enrich.Options{Logger: testLogger()}),
		false,
		testLogger(),
	)
	b.extractorFor = func(filename string) (parser.Extractor, error) {
		if parser.FileType(filename) != "pdf" {
			return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(filename))
		}
		return ext, nil
	}
	return b
}

func widgetPages() []doctree.PageRecord {
	pages := make([]doctree.PageRecord, 4)
	for i := range pages {
		pages[i] = doctree.PageRecord{Index: i + 1, Text: fmt.Sprintf("page %d body", i+1), ApproxTokens: 3}
	}
	return pages
}

func TestBuilder_BuildProducesEnrichedTree(t *testing.T) {
	llm := &routedLLM{toc: `[
		{"structure_path": "1", "title": "Overview", "physical_index": "<physical_index_1>"},
		{"structure_path": "2", "title": "Assembly", "physical_index": 3},
		{"structure_path": "2.1", "title": "Tools", "physical_index": "4"}
	]`}
	b := newTestBuilder(&stubExtractor{pages: widgetPages(), title: "Widget Handbook"}, llm)

	tree, err := b.Build(context.Background(), []byte("%PDF"), "widgets.pdf", "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.DocName != "Widget Handbook" {
		t.Errorf("expected embedded title as doc name, got %q", tree.DocName)
	}
	if tree.DocDescription != "A handbook about widgets." {
		t.Errorf("unexpected description %q", tree.DocDescription)
	}
	if tree.NodeCount() != 3 {
		t.Fatalf("expected 3 nodes, got %d", tree.NodeCount())
	}

	overview := tree.Find("0000")
	if overview.StartPage != 1 || overview.EndPage != 2 {
		t.Errorf("expected Overview 1-2, got %d-%d", overview.StartPage, overview.EndPage)
	}
	if overview.Text != "page 1 body\npage 2 body" {
		t.Errorf("unexpected text %q", overview.Text)
	}
	tree.Walk(func(n *doctree.TreeNode, _ int) {
		if n.Summary != "Summary for "+n.Title {
			t.Errorf("%s: unexpected summary %q", n.NodeID, n.Summary)
		}
	})
}

func TestBuilder_ExplicitDocNameWins(t *testing.T) {
	b := newTestBuilder(&stubExtractor{pages: widgetPages(), title: "Embedded"}, &routedLLM{toc: "[]"})
	tree, err := b.Build(context.Background(), nil, "w.pdf", "Catalog Title")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.DocName != "Catalog Title" {
		t.Errorf("expected catalog title, got %q", tree.DocName)
	}
	if len(tree.Roots) != 1 || tree.Roots[0].Title != "Catalog Title" {
		t.Errorf("expected single fallback root, got %d roots", len(tree.Roots))
	}
}

func TestBuilder_UnsupportedExtensionIsIneligible(t *testing.T) {
	b := newTestBuilder(&stubExtractor{}, &routedLLM{})
	_, err := b.Build(context.Background(), nil, "notes.docx", "")
	if !errors.Is(err, ErrIneligible) {
		t.Errorf("expected ErrIneligible, got %v", err)
	}
}

func TestBuilder_ExtractionErrorNamesFile(t *testing.T) {
	b := newTestBuilder(&stubExtractor{err: &parser.ExtractionError{Err: errors.New("bad xref")}}, &routedLLM{})
	_, err := b.Build(context.Background(), nil, "broken.pdf", "")
	var extErr *parser.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken.pdf") {
		t.Errorf("expected filename in error, got %q", err.Error())
	}
}

func TestBuilder_BuildDocumentReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := newTestBuilder(&stubExtractor{pages: widgetPages()}, &routedLLM{toc: `[{"structure_path":"1","title":"Only","physical_index":1}]`})

	tree, err := b.BuildDocument(context.Background(), &store.Document{Filename: "orig.pdf", FilePath: path, Title: "Doc"})
	if err != nil {
		t.Fatalf("build document: %v", err)
	}
	if tree.Roots[0].EndPage != 4 {
		t.Errorf("expected single root spanning all pages, got end %d", tree.Roots[0].EndPage)
	}

	_, err = b.BuildDocument(context.Background(), &store.Document{Filename: "gone.pdf", FilePath: filepath.Join(dir, "gone.pdf")})
	if err == nil {
		t.Error("expected error for missing file")
	}
}
