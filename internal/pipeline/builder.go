package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/enrich"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/store"
	"github.com/dgallion1/pagetree/internal/toc"
)

// Builder runs extraction, TOC generation, tree construction and enrichment
// for a single document. It does not persist anything.
type Builder struct {
	toc      *toc.Generator
	enricher *enrich.Enricher
	log      *slog.Logger

	extractorFor func(filename string) (parser.Extractor, error)
}

func NewBuilder(gen *toc.Generator, enricher *enrich.Enricher, fallbackPdftotext bool, log *slog.Logger) *Builder {
	return &Builder{
		toc:      gen,
		enricher: enricher,
		log:      log,
		extractorFor: func(filename string) (parser.Extractor, error) {
			return parser.ForFile(filename, fallbackPdftotext)
		},
	}
}

// GenerateTree builds a tree for the PDF at pdfPath.
func (b *Builder) GenerateTree(ctx context.Context, pdfPath string) (*doctree.DocumentTree, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pdfPath, err)
	}
	return b.Build(ctx, data, pdfPath, "")
}

// BuildDocument builds a tree for a catalog document.
func (b *Builder) BuildDocument(ctx context.Context, doc *store.Document) (*doctree.DocumentTree, error) {
	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc.Filename, err)
	}
	return b.Build(ctx, data, doc.Filename, doc.Title)
}

// Build builds a tree from raw file bytes. An empty docName is replaced by
// the embedded title or the filename stem.
func (b *Builder) Build(ctx context.Context, data []byte, filename, docName string) (*doctree.DocumentTree, error) {
	ext, err := b.extractorFor(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIneligible, err)
	}

	pages, err := ext.ExtractPages(data)
	if err != nil {
		var extErr *parser.ExtractionError
		if errors.As(err, &extErr) && extErr.Filename == "" {
			extErr.Filename = filename
		}
		return nil, err
	}
	if docName == "" {
		docName = ext.Title(data, filename)
	}
	log := b.log.With("doc_name", docName, "pages", len(pages))

	entries, err := b.toc.Generate(ctx, pages, docName)
	if err != nil {
		return nil, fmt.Errorf("generate toc: %w", err)
	}
	log.Info("toc generated", "entries", len(entries))

	tree := &doctree.DocumentTree{
		DocName: docName,
		Roots:   doctree.Build(entries, len(pages)),
	}
	if err := b.enricher.Enrich(ctx, tree, pages); err != nil {
		return nil, fmt.Errorf("enrich tree: %w", err)
	}
	log.Info("tree built", "nodes", tree.NodeCount())
	return tree, nil
}
