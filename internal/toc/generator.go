// Package toc asks a language model for the section headings of a document,
// one window of pages at a time, and merges the fragments into flat entries
// ready for tree construction.
package toc

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/llm"
)

// Options configure a Generator. Zero values fall back to defaults.
type Options struct {
	WindowPages   int
	MaxConcurrent int
	Logger        *slog.Logger
}

// Generator produces table-of-contents entries from page text.
type Generator struct {
	llm           llm.Completer
	windowPages   int
	maxConcurrent int
	log           *slog.Logger
}

func NewGenerator(c llm.Completer, opts Options) *Generator {
	if opts.WindowPages <= 0 {
		opts.WindowPages = 15
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Generator{
		llm:           c,
		windowPages:   opts.WindowPages,
		maxConcurrent: opts.MaxConcurrent,
		log:           opts.Logger,
	}
}

// Generate returns the merged entries for pages. A window whose call or
// parse fails contributes nothing; the only error is a cancelled context.
// A non-empty document always yields at least one entry.
func (g *Generator) Generate(ctx context.Context, pages []doctree.PageRecord, docName string) ([]doctree.TocEntry, error) {
	if len(pages) == 0 {
		return []doctree.TocEntry{}, nil
	}

	windows := Windows(pages, g.windowPages)
	fragments := make([][]rawEntry, len(windows))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConcurrent)
	for i, w := range windows {
		eg.Go(func() error {
			fragments[i] = g.window(egCtx, docName, w)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := Merge(fragments, len(pages))
	if len(entries) == 0 {
		g.log.Info("no headings found, using single root", "doc_name", docName, "pages", len(pages))
		entries = []doctree.TocEntry{{StructurePath: "1", Title: docName, PhysicalIndex: 1}}
	}
	return entries, nil
}

func (g *Generator) window(ctx context.Context, docName string, pages []doctree.PageRecord) []rawEntry {
	first, last := pages[0].Index, pages[len(pages)-1].Index

	resp, err := g.llm.Complete(ctx, buildWindowPrompt(docName, pages))
	if err != nil {
		g.log.Warn("toc window failed", "first_page", first, "last_page", last, "error", err)
		return nil
	}
	entries, err := llm.ExtractJSONArray[[]rawEntry](resp)
	if err != nil {
		g.log.Warn("toc window unparseable", "first_page", first, "last_page", last, "error", err)
		return nil
	}
	return entries
}

// Windows splits pages into consecutive runs of at most size pages.
func Windows(pages []doctree.PageRecord, size int) [][]doctree.PageRecord {
	if size <= 0 {
		size = 1
	}
	var out [][]doctree.PageRecord
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		out = append(out, pages[start:end])
	}
	return out
}
