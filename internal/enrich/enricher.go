// Package enrich fills a built tree with page text, per-node summaries and a
// document description.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/llm"
)

// Options configure an Enricher. Zero values fall back to defaults.
type Options struct {
	MaxConcurrent         int
	SummaryInputChars     int
	DescriptionInputChars int
	Logger                *slog.Logger
}

type Enricher struct {
	llm                   llm.Completer
	maxConcurrent         int
	summaryInputChars     int
	descriptionInputChars int
	log                   *slog.Logger
}

func New(c llm.Completer, opts Options) *Enricher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.SummaryInputChars <= 0 {
		opts.SummaryInputChars = 6000
	}
	if opts.DescriptionInputChars <= 0 {
		opts.DescriptionInputChars = 8000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Enricher{
		llm:                   c,
		maxConcurrent:         opts.MaxConcurrent,
		summaryInputChars:     opts.SummaryInputChars,
		descriptionInputChars: opts.DescriptionInputChars,
		log:                   opts.Logger,
	}
}

// Enrich attaches text, summarizes every node and sets the description.
// Node ids are never touched.
func (e *Enricher) Enrich(ctx context.Context, tree *doctree.DocumentTree, pages []doctree.PageRecord) error {
	AttachText(tree.Roots, pages)
	if err := e.Summarize(ctx, tree.Roots); err != nil {
		return err
	}
	tree.DocDescription = e.Describe(ctx, tree)
	return ctx.Err()
}

// AttachText sets each node's text to its pages joined by newlines.
func AttachText(roots []*doctree.TreeNode, pages []doctree.PageRecord) {
	byIndex := make(map[int]string, len(pages))
	for _, p := range pages {
		byIndex[p.Index] = p.Text
	}
	for _, root := range roots {
		attach(root, byIndex)
	}
}

func attach(n *doctree.TreeNode, byIndex map[int]string) {
	parts := make([]string, 0, n.EndPage-n.StartPage+1)
	for i := n.StartPage; i <= n.EndPage; i++ {
		if text, ok := byIndex[i]; ok {
			parts = append(parts, text)
		}
	}
	n.Text = strings.Join(parts, "\n")
	for _, c := range n.Children {
		attach(c, byIndex)
	}
}

// Summarize gives every node a summary. Siblings run concurrently and are
// joined before their parent, so children are always summarized first. A
// failed call falls back to a title-based summary; only cancellation is
// returned as an error.
func (e *Enricher) Summarize(ctx context.Context, roots []*doctree.TreeNode) error {
	e.summarizeGroup(ctx, roots)
	return ctx.Err()
}

func (e *Enricher) summarizeGroup(ctx context.Context, nodes []*doctree.TreeNode) {
	if len(nodes) == 0 {
		return
	}
	var eg errgroup.Group
	eg.SetLimit(min(len(nodes), e.maxConcurrent))
	for _, n := range nodes {
		eg.Go(func() error {
			e.summarizeGroup(ctx, n.Children)
			n.Summary = e.summarizeNode(ctx, n)
			return nil
		})
	}
	_ = eg.Wait()
}

func (e *Enricher) summarizeNode(ctx context.Context, n *doctree.TreeNode) string {
	fallback := "Section: " + n.Title
	if ctx.Err() != nil {
		return fallback
	}
	resp, err := e.llm.Complete(ctx, buildSummaryPrompt(n.Title, truncate(n.Text, e.summaryInputChars)))
	if err != nil {
		e.log.Warn("summary failed", "node_id", n.NodeID, "error", err)
		return fallback
	}
	summary := strings.TrimSpace(resp)
	if summary == "" {
		return fallback
	}
	return summary
}

// Describe returns a description of the document generated from its
// text-free outline, or "Document: {name}" when the call fails.
func (e *Enricher) Describe(ctx context.Context, tree *doctree.DocumentTree) string {
	fallback := "Document: " + tree.DocName
	if ctx.Err() != nil {
		return fallback
	}

	outline, err := json.Marshal(tree.Skeleton().Roots)
	if err != nil {
		return fallback
	}
	resp, err := e.llm.Complete(ctx, buildDescriptionPrompt(tree.DocName, truncate(string(outline), e.descriptionInputChars)))
	if err != nil {
		e.log.Warn("description failed", "doc_name", tree.DocName, "error", err)
		return fallback
	}
	desc := strings.TrimSpace(resp)
	if desc == "" {
		return fallback
	}
	return desc
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
