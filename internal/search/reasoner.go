// Package search answers questions by letting a language model navigate
// stored document trees: it picks sections from each outline, reads their
// text and writes a cited answer.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/llm"
	"github.com/dgallion1/pagetree/internal/store"
)

const contextTruncated = "[... context truncated ...]"

// Trees is the read side of the tree store.
type Trees interface {
	GetTree(ctx context.Context, docID string) (*doctree.DocumentTree, error)
	GetDocumentsWithTrees(ctx context.Context, docIDs []string) ([]string, error)
	GetNodes(ctx context.Context, docID string, nodeIDs []string) ([]doctree.FlatNode, error)
}

// Catalog lists a user's documents. It supplies the candidates when a query
// names none and limits named candidates to the user's own documents.
type Catalog interface {
	ListDocuments(ctx context.Context, userID string) ([]store.Document, error)
}

// TreeGenerator builds missing trees synchronously. The returned map holds
// an error for every document that could not be generated.
type TreeGenerator interface {
	EnsureTrees(ctx context.Context, docIDs []string) map[string]error
}

// Source is one section the answer was built from.
type Source struct {
	DocumentID string  `json:"document_id"`
	DocName    string  `json:"doc_name"`
	NodeID     string  `json:"node_id"`
	Title      string  `json:"title"`
	StartPage  int     `json:"start_page"`
	EndPage    int     `json:"end_page"`
	Relevance  float64 `json:"relevance"`
}

// Result is the outcome of a query.
type Result struct {
	Answer          string   `json:"answer"`
	ConfidenceScore float64  `json:"confidence_score"`
	ConfidenceLevel string   `json:"confidence_level"`
	Sources         []Source `json:"sources"`
	Reasoning       string   `json:"reasoning"`
}

// Options configure a Reasoner. Zero values fall back to defaults.
type Options struct {
	MaxSelectedNodes    int
	SectionContextChars int
	TotalContextChars   int
	MaxConcurrent       int
	Logger              *slog.Logger
}

type Reasoner struct {
	trees     Trees
	catalog   Catalog
	generator TreeGenerator
	llm       llm.Completer

	maxSelected   int
	sectionChars  int
	totalChars    int
	maxConcurrent int
	log           *slog.Logger
}

// NewReasoner wires a reasoner. catalog and generator may be nil; without a
// generator, documents lacking a tree are reported as excluded.
func NewReasoner(trees Trees, catalog Catalog, generator TreeGenerator, c llm.Completer, opts Options) *Reasoner {
	if opts.MaxSelectedNodes <= 0 {
		opts.MaxSelectedNodes = 5
	}
	if opts.SectionContextChars <= 0 {
		opts.SectionContextChars = 8000
	}
	if opts.TotalContextChars <= 0 {
		opts.TotalContextChars = 30000
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reasoner{
		trees:         trees,
		catalog:       catalog,
		generator:     generator,
		llm:           c,
		maxSelected:   opts.MaxSelectedNodes,
		sectionChars:  opts.SectionContextChars,
		totalChars:    opts.TotalContextChars,
		maxConcurrent: opts.MaxConcurrent,
		log:           opts.Logger,
	}
}

// docSearch is the per-document outcome of node selection.
type docSearch struct {
	docID      string
	docName    string
	nodes      []doctree.FlatNode
	confidence string
	reasoning  string
	selected   int
	note       string
}

// Query answers query from the candidate documents, or from every document
// the user owns when candidates is empty. Per-document failures only exclude
// that document. An error is returned only when the final answer cannot be
// written or the context is cancelled.
func (r *Reasoner) Query(ctx context.Context, query string, candidates []string, userID string) (*Result, error) {
	log := r.log.With("user_id", userID)

	outcomes := make(map[string]string)
	docIDs, owned, err := r.resolveCandidates(ctx, candidates, userID, outcomes)
	if err != nil {
		return nil, err
	}

	usable, err := r.usableDocuments(ctx, owned, outcomes)
	if err != nil {
		return nil, err
	}

	if len(usable) == 0 {
		return &Result{
			Answer:          "I couldn't find any information to answer this question. None of the selected documents has a document index available.",
			ConfidenceScore: 0,
			ConfidenceLevel: ConfidenceLevel(0),
			Sources:         []Source{},
			Reasoning:       reasoningText(docIDs, nil, outcomes),
		}, nil
	}

	searches := make([]docSearch, len(usable))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.maxConcurrent)
	for i, docID := range usable {
		eg.Go(func() error {
			searches[i] = r.searchDocument(egCtx, query, docID)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections, sources := r.buildContext(searches)
	reasoning := reasoningText(docIDs, searches, outcomes)
	if len(sources) == 0 {
		log.Info("query found no relevant sections", "documents", len(usable))
		return &Result{
			Answer:          "I searched the available documents but couldn't find sections relevant to this question.",
			ConfidenceScore: 10,
			ConfidenceLevel: ConfidenceLevel(10),
			Sources:         []Source{},
			Reasoning:       reasoning,
		}, nil
	}

	raw, err := r.llm.Complete(ctx, buildAnswerPrompt(query, reasoning, sections))
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	answer, score := ExtractConfidence(raw)

	log.Info("query answered", "documents", len(usable), "sources", len(sources), "confidence", score)
	return &Result{
		Answer:          answer,
		ConfidenceScore: score,
		ConfidenceLevel: ConfidenceLevel(score),
		Sources:         sources,
		Reasoning:       reasoning,
	}, nil
}

// resolveCandidates returns every candidate considered and the subset the
// query may read. With a user and a catalog, named candidates the user does
// not own are excluded and noted in outcomes.
func (r *Reasoner) resolveCandidates(ctx context.Context, candidates []string, userID string, outcomes map[string]string) ([]string, []string, error) {
	candidates = dedupe(candidates)
	if r.catalog == nil {
		return candidates, candidates, nil
	}
	if len(candidates) > 0 && userID == "" {
		return candidates, candidates, nil
	}

	docs, err := r.catalog.ListDocuments(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}
	if len(candidates) == 0 {
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		return ids, ids, nil
	}

	mine := make(map[string]bool, len(docs))
	for _, d := range docs {
		mine[d.ID] = true
	}
	owned := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !mine[id] {
			outcomes[id] = "excluded: not one of the user's documents"
			continue
		}
		owned = append(owned, id)
	}
	return candidates, owned, nil
}

// usableDocuments returns the candidates with a completed tree, generating
// missing trees first. Documents left out get an entry in outcomes.
func (r *Reasoner) usableDocuments(ctx context.Context, docIDs []string, outcomes map[string]string) ([]string, error) {
	ready, err := r.trees.GetDocumentsWithTrees(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("check trees: %w", err)
	}
	if len(ready) == len(docIDs) {
		return ready, nil
	}

	have := make(map[string]bool, len(ready))
	for _, id := range ready {
		have[id] = true
	}
	var missing []string
	for _, id := range docIDs {
		if !have[id] {
			missing = append(missing, id)
		}
	}

	if r.generator == nil {
		for _, id := range missing {
			outcomes[id] = "excluded: no document index available"
		}
		return ready, nil
	}

	for id, genErr := range r.generator.EnsureTrees(ctx, missing) {
		if genErr != nil {
			outcomes[id] = "excluded: index generation failed: " + genErr.Error()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ready, err = r.trees.GetDocumentsWithTrees(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("check trees: %w", err)
	}
	have = make(map[string]bool, len(ready))
	for _, id := range ready {
		have[id] = true
	}
	for _, id := range missing {
		if !have[id] && outcomes[id] == "" {
			outcomes[id] = "excluded: no document index available"
		}
	}
	return ready, nil
}

// selection is the model's node choice for one document.
type selection struct {
	NodeIDs    []nodeID `json:"node_ids"`
	Reasoning  string   `json:"reasoning"`
	Confidence string   `json:"confidence"`
}

// nodeID accepts "0003" or 3 and normalizes numbers to the stored form.
type nodeID string

func (n *nodeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = nodeID(strings.TrimSpace(s))
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("node id %s: %w", data, err)
	}
	*n = nodeID(fmt.Sprintf("%04d", v))
	return nil
}

func (r *Reasoner) searchDocument(ctx context.Context, query, docID string) docSearch {
	out := docSearch{docID: docID, docName: docID}
	log := r.log.With("doc_id", docID)

	tree, err := r.trees.GetTree(ctx, docID)
	if err != nil {
		log.Warn("load tree failed", "error", err)
		out.note = "failed: could not load document index"
		return out
	}
	if tree.DocName != "" {
		out.docName = tree.DocName
	}

	outline, err := json.Marshal(tree.Skeleton().Roots)
	if err != nil {
		out.note = "failed: could not encode outline"
		return out
	}

	resp, err := r.llm.Complete(ctx, buildSelectPrompt(r.maxSelected, query, out.docName, tree.DocDescription, string(outline)))
	if err != nil {
		log.Warn("node selection failed", "error", err)
		out.note = "failed: section selection unavailable"
		return out
	}
	sel, err := llm.ExtractJSONObject[selection](resp)
	if err != nil {
		log.Warn("node selection unparseable", "error", err)
		out.note = "failed: section selection unparseable"
		return out
	}

	all := tree.NodeIDs()
	known := make(map[string]bool, len(all))
	for _, id := range all {
		known[id] = true
	}
	ids := make([]string, 0, len(sel.NodeIDs))
	for _, id := range sel.NodeIDs {
		if known[string(id)] {
			ids = append(ids, string(id))
		}
	}
	if len(ids) < len(sel.NodeIDs) {
		log.Info("skipped unknown node ids", "selected", len(sel.NodeIDs), "known", len(ids))
	}
	ids = dedupe(ids)
	if len(ids) > r.maxSelected {
		ids = ids[:r.maxSelected]
	}
	out.selected = len(ids)
	out.confidence = sel.Confidence
	out.reasoning = strings.TrimSpace(sel.Reasoning)

	nodes, err := r.trees.GetNodes(ctx, docID, ids)
	if err != nil {
		log.Warn("node lookup failed", "error", err)
		out.note = "failed: section lookup failed"
		return out
	}
	if len(nodes) < len(ids) {
		log.Info("stored nodes missing", "selected", len(ids), "found", len(nodes))
	}
	out.nodes = nodes
	return out
}

// buildContext renders the selected sections in document order, capping each
// section and the total. Caps count characters, not bytes.
func (r *Reasoner) buildContext(searches []docSearch) (string, []Source) {
	var sb strings.Builder
	sources := []Source{}
	used := 0

	for _, s := range searches {
		for _, n := range s.nodes {
			text := n.TextContent
			if utf8.RuneCountInString(text) > r.sectionChars {
				text = truncateChars(text, r.sectionChars) + "\n" + contextTruncated
			}
			section := fmt.Sprintf("### %s > %s (pages %d-%d)\n%s\n\n", s.docName, n.Title, n.StartPage, n.EndPage, text)
			size := utf8.RuneCountInString(section)

			if used+size > r.totalChars {
				remaining := r.totalChars - used
				if remaining > 0 {
					sb.WriteString(truncateChars(section, remaining))
					sources = append(sources, sourceFor(s, n))
				}
				sb.WriteString("\n" + contextTruncated)
				return sb.String(), sources
			}
			sb.WriteString(section)
			used += size
			sources = append(sources, sourceFor(s, n))
		}
	}
	return sb.String(), sources
}

// truncateChars keeps the first n characters of s.
func truncateChars(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func sourceFor(s docSearch, n doctree.FlatNode) Source {
	return Source{
		DocumentID: s.docID,
		DocName:    s.docName,
		NodeID:     n.NodeID,
		Title:      n.Title,
		StartPage:  n.StartPage,
		EndPage:    n.EndPage,
		Relevance:  relevance(s.confidence),
	}
}

// reasoningText lists each candidate document with what happened to it.
func reasoningText(docIDs []string, searches []docSearch, outcomes map[string]string) string {
	byID := make(map[string]docSearch, len(searches))
	for _, s := range searches {
		byID[s.docID] = s
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Considered %d document(s).\n", len(docIDs))
	for _, id := range docIDs {
		if s, ok := byID[id]; ok {
			switch {
			case s.note != "":
				fmt.Fprintf(&sb, "- %s (%s): %s\n", s.docName, id, s.note)
			default:
				fmt.Fprintf(&sb, "- %s (%s): searched, %d section(s) selected, %d used", s.docName, id, s.selected, len(s.nodes))
				if s.reasoning != "" {
					fmt.Fprintf(&sb, " (%s)", s.reasoning)
				}
				sb.WriteString("\n")
			}
			continue
		}
		if note, ok := outcomes[id]; ok {
			fmt.Fprintf(&sb, "- %s: %s\n", id, note)
			continue
		}
		fmt.Fprintf(&sb, "- %s: not searched\n", id)
	}
	return strings.TrimSpace(sb.String())
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
