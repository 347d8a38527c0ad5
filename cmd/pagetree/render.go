package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/search"
)

var (
	// titleStyle for the document name and answer header
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	// dimStyle for ids, page ranges and other metadata
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// nodeStyle for section titles
	nodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	// boxStyle frames the answer
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)

	levelStyles = map[string]lipgloss.Style{
		"high":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// renderOutline prints the tree as an indented outline with page ranges.
func renderOutline(w io.Writer, tree *doctree.DocumentTree) {
	fmt.Fprintln(w, titleStyle.Render(tree.DocName))
	if tree.DocDescription != "" {
		fmt.Fprintln(w, dimStyle.Render(tree.DocDescription))
	}
	fmt.Fprintln(w)
	tree.Walk(func(n *doctree.TreeNode, depth int) {
		fmt.Fprintf(w, "%s%s %s %s\n",
			strings.Repeat("  ", depth),
			dimStyle.Render(n.NodeID),
			nodeStyle.Render(n.Title),
			dimStyle.Render(pageRange(n.StartPage, n.EndPage)),
		)
	})
}

// renderResult prints an answer, its confidence and its sources.
func renderResult(w io.Writer, r *search.Result) {
	fmt.Fprintln(w, boxStyle.Render(strings.TrimSpace(r.Answer)))

	level, ok := levelStyles[r.ConfidenceLevel]
	if !ok {
		level = dimStyle
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Confidence:"),
		level.Render(fmt.Sprintf("%s (%.0f)", r.ConfidenceLevel, r.ConfidenceScore)))

	if len(r.Sources) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Sources:"))
		for _, s := range r.Sources {
			fmt.Fprintf(w, "  %s %s %s\n",
				nodeStyle.Render(s.DocName),
				nodeStyle.Render("/ "+s.Title),
				dimStyle.Render(pageRange(s.StartPage, s.EndPage)),
			)
		}
	}
	if r.Reasoning != "" {
		fmt.Fprintln(w, dimStyle.Render(r.Reasoning))
	}
}

func pageRange(start, end int) string {
	if start == end {
		return fmt.Sprintf("p. %d", start)
	}
	return fmt.Sprintf("pp. %d-%d", start, end)
}
