package doctree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Build turns flat TOC entries into a forest with inclusive page ranges and
// sequential node ids. Entries are expected to be sanitized already: page
// indices within [1, totalPages] and dotted-integer structure paths.
//
// Ranges are computed over the globally sorted entry list, because sections
// and their subsections interleave by page. Each ancestor is then widened to
// cover every descendant. Where widening makes a section run into its next
// sibling, the earlier section's end is pulled back as far as its own
// children allow.
func Build(entries []TocEntry, totalPages int) []*TreeNode {
	if len(entries) == 0 {
		return []*TreeNode{}
	}

	sorted := make([]TocEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ComparePaths(sorted[i].StructurePath, sorted[j].StructurePath) < 0
	})

	type span struct{ start, end int }
	spans := make([]span, len(sorted))
	for i, e := range sorted {
		start := e.PhysicalIndex
		end := totalPages
		if i+1 < len(sorted) {
			end = sorted[i+1].PhysicalIndex - 1
		}
		if end < start {
			end = start
		}
		spans[i] = span{start: start, end: end}
	}

	byPath := make(map[string]*TreeNode, len(sorted))
	parentOf := make(map[*TreeNode]*TreeNode, len(sorted))
	roots := []*TreeNode{}

	for i, e := range sorted {
		node := &TreeNode{
			NodeID:    formatNodeID(i),
			Title:     e.Title,
			StartPage: spans[i].start,
			EndPage:   spans[i].end,
			Children:  []*TreeNode{},
		}

		parentPath := ParentPath(e.StructurePath)
		if parent, ok := byPath[parentPath]; ok && parentPath != "" {
			parent.Children = append(parent.Children, node)
			parentOf[node] = parent
			for anc := parent; anc != nil; anc = parentOf[anc] {
				if node.EndPage > anc.EndPage {
					anc.EndPage = node.EndPage
				}
				if node.StartPage < anc.StartPage {
					anc.StartPage = node.StartPage
				}
			}
		} else {
			roots = append(roots, node)
		}
		byPath[e.StructurePath] = node
	}

	clampSiblings(roots)
	return roots
}

func clampSiblings(nodes []*TreeNode) {
	for i := 0; i+1 < len(nodes); i++ {
		cur, next := nodes[i], nodes[i+1]
		if cur.EndPage < next.StartPage || next.StartPage <= cur.StartPage {
			continue
		}
		end := next.StartPage - 1
		for _, c := range cur.Children {
			end = max(end, c.EndPage)
		}
		cur.EndPage = max(end, cur.StartPage)
	}
	for _, n := range nodes {
		clampSiblings(n.Children)
	}
}

// ParentPath strips the last dotted component: "1.2.3" -> "1.2", "1" -> "".
func ParentPath(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ComparePaths orders dotted paths numerically, component by component.
// A path sorts before any of its extensions ("1" < "1.1").
func ComparePaths(a, b string) int {
	pa, pb := pathParts(a), pathParts(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

func pathParts(path string) []int {
	if path == "" {
		return nil
	}
	fields := strings.Split(path, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			n = 0
		}
		parts[i] = n
	}
	return parts
}

func formatNodeID(n int) string {
	return fmt.Sprintf("%04d", n)
}
