package doctree

import (
	"encoding/json"
)

// PageRecord is the extracted text of one physical PDF page.
type PageRecord struct {
	Index        int    // 1-based physical page number
	Text         string // Raw page text
	ApproxTokens int    // Cheap size estimate for prompt budgeting
}

// TocEntry is a flat table-of-contents entry before tree construction.
type TocEntry struct {
	StructurePath string // Dotted integer path, e.g. "1.2.3"
	Title         string
	PhysicalIndex int // 1-based start page
}

// DocumentTree is the root of a generated index.
type DocumentTree struct {
	DocName        string      `json:"doc_name"`
	DocDescription string      `json:"doc_description"`
	Roots          []*TreeNode `json:"structure"`
}

// TreeNode is a section of the document covering an inclusive page range.
// Children is never nil on trees produced by this package.
type TreeNode struct {
	NodeID    string      `json:"node_id"`
	Title     string      `json:"title"`
	StartPage int         `json:"start_index"`
	EndPage   int         `json:"end_index"`
	Text      string      `json:"text,omitempty"`
	Summary   string      `json:"summary,omitempty"`
	Children  []*TreeNode `json:"children,omitempty"`
}

// UnmarshalJSON decodes a stored tree and restores empty children slices.
func (t *DocumentTree) UnmarshalJSON(data []byte) error {
	type plain DocumentTree
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = DocumentTree(p)
	if t.Roots == nil {
		t.Roots = []*TreeNode{}
	}
	t.Walk(func(n *TreeNode, _ int) {
		if n.Children == nil {
			n.Children = []*TreeNode{}
		}
	})
	return nil
}

// Walk visits every node in pre-order, passing its depth (0 for roots).
func (t *DocumentTree) Walk(fn func(n *TreeNode, depth int)) {
	var walk func(nodes []*TreeNode, depth int)
	walk = func(nodes []*TreeNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(t.Roots, 0)
}

// NodeCount returns the total number of nodes in the forest.
func (t *DocumentTree) NodeCount() int {
	count := 0
	t.Walk(func(*TreeNode, int) { count++ })
	return count
}

// NodeIDs returns all node ids in pre-order.
func (t *DocumentTree) NodeIDs() []string {
	var ids []string
	t.Walk(func(n *TreeNode, _ int) { ids = append(ids, n.NodeID) })
	return ids
}

// Find returns the node with the given id, or nil.
func (t *DocumentTree) Find(nodeID string) *TreeNode {
	var found *TreeNode
	t.Walk(func(n *TreeNode, _ int) {
		if found == nil && n.NodeID == nodeID {
			found = n
		}
	})
	return found
}

// Skeleton returns a deep copy without node text. Summaries are kept.
func (t *DocumentTree) Skeleton() *DocumentTree {
	var strip func(nodes []*TreeNode) []*TreeNode
	strip = func(nodes []*TreeNode) []*TreeNode {
		out := make([]*TreeNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, &TreeNode{
				NodeID:    n.NodeID,
				Title:     n.Title,
				StartPage: n.StartPage,
				EndPage:   n.EndPage,
				Summary:   n.Summary,
				Children:  strip(n.Children),
			})
		}
		return out
	}
	return &DocumentTree{
		DocName:        t.DocName,
		DocDescription: t.DocDescription,
		Roots:          strip(t.Roots),
	}
}
