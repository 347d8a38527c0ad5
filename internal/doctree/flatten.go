package doctree

// FlatNode is one row of the per-node table derived from a tree.
type FlatNode struct {
	NodeID       string `json:"node_id"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	TextContent  string `json:"text_content"`
	StartPage    int    `json:"start_page"`
	EndPage      int    `json:"end_page"`
	ParentNodeID string `json:"parent_node_id,omitempty"` // empty for roots
	Depth        int    `json:"depth"`                    // 0 for roots
	Ordinal      int    `json:"ordinal"`                  // pre-order position
}

// Flatten lists every node exactly once in pre-order.
func Flatten(t *DocumentTree) []FlatNode {
	var out []FlatNode
	var walk func(nodes []*TreeNode, parentID string, depth int)
	walk = func(nodes []*TreeNode, parentID string, depth int) {
		for _, n := range nodes {
			out = append(out, FlatNode{
				NodeID:       n.NodeID,
				Title:        n.Title,
				Summary:      n.Summary,
				TextContent:  n.Text,
				StartPage:    n.StartPage,
				EndPage:      n.EndPage,
				ParentNodeID: parentID,
				Depth:        depth,
				Ordinal:      len(out),
			})
			walk(n.Children, n.NodeID, depth+1)
		}
	}
	walk(t.Roots, "", 0)
	return out
}

// Nest rebuilds a forest from flat rows in pre-order. Rows whose parent is
// unknown become roots.
func Nest(rows []FlatNode) []*TreeNode {
	roots := []*TreeNode{}
	byID := make(map[string]*TreeNode, len(rows))
	for _, r := range rows {
		node := &TreeNode{
			NodeID:    r.NodeID,
			Title:     r.Title,
			StartPage: r.StartPage,
			EndPage:   r.EndPage,
			Text:      r.TextContent,
			Summary:   r.Summary,
			Children:  []*TreeNode{},
		}
		if parent, ok := byID[r.ParentNodeID]; ok && r.ParentNodeID != "" {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
		byID[r.NodeID] = node
	}
	return roots
}
