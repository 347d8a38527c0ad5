package doctree

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleTree() *DocumentTree {
	roots := Build([]TocEntry{
		{StructurePath: "1", Title: "Intro", PhysicalIndex: 1},
		{StructurePath: "1.1", Title: "Background", PhysicalIndex: 2},
		{StructurePath: "1.2", Title: "Scope", PhysicalIndex: 3},
		{StructurePath: "1.2.1", Title: "Limits", PhysicalIndex: 3},
		{StructurePath: "2", Title: "Methods", PhysicalIndex: 5},
	}, 10)
	return &DocumentTree{DocName: "report", DocDescription: "A report.", Roots: roots}
}

func TestFlatten_PreOrderVisitsEveryNodeOnce(t *testing.T) {
	tree := sampleTree()
	rows := Flatten(tree)

	want := []string{"Intro", "Background", "Scope", "Limits", "Methods"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, w := range want {
		if rows[i].Title != w {
			t.Errorf("row %d: expected %q, got %q", i, w, rows[i].Title)
		}
		if rows[i].Ordinal != i {
			t.Errorf("row %d: expected ordinal %d, got %d", i, i, rows[i].Ordinal)
		}
	}

	if rows[0].ParentNodeID != "" || rows[0].Depth != 0 {
		t.Errorf("expected Intro to be a root, got parent=%q depth=%d", rows[0].ParentNodeID, rows[0].Depth)
	}
	if rows[3].ParentNodeID != rows[2].NodeID || rows[3].Depth != 2 {
		t.Errorf("expected Limits under Scope at depth 2, got parent=%q depth=%d", rows[3].ParentNodeID, rows[3].Depth)
	}

	ids := map[string]bool{}
	for _, r := range rows {
		ids[r.NodeID] = true
	}
	for _, r := range rows {
		if r.ParentNodeID != "" && !ids[r.ParentNodeID] {
			t.Errorf("row %s references unknown parent %s", r.NodeID, r.ParentNodeID)
		}
	}
}

func TestNest_ReconstructsIsomorphicTree(t *testing.T) {
	tree := sampleTree()
	rebuilt := &DocumentTree{Roots: Nest(Flatten(tree))}

	if shape(tree.Roots) != shape(rebuilt.Roots) {
		t.Errorf("shape mismatch:\n%s\n%s", shape(tree.Roots), shape(rebuilt.Roots))
	}
}

func TestDocumentTree_JSONRoundTripRestoresChildren(t *testing.T) {
	tree := sampleTree()
	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"structure"`) || !strings.Contains(string(data), `"start_index"`) {
		t.Errorf("expected persisted key names, got %s", data)
	}

	var decoded DocumentTree
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.NodeCount() != tree.NodeCount() {
		t.Errorf("expected %d nodes, got %d", tree.NodeCount(), decoded.NodeCount())
	}
	decoded.Walk(func(n *TreeNode, _ int) {
		if n.Children == nil {
			t.Errorf("node %s has nil children after decode", n.NodeID)
		}
	})
	if strings.Join(decoded.NodeIDs(), ",") != strings.Join(tree.NodeIDs(), ",") {
		t.Errorf("node ids changed: %v vs %v", decoded.NodeIDs(), tree.NodeIDs())
	}
}

func TestSkeleton_DropsTextKeepsSummary(t *testing.T) {
	tree := sampleTree()
	tree.Walk(func(n *TreeNode, _ int) {
		n.Text = "full text of " + n.Title
		n.Summary = "summary of " + n.Title
	})

	sk := tree.Skeleton()
	sk.Walk(func(n *TreeNode, _ int) {
		if n.Text != "" {
			t.Errorf("expected no text on %s", n.NodeID)
		}
		if n.Summary == "" {
			t.Errorf("expected summary on %s", n.NodeID)
		}
	})
	if tree.Find("0000").Text == "" {
		t.Error("skeleton must not modify the original tree")
	}
}

func TestFind(t *testing.T) {
	tree := sampleTree()
	if n := tree.Find("0003"); n == nil || n.Title != "Limits" {
		t.Errorf("expected to find Limits, got %v", n)
	}
	if tree.Find("9999") != nil {
		t.Error("expected nil for unknown id")
	}
}

func shape(nodes []*TreeNode) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString("(")
		sb.WriteString(n.Title)
		sb.WriteString(shape(n.Children))
		sb.WriteString(")")
	}
	return sb.String()
}
