package toc

import (
	"encoding/json"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"1.2.3", "1.2.3"},
		{"01.02", "1.2"},
		{"Section 4.1", "4.1"},
		{"2.", "2"},
		{"Appendix", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.input); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPhysicalIndex(t *testing.T) {
	tests := []struct {
		raw   string
		total int
		want  int
	}{
		{"7", 10, 7},
		{"<physical_index_7>", 10, 7},
		{"page 12", 10, 10},
		{"0", 10, 1},
		{"unknown", 10, 1},
		{"", 10, 1},
		{"99999999999999999999999", 10, 10},
	}
	for _, tt := range tests {
		if got := PhysicalIndex(tt.raw, tt.total); got != tt.want {
			t.Errorf("PhysicalIndex(%q, %d) = %d, want %d", tt.raw, tt.total, got, tt.want)
		}
	}
}

func TestMerge_DedupesByTitleAndDropsNonNumericPaths(t *testing.T) {
	windows := [][]rawEntry{
		{
			{StructurePath: "1", Title: "Intro", PhysicalIndex: "1"},
			{StructurePath: "Preface", Title: "Preface", PhysicalIndex: "1"},
		},
		nil,
		{
			{StructurePath: "1", Title: "Intro", PhysicalIndex: "9"},
			{StructurePath: "2", Title: "  ", PhysicalIndex: "9"},
			{StructurePath: "2", Title: "Body", PhysicalIndex: "9"},
		},
	}
	got := Merge(windows, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	if got[0].Title != "Intro" || got[0].PhysicalIndex != 1 {
		t.Errorf("expected first Intro to win, got %+v", got[0])
	}
	if got[1].Title != "Body" {
		t.Errorf("expected Body second, got %+v", got[1])
	}
}

func TestRawEntry_AcceptsNumbersAndStrings(t *testing.T) {
	var entries []rawEntry
	data := `[{"structure_path": 2, "title": "A", "physical_index": 5},
	          {"structure_path": "2.1", "title": "B", "physical_index": null}]`
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entries[0].StructurePath != "2" || entries[0].PhysicalIndex != "5" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].PhysicalIndex != "" {
		t.Errorf("expected null page to decode empty, got %q", entries[1].PhysicalIndex)
	}
}
