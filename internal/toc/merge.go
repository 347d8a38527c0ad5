package toc

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// looseString accepts a JSON string or number and keeps its literal text.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	*s = looseString(data)
	return nil
}

// rawEntry is one heading as the model reported it.
type rawEntry struct {
	StructurePath looseString `json:"structure_path"`
	Title         string      `json:"title"`
	PhysicalIndex looseString `json:"physical_index"`
}

var (
	digitRunRe = regexp.MustCompile(`\d+`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

// NormalizePath rewrites a structure path as dotted integers, dropping any
// non-numeric decoration. It returns "" when the path has no digits.
func NormalizePath(path string) string {
	parts := digitRunRe.FindAllString(path, -1)
	if len(parts) == 0 {
		return ""
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ""
		}
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// PhysicalIndex coerces a model-reported page reference to a page number in
// [1, totalPages]. References without digits map to page 1.
func PhysicalIndex(raw string, totalPages int) int {
	digits := nonDigitRe.ReplaceAllString(raw, "")
	page := 1
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil {
			n = totalPages
		}
		page = n
	}
	if totalPages < 1 {
		totalPages = 1
	}
	return min(max(page, 1), totalPages)
}

// Merge flattens per-window fragments in window order into sanitized
// entries. The first occurrence of a title wins.
func Merge(windows [][]rawEntry, totalPages int) []doctree.TocEntry {
	seen := make(map[string]bool)
	out := make([]doctree.TocEntry, 0)
	for _, window := range windows {
		for _, raw := range window {
			title := strings.TrimSpace(raw.Title)
			if title == "" || seen[title] {
				continue
			}
			path := NormalizePath(string(raw.StructurePath))
			if path == "" {
				continue
			}
			seen[title] = true
			out = append(out, doctree.TocEntry{
				StructurePath: path,
				Title:         title,
				PhysicalIndex: PhysicalIndex(string(raw.PhysicalIndex), totalPages),
			})
		}
	}
	return out
}
