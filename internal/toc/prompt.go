package toc

import (
	"fmt"
	"strings"

	"github.com/dgallion1/pagetree/internal/doctree"
)

const windowPrompt = `You are an expert in analyzing document structure. You are given consecutive pages of a PDF document. Each page is wrapped in <physical_index_N> and </physical_index_N> tags, where N is the physical page number.

Identify the section headings that begin on these pages and return them as a hierarchical table of contents.

For each heading, extract:
- structure_path: the hierarchical position as dotted integers ("1", "1.1", "1.2.3"). Continue the numbering of the document where it is visible.
- title: the heading text exactly as it appears on the page
- physical_index: the physical page number N where the heading appears, as an integer

Only include real headings. Do not include running headers, footers, figure captions or table rows.

Document: %s

Pages:
%s

Respond with a JSON array only, for example:
[
  {"structure_path": "1", "title": "Introduction", "physical_index": 1},
  {"structure_path": "1.1", "title": "Background", "physical_index": 2}
]`

// markPages wraps each page with its physical index tags.
func markPages(pages []doctree.PageRecord) string {
	var sb strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&sb, "<physical_index_%d>\n%s\n</physical_index_%d>\n\n", p.Index, p.Text, p.Index)
	}
	return sb.String()
}

func buildWindowPrompt(docName string, pages []doctree.PageRecord) string {
	return fmt.Sprintf(windowPrompt, docName, markPages(pages))
}
