package parser

import (
	"errors"
	"testing"
)

func TestApproxTokenCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 1},
		{"short", "abc", 1},
		{"exact", "abcdefgh", 2},
		{"rounds down", "abcdefghij", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ApproxTokenCount(tc.text); got != tc.want {
				t.Errorf("ApproxTokenCount(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"report.pdf", "report"},
		{"/data/docs/annual report.PDF", "annual report"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := TitleFromFilename(tt.input); got != tt.want {
			t.Errorf("TitleFromFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSplitPages_DropsTrailingFormFeed(t *testing.T) {
	pages := splitPages("page one\fpage two\f")
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[1] != "page two" {
		t.Errorf("expected %q, got %q", "page two", pages[1])
	}
}

func TestToPageRecords(t *testing.T) {
	t.Run("keeps blank pages between text pages", func(t *testing.T) {
		pages := toPageRecords([]string{"  first  ", "", "third"})
		if len(pages) != 3 {
			t.Fatalf("expected 3 pages, got %d", len(pages))
		}
		for i, p := range pages {
			if p.Index != i+1 {
				t.Errorf("page %d: expected index %d, got %d", i, i+1, p.Index)
			}
			if p.ApproxTokens < 1 {
				t.Errorf("page %d: expected positive token estimate", i)
			}
		}
		if pages[0].Text != "first" {
			t.Errorf("expected trimmed text, got %q", pages[0].Text)
		}
	})

	t.Run("no text layer yields zero pages", func(t *testing.T) {
		pages := toPageRecords([]string{"", "   ", "\n"})
		if pages == nil || len(pages) != 0 {
			t.Errorf("expected empty page list, got %v", pages)
		}
	})
}

func TestPDFExtractor_CorruptInput(t *testing.T) {
	p := &PDFExtractor{}
	_, err := p.ExtractPages([]byte("this is not a pdf"))
	if err == nil {
		t.Fatal("expected an error for corrupt input")
	}
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Errorf("expected ExtractionError, got %T", err)
	}
}

func TestPDFExtractor_TitleFallsBackToFilename(t *testing.T) {
	p := &PDFExtractor{}
	if got := p.Title([]byte("garbage"), "/tmp/quarterly-results.pdf"); got != "quarterly-results" {
		t.Errorf("expected filename stem, got %q", got)
	}
}

func TestForFile(t *testing.T) {
	if _, err := ForFile("doc.pdf", false); err != nil {
		t.Errorf("expected pdf to be supported: %v", err)
	}
	if _, err := ForFile("doc.docx", false); err == nil {
		t.Error("expected docx to be rejected")
	}
	if !IsSupportedExtension("A.PDF") {
		t.Error("expected extension check to be case-insensitive")
	}
	if FileType("x/y/report.Pdf") != "pdf" {
		t.Errorf("unexpected file type %q", FileType("x/y/report.Pdf"))
	}
}
