package linearize

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/redlinekit/redline/core/doc"
)

// mapSource is a CommentSource backed by a plain map.
type mapSource map[string]CommentDefinition

func (m mapSource) Definition(id string) (CommentDefinition, bool) {
	def, ok := m[id]
	return def, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryCollectsInEndOrder(t *testing.T) {
	src := mapSource{
		"1": {Author: "Alice", Date: "2024-01-15", Body: "first"},
		"2": {Author: "Bob", Date: "2024-01-16", Body: "second"},
	}
	reg := NewRegistry(src, discardLogger())

	// Inner range ends before the outer one: it is listed first.
	reg.CloseRange(Range{Kind: doc.MarkerComment, ID: "2", Text: "inner"})
	reg.CloseRange(Range{Kind: doc.MarkerComment, ID: "1", Text: "outer inner tail"})

	got := reg.Flush()
	if len(got) != 2 {
		t.Fatalf("Flush returned %d comments, want 2", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "1" {
		t.Errorf("Flush order = %s, %s; want 2, 1", got[0].ID, got[1].ID)
	}
	if got[0].Author != "Bob" || got[1].Author != "Alice" {
		t.Errorf("authors = %s, %s", got[0].Author, got[1].Author)
	}

	if len(reg.Flush()) != 0 {
		t.Error("second Flush should be empty")
	}
}

func TestRegistryMissingDefinition(t *testing.T) {
	reg := NewRegistry(mapSource{}, discardLogger())

	reg.CloseRange(Range{Kind: doc.MarkerComment, ID: "9", Text: "anchored"})

	got := reg.Flush()
	if len(got) != 1 {
		t.Fatalf("Flush returned %d comments, want 1", len(got))
	}
	c := got[0]
	if c.Author != "" || c.Date != "" || c.Body != "" {
		t.Errorf("degraded comment should have empty metadata, got %+v", c)
	}
	if c.AnchoredText != "anchored" {
		t.Errorf("AnchoredText = %q, want %q", c.AnchoredText, "anchored")
	}
}

func TestRegistryNilSource(t *testing.T) {
	reg := NewRegistry(nil, discardLogger())
	reg.CloseRange(Range{Kind: doc.MarkerComment, ID: "1", Text: "x"})
	if got := reg.Flush(); len(got) != 1 {
		t.Fatalf("Flush returned %d comments, want 1", len(got))
	}
}

func TestRegistryEmitsEachIDOnce(t *testing.T) {
	reg := NewRegistry(mapSource{"1": {Body: "b"}}, discardLogger())

	reg.CloseRange(Range{Kind: doc.MarkerComment, ID: "1", Text: "real range"})
	// A reference-only zero-length range for the same id arrives later.
	reg.CloseRange(Range{Kind: doc.MarkerComment, ID: "1", Text: ""})

	got := reg.Flush()
	if len(got) != 1 {
		t.Fatalf("Flush returned %d comments, want 1", len(got))
	}
	if got[0].AnchoredText != "real range" {
		t.Errorf("AnchoredText = %q, want the first range's text", got[0].AnchoredText)
	}
}

func TestFormatCommentBlock(t *testing.T) {
	tests := []struct {
		name    string
		comment Comment
		want    string
	}{
		{
			name: "full metadata",
			comment: Comment{
				ID: "1", Author: "Alice", Date: "2024-01-15",
				AnchoredText: "budget", Body: "check this",
			},
			want: "> **[批注 #1]** Alice (2024-01-15)\n" +
				"> **原文**：budget\n" +
				"> **批注**：check this",
		},
		{
			name:    "missing author and date",
			comment: Comment{ID: "2", AnchoredText: "text", Body: "note"},
			want: "> **[批注 #2]**\n" +
				"> **原文**：text\n" +
				"> **批注**：note",
		},
		{
			name:    "author without date",
			comment: Comment{ID: "3", Author: "Bob", AnchoredText: "x", Body: "y"},
			want: "> **[批注 #3]** Bob\n" +
				"> **原文**：x\n" +
				"> **批注**：y",
		},
		{
			name:    "reference-only comment omits anchored line",
			comment: Comment{ID: "4", Author: "Eve", Date: "2024-02-01", Body: "fyi"},
			want: "> **[批注 #4]** Eve (2024-02-01)\n" +
				"> **批注**：fyi",
		},
		{
			name:    "empty body omits body line",
			comment: Comment{ID: "5", AnchoredText: "span"},
			want: "> **[批注 #5]**\n" +
				"> **原文**：span",
		},
		{
			name: "multi-line anchored text stays quoted",
			comment: Comment{
				ID:           "6",
				AnchoredText: "line one\nline two",
				Body:         "reply",
			},
			want: "> **[批注 #6]**\n" +
				"> **原文**：line one\n" +
				"> line two\n" +
				"> **批注**：reply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatCommentBlock(tt.comment)
			if got != tt.want {
				t.Errorf("FormatCommentBlock() =\n%s\nwant:\n%s", got, tt.want)
			}
			for _, line := range strings.Split(got, "\n") {
				if !strings.HasPrefix(line, "> ") {
					t.Errorf("line %q escaped the quote block", line)
				}
			}
		})
	}
}
