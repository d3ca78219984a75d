package linearize

import (
	"errors"
	"strings"
	"testing"

	"github.com/redlinekit/redline/core/doc"
)

// mapStyles resolves heading levels from a plain map; absent ids are body.
type mapStyles map[string]int

func (m mapStyles) HeadingLevel(styleID string) int { return m[styleID] }

// mapNumbering resolves list markers from a map keyed by numbering reference.
type mapNumbering map[doc.NumberingRef]ListMarker

func (m mapNumbering) ListMarker(numID string, level int) (ListMarker, bool) {
	mk, ok := m[doc.NumberingRef{NumID: numID, Level: level}]
	return mk, ok
}

func textRun(s string) *doc.Run { return &doc.Run{Text: s} }

func marker(kind doc.MarkerKind, id string, b doc.Boundary, offset int) doc.Marker {
	return doc.Marker{Kind: kind, ID: id, Boundary: b, Offset: offset}
}

func para(runs ...*doc.Run) *doc.Paragraph {
	p := &doc.Paragraph{}
	for _, r := range runs {
		p.AddRun(r)
	}
	return p
}

func testOptions() Options {
	return Options{Logger: discardLogger()}
}

func TestLinearizeHeading(t *testing.T) {
	d := &doc.Document{}
	p := para(textRun("Intro"))
	p.StyleID = "Heading1"
	d.AddParagraph(p)

	opts := testOptions()
	opts.Styles = mapStyles{"Heading1": 1}

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	if got != "# Intro\n" {
		t.Errorf("Linearize() = %q, want %q", got, "# Intro\n")
	}
}

func TestLinearizeHeadingLevels(t *testing.T) {
	styles := mapStyles{"H2": 2, "H6": 6}
	tests := []struct {
		styleID string
		want    string
	}{
		{"H2", "## deep\n"},
		{"H6", "###### deep\n"},
		{"Unknown", "deep\n"},
		{"", "deep\n"},
	}

	for _, tt := range tests {
		d := &doc.Document{}
		p := para(textRun("deep"))
		p.StyleID = tt.styleID
		d.AddParagraph(p)

		opts := testOptions()
		opts.Styles = styles

		got, err := Linearize(d, opts)
		if err != nil {
			t.Fatalf("Linearize failed for style %q: %v", tt.styleID, err)
		}
		if got != tt.want {
			t.Errorf("style %q rendered %q, want %q", tt.styleID, got, tt.want)
		}
	}
}

func TestLinearizeMergesAdjacentHighlights(t *testing.T) {
	// Two runs, each wrapped in its own highlight range. The rendered
	// output must not fragment into ==hello====world==.
	d := &doc.Document{}
	d.AddParagraph(para(
		&doc.Run{Text: "hello", Markers: []doc.Marker{
			marker(doc.MarkerHighlight, "h1", doc.BoundaryStart, 0),
			marker(doc.MarkerHighlight, "h1", doc.BoundaryEnd, 5),
		}},
		&doc.Run{Text: "world", Markers: []doc.Marker{
			marker(doc.MarkerHighlight, "h2", doc.BoundaryStart, 0),
			marker(doc.MarkerHighlight, "h2", doc.BoundaryEnd, 5),
		}},
	))

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	if got != "==helloworld==\n" {
		t.Errorf("Linearize() = %q, want %q", got, "==helloworld==\n")
	}
}

func TestLinearizeCommentAfterParagraph(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para(&doc.Run{
		Text: "We set the budget here.",
		Markers: []doc.Marker{
			marker(doc.MarkerComment, "1", doc.BoundaryStart, 11),
			marker(doc.MarkerComment, "1", doc.BoundaryEnd, 17),
		},
	}))

	opts := testOptions()
	opts.Comments = mapSource{
		"1": {Author: "Alice", Date: "2024-01-15", Body: "check this"},
	}

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "We set the budget here.\n" +
		"\n" +
		"> **[批注 #1]** Alice (2024-01-15)\n" +
		"> **原文**：budget\n" +
		"> **批注**：check this\n"
	if got != want {
		t.Errorf("Linearize() =\n%q\nwant:\n%q", got, want)
	}
}

func TestLinearizeConflictingRevision(t *testing.T) {
	// Text claimed by an insertion and a deletion at once is an unsupported
	// encoding: the conversion fails and emits nothing.
	d := &doc.Document{}
	d.AddParagraph(para(&doc.Run{
		Text: "both",
		Markers: []doc.Marker{
			marker(doc.MarkerInsertion, "i1", doc.BoundaryStart, 0),
			marker(doc.MarkerDeletion, "d1", doc.BoundaryStart, 0),
			marker(doc.MarkerDeletion, "d1", doc.BoundaryEnd, 4),
			marker(doc.MarkerInsertion, "i1", doc.BoundaryEnd, 4),
		},
	}))

	got, err := Linearize(d, testOptions())
	if err == nil {
		t.Fatal("Linearize should fail for conflicting revisions")
	}
	if !errors.Is(err, ErrConflictingRevision) {
		t.Errorf("error should wrap ErrConflictingRevision, got %v", err)
	}
	if got != "" {
		t.Errorf("failed conversion emitted %q, want empty", got)
	}
}

func TestLinearizeOrderedList(t *testing.T) {
	numbering := mapNumbering{
		{NumID: "n1", Level: 1}: {Ordered: true, Depth: 1, Start: 1},
	}

	d := &doc.Document{}
	for _, text := range []string{"A", "B"} {
		p := para(textRun(text))
		p.Numbering = &doc.NumberingRef{NumID: "n1", Level: 1}
		d.AddParagraph(p)
	}

	opts := testOptions()
	opts.Numbering = numbering

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "  1. A\n  2. B\n"
	if got != want {
		t.Errorf("Linearize() = %q, want %q", got, want)
	}
}

func TestLinearizeListCountersNeverReset(t *testing.T) {
	numbering := mapNumbering{
		{NumID: "n1", Level: 0}: {Ordered: true, Depth: 0, Start: 5},
	}

	d := &doc.Document{}
	first := para(textRun("one"))
	first.Numbering = &doc.NumberingRef{NumID: "n1", Level: 0}
	d.AddParagraph(first)
	d.AddParagraph(para(textRun("interlude")))
	second := para(textRun("two"))
	second.Numbering = &doc.NumberingRef{NumID: "n1", Level: 0}
	d.AddParagraph(second)

	opts := testOptions()
	opts.Numbering = numbering

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "5. one\ninterlude\n6. two\n"
	if got != want {
		t.Errorf("Linearize() = %q, want %q", got, want)
	}
}

func TestLinearizeUnorderedList(t *testing.T) {
	numbering := mapNumbering{
		{NumID: "b1", Level: 0}: {Ordered: false, Depth: 0},
		{NumID: "b1", Level: 2}: {Ordered: false, Depth: 2},
	}

	d := &doc.Document{}
	outer := para(textRun("top"))
	outer.Numbering = &doc.NumberingRef{NumID: "b1", Level: 0}
	d.AddParagraph(outer)
	inner := para(textRun("nested"))
	inner.Numbering = &doc.NumberingRef{NumID: "b1", Level: 2}
	d.AddParagraph(inner)

	opts := testOptions()
	opts.Numbering = numbering

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "- top\n    - nested\n"
	if got != want {
		t.Errorf("Linearize() = %q, want %q", got, want)
	}
}

func TestLinearizeUnknownNumberingFallsBack(t *testing.T) {
	d := &doc.Document{}
	p := para(textRun("item"))
	p.Numbering = &doc.NumberingRef{NumID: "missing", Level: 3}
	d.AddParagraph(p)

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	if got != "- item\n" {
		t.Errorf("Linearize() = %q, want %q", got, "- item\n")
	}
}

func TestLinearizeRevisionRanges(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para(
		textRun("keep "),
		&doc.Run{Text: "added", Markers: []doc.Marker{
			marker(doc.MarkerInsertion, "i1", doc.BoundaryStart, 0),
			marker(doc.MarkerInsertion, "i1", doc.BoundaryEnd, 5),
		}},
		textRun(" and "),
		&doc.Run{Text: "removed", Markers: []doc.Marker{
			marker(doc.MarkerDeletion, "d1", doc.BoundaryStart, 0),
			marker(doc.MarkerDeletion, "d1", doc.BoundaryEnd, 7),
		}},
	))

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "keep {+added+} and [-removed-]\n"
	if got != want {
		t.Errorf("Linearize() = %q, want %q", got, want)
	}
}

func TestLinearizeRunFormatting(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para(
		&doc.Run{Text: "bold", Bold: true},
		textRun(" and "),
		&doc.Run{Text: "italic", Italic: true},
	))

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "**bold** and *italic*\n"
	if got != want {
		t.Errorf("Linearize() = %q, want %q", got, want)
	}
}

func TestLinearizeNestedCommentsIndependent(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para(
		&doc.Run{Text: "one ", Markers: []doc.Marker{
			marker(doc.MarkerComment, "outer", doc.BoundaryStart, 0),
		}},
		&doc.Run{Text: "two ", Markers: []doc.Marker{
			marker(doc.MarkerComment, "inner", doc.BoundaryStart, 0),
		}},
		&doc.Run{Text: "three ", Markers: []doc.Marker{
			marker(doc.MarkerComment, "inner", doc.BoundaryEnd, 6),
		}},
		textRun("four "),
		&doc.Run{Text: "five", Markers: []doc.Marker{
			marker(doc.MarkerComment, "outer", doc.BoundaryEnd, 4),
		}},
	))

	opts := testOptions()
	opts.Comments = mapSource{
		"outer": {Author: "O", Body: "outer note"},
		"inner": {Author: "I", Body: "inner note"},
	}

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}

	// The inner range closes first, so its block comes first.
	innerIdx := strings.Index(got, "#inner")
	outerIdx := strings.Index(got, "#outer")
	if innerIdx < 0 || outerIdx < 0 {
		t.Fatalf("output missing comment blocks:\n%s", got)
	}
	if innerIdx > outerIdx {
		t.Error("inner comment should be listed before outer (End order)")
	}

	// Anchored texts are independent: outer contains inner verbatim and
	// inner is a strict substring of outer.
	spansByID := map[string]string{
		"outer": "one two three four five",
		"inner": "two three",
	}
	for id, anchored := range spansByID {
		if !strings.Contains(got, "**原文**："+anchored) {
			t.Errorf("output missing anchored text %q for %s:\n%s", anchored, id, got)
		}
	}
	if !strings.Contains(spansByID["outer"], spansByID["inner"]) {
		t.Error("outer anchored text should contain the inner's region verbatim")
	}
	if len(spansByID["inner"]) >= len(spansByID["outer"]) {
		t.Error("inner anchored text should be a strict substring of the outer's")
	}
}

func TestLinearizeReferenceOnlyComment(t *testing.T) {
	// A comment attached to a point rather than a span lowers to a
	// zero-length range: the block renders without an anchored-text line.
	d := &doc.Document{}
	d.AddParagraph(para(&doc.Run{
		Text: "see note",
		Markers: []doc.Marker{
			marker(doc.MarkerComment, "7", doc.BoundaryStart, 8),
			marker(doc.MarkerComment, "7", doc.BoundaryEnd, 8),
		},
	}))

	opts := testOptions()
	opts.Comments = mapSource{"7": {Author: "Eve", Date: "2024-03-01", Body: "ping"}}

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "see note\n" +
		"\n" +
		"> **[批注 #7]** Eve (2024-03-01)\n" +
		"> **批注**：ping\n"
	if got != want {
		t.Errorf("Linearize() =\n%q\nwant:\n%q", got, want)
	}
}

func TestLinearizeTable(t *testing.T) {
	cell := func(texts ...string) *doc.TableCell {
		c := &doc.TableCell{}
		for _, s := range texts {
			c.Paragraphs = append(c.Paragraphs, para(textRun(s)))
		}
		return c
	}

	tbl := &doc.Table{Rows: []*doc.TableRow{
		{Cells: []*doc.TableCell{cell("Name"), cell("Value")}},
		{Cells: []*doc.TableCell{cell("first", "second")}},
	}}
	d := &doc.Document{}
	d.AddTable(tbl)

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "| Name | Value |\n" +
		"| --- | --- |\n" +
		"| first second |  |\n"
	if got != want {
		t.Errorf("Linearize() =\n%q\nwant:\n%q", got, want)
	}
}

func TestLinearizeTableCellLineBreaks(t *testing.T) {
	c := &doc.TableCell{Paragraphs: []*doc.Paragraph{para(textRun("a\nb"))}}
	tbl := &doc.Table{Rows: []*doc.TableRow{{Cells: []*doc.TableCell{c}}}}
	d := &doc.Document{}
	d.AddTable(tbl)

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "| a b |\n| --- |\n"
	if got != want {
		t.Errorf("Linearize() = %q, want %q", got, want)
	}
}

func TestLinearizeCommentInsideTable(t *testing.T) {
	c := &doc.TableCell{Paragraphs: []*doc.Paragraph{para(&doc.Run{
		Text: "cell",
		Markers: []doc.Marker{
			marker(doc.MarkerComment, "9", doc.BoundaryStart, 0),
			marker(doc.MarkerComment, "9", doc.BoundaryEnd, 4),
		},
	})}}
	tbl := &doc.Table{Rows: []*doc.TableRow{{Cells: []*doc.TableCell{c}}}}
	d := &doc.Document{}
	d.AddTable(tbl)

	opts := testOptions()
	opts.Comments = mapSource{"9": {Body: "table note"}}

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "| cell |\n" +
		"| --- |\n" +
		"\n" +
		"> **[批注 #9]**\n" +
		"> **原文**：cell\n" +
		"> **批注**：table note\n"
	if got != want {
		t.Errorf("Linearize() =\n%q\nwant:\n%q", got, want)
	}
}

func TestLinearizeUnclosedRangeFails(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para(&doc.Run{
		Text: "dangling",
		Markers: []doc.Marker{
			marker(doc.MarkerComment, "1", doc.BoundaryStart, 0),
		},
	}))

	got, err := Linearize(d, testOptions())
	if err == nil {
		t.Fatal("Linearize should fail for an unclosed range")
	}
	if !errors.Is(err, ErrUnbalancedMarker) {
		t.Errorf("error should wrap ErrUnbalancedMarker, got %v", err)
	}
	if got != "" {
		t.Errorf("failed conversion emitted %q, want empty", got)
	}
}

func TestLinearizeStrayEndFails(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para(&doc.Run{
		Text: "text",
		Markers: []doc.Marker{
			marker(doc.MarkerHighlight, "h1", doc.BoundaryEnd, 4),
		},
	}))

	_, err := Linearize(d, testOptions())
	if err == nil {
		t.Fatal("Linearize should fail for an end without a start")
	}
	if !errors.Is(err, ErrUnbalancedMarker) {
		t.Errorf("error should wrap ErrUnbalancedMarker, got %v", err)
	}
}

func TestLinearizeEmptyDocument(t *testing.T) {
	got, err := Linearize(&doc.Document{}, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	if got != "" {
		t.Errorf("empty document rendered %q, want empty string", got)
	}
}

func TestLinearizeSkipsEmptyParagraphs(t *testing.T) {
	d := &doc.Document{}
	d.AddParagraph(para())
	d.AddParagraph(para(textRun("   ")))
	d.AddParagraph(para(textRun("real")))

	got, err := Linearize(d, testOptions())
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	if got != "real\n" {
		t.Errorf("Linearize() = %q, want %q", got, "real\n")
	}
}

func TestLinearizerSinglePass(t *testing.T) {
	l := New(testOptions())
	if _, err := l.Linearize(&doc.Document{}); err != nil {
		t.Fatalf("first Linearize failed: %v", err)
	}
	if _, err := l.Linearize(&doc.Document{}); err == nil {
		t.Error("second Linearize on the same instance should fail")
	}
}

func TestLinearizeDeterministic(t *testing.T) {
	d := &doc.Document{}
	h := para(textRun("Title"))
	h.StyleID = "H1"
	d.AddParagraph(h)
	d.AddParagraph(para(
		&doc.Run{Text: "bold", Bold: true},
		&doc.Run{Text: " mixed ", Markers: []doc.Marker{
			marker(doc.MarkerHighlight, "h1", doc.BoundaryStart, 0),
			marker(doc.MarkerHighlight, "h1", doc.BoundaryEnd, 7),
		}},
		&doc.Run{Text: "note", Markers: []doc.Marker{
			marker(doc.MarkerComment, "c1", doc.BoundaryStart, 0),
			marker(doc.MarkerComment, "c1", doc.BoundaryEnd, 4),
		}},
	))
	item := para(textRun("entry"))
	item.Numbering = &doc.NumberingRef{NumID: "n1", Level: 0}
	d.AddParagraph(item)

	opts := testOptions()
	opts.Styles = mapStyles{"H1": 1}
	opts.Numbering = mapNumbering{{NumID: "n1", Level: 0}: {Ordered: true, Depth: 0, Start: 1}}
	opts.Comments = mapSource{"c1": {Author: "A", Date: "2024-05-01", Body: "b"}}

	first, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := Linearize(d, opts)
		if err != nil {
			t.Fatalf("Linearize run %d failed: %v", i, err)
		}
		if got != first {
			t.Fatalf("run %d diverged:\n%q\nfirst:\n%q", i, got, first)
		}
	}
}

func TestLinearizeDocumentOrder(t *testing.T) {
	d := &doc.Document{}
	h := para(textRun("Report"))
	h.StyleID = "H1"
	d.AddParagraph(h)
	d.AddParagraph(para(&doc.Run{
		Text: "Numbers look high.",
		Markers: []doc.Marker{
			marker(doc.MarkerComment, "1", doc.BoundaryStart, 0),
			marker(doc.MarkerComment, "1", doc.BoundaryEnd, 7),
		},
	}))
	tbl := &doc.Table{Rows: []*doc.TableRow{
		{Cells: []*doc.TableCell{
			{Paragraphs: []*doc.Paragraph{para(textRun("Q1"))}},
			{Paragraphs: []*doc.Paragraph{para(textRun("42"))}},
		}},
	}}
	d.AddTable(tbl)

	opts := testOptions()
	opts.Styles = mapStyles{"H1": 1}
	opts.Comments = mapSource{"1": {Author: "Alice", Body: "verify"}}

	got, err := Linearize(d, opts)
	if err != nil {
		t.Fatalf("Linearize failed: %v", err)
	}
	want := "# Report\n" +
		"Numbers look high.\n" +
		"\n" +
		"> **[批注 #1]** Alice\n" +
		"> **原文**：Numbers\n" +
		"> **批注**：verify\n" +
		"| Q1 | 42 |\n" +
		"| --- | --- |\n"
	if got != want {
		t.Errorf("Linearize() =\n%q\nwant:\n%q", got, want)
	}
}
