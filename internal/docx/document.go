package docx

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/redlinekit/redline/core/doc"
	rlerrors "github.com/redlinekit/redline/core/errors"
	"github.com/redlinekit/redline/core/xml"
)

// Document lowers word/document.xml into the annotated document model. Each
// call builds a fresh tree.
func (f *File) Document() (*doc.Document, error) {
	root := f.document.Root()
	if root == nil || root.Name() != "document" {
		return nil, &rlerrors.ParseError{
			Format:  "XML",
			Path:    f.name + "!" + PartDocument,
			Message: "missing w:document root",
		}
	}
	body := root.FirstChildNamed("body")
	if body == nil {
		return nil, &rlerrors.ParseError{
			Format:  "XML",
			Path:    f.name + "!" + PartDocument,
			Message: "missing w:body",
		}
	}

	lw := newLowerer(f.logger)
	d := &doc.Document{Name: f.name}
	for _, child := range body.Children() {
		switch child.Name() {
		case "p":
			d.AddParagraph(lw.paragraph(child))
		case "tbl":
			d.AddTable(lw.table(child))
		default:
			// sectPr, bookmarks, and other non-content elements
		}
	}
	return d, nil
}

// lowerer carries the state threaded through one body walk: synthesized
// range ids, the comment ids opened so far, and the boundaries waiting for
// the next run.
type lowerer struct {
	logger *slog.Logger

	insSeq int
	delSeq int
	hlSeq  int

	openedComments map[string]bool // ids opened via commentRangeStart
	referenced     map[string]bool // ids already synthesized from commentReference

	// Per-paragraph state. Boundaries between runs wait in pending and
	// anchor at offset 0 of the next run; hlID is the open synthesized
	// highlight range, closed at the end of lastRun when a non-highlighted
	// run or the paragraph end interrupts it.
	pending []doc.Marker
	hlID    string
	lastRun *doc.Run
}

func newLowerer(logger *slog.Logger) *lowerer {
	return &lowerer{
		logger:         logger,
		openedComments: make(map[string]bool),
		referenced:     make(map[string]bool),
	}
}

func (lw *lowerer) paragraph(node *xml.Node) *doc.Paragraph {
	p := &doc.Paragraph{}
	if pPr := node.FirstChildNamed("pPr"); pPr != nil {
		if style := pPr.FirstChildNamed("pStyle"); style != nil {
			p.StyleID = style.Attr("val")
		}
		if numPr := pPr.FirstChildNamed("numPr"); numPr != nil {
			p.Numbering = numberingRef(numPr)
		}
	}
	lw.content(node, p)
	lw.closeParagraph(p)
	return p
}

func numberingRef(numPr *xml.Node) *doc.NumberingRef {
	numID := numPr.FirstChildNamed("numId")
	if numID == nil || numID.Attr("val") == "" {
		return nil
	}
	ref := &doc.NumberingRef{NumID: numID.Attr("val")}
	if ilvl := numPr.FirstChildNamed("ilvl"); ilvl != nil {
		if v, err := strconv.Atoi(ilvl.Attr("val")); err == nil && v >= 0 {
			ref.Level = v
		}
	}
	return ref
}

// content walks paragraph-level children. Revision wrappers and hyperlinks
// recurse; range boundaries join pending; everything else is skipped.
func (lw *lowerer) content(parent *xml.Node, p *doc.Paragraph) {
	for _, child := range parent.Children() {
		switch child.Name() {
		case "r":
			lw.run(child, p)
		case "hyperlink", "smartTag":
			lw.content(child, p)
		case "ins":
			lw.revision(child, doc.MarkerInsertion, p)
		case "del":
			lw.revision(child, doc.MarkerDeletion, p)
		case "commentRangeStart":
			if id := child.Attr("id"); id != "" {
				lw.openedComments[id] = true
				lw.pending = append(lw.pending, doc.Marker{
					Kind: doc.MarkerComment, ID: id, Boundary: doc.BoundaryStart,
				})
			}
		case "commentRangeEnd":
			if id := child.Attr("id"); id != "" {
				lw.pending = append(lw.pending, doc.Marker{
					Kind: doc.MarkerComment, ID: id, Boundary: doc.BoundaryEnd,
				})
			}
		case "pPr":
			// handled by paragraph
		default:
			// bookmarks, proofing marks, field chars
		}
	}
}

// revision wraps the contained runs in an insertion or deletion range.
// Nested wrappers of the same kind nest their ranges.
func (lw *lowerer) revision(node *xml.Node, kind doc.MarkerKind, p *doc.Paragraph) {
	id := node.Attr("id")
	if id == "" {
		switch kind {
		case doc.MarkerInsertion:
			lw.insSeq++
			id = "ins#" + strconv.Itoa(lw.insSeq)
		default:
			lw.delSeq++
			id = "del#" + strconv.Itoa(lw.delSeq)
		}
	}
	lw.pending = append(lw.pending, doc.Marker{Kind: kind, ID: id, Boundary: doc.BoundaryStart})
	lw.content(node, p)
	lw.pending = append(lw.pending, doc.Marker{Kind: kind, ID: id, Boundary: doc.BoundaryEnd})
}

// run lowers one w:r into a model run, anchoring any waiting boundaries at
// its start and synthesizing highlight range boundaries around consecutive
// highlighted runs.
func (lw *lowerer) run(node *xml.Node, p *doc.Paragraph) {
	r := &doc.Run{}
	highlighted := false
	if rPr := node.FirstChildNamed("rPr"); rPr != nil {
		r.Bold = onOff(rPr, "b")
		r.Italic = onOff(rPr, "i")
		highlighted = highlightOn(rPr)
	}

	var text strings.Builder
	var refs []doc.Marker
	runes := 0
	add := func(s string) {
		text.WriteString(s)
		runes += utf8.RuneCountInString(s)
	}

	for _, child := range node.Children() {
		if s, ok := specialText(child); ok {
			add(s)
			continue
		}
		if child.Name() != "commentReference" {
			continue
		}
		// A reference without a preceding range start is a comment anchored
		// to a point: synthesize a zero-length range so it still reaches the
		// output.
		id := child.Attr("id")
		if id != "" && !lw.openedComments[id] && !lw.referenced[id] {
			lw.referenced[id] = true
			refs = append(refs,
				doc.Marker{Kind: doc.MarkerComment, ID: id, Boundary: doc.BoundaryStart, Offset: runes},
				doc.Marker{Kind: doc.MarkerComment, ID: id, Boundary: doc.BoundaryEnd, Offset: runes},
			)
		}
	}

	r.Text = text.String()
	if r.Text == "" && len(refs) == 0 {
		// formatting-only run; boundaries keep waiting
		return
	}

	if r.Text != "" {
		if highlighted && lw.hlID == "" {
			lw.hlSeq++
			lw.hlID = "hl#" + strconv.Itoa(lw.hlSeq)
			lw.pending = append(lw.pending, doc.Marker{
				Kind: doc.MarkerHighlight, ID: lw.hlID, Boundary: doc.BoundaryStart,
			})
		} else if !highlighted && lw.hlID != "" {
			lw.closeHighlight()
		}
	}

	r.Markers = append(r.Markers, lw.pending...)
	lw.pending = nil
	r.Markers = append(r.Markers, refs...)
	p.AddRun(r)
	if r.Text != "" {
		lw.lastRun = r
	}
}

// closeHighlight ends the open highlight range at the end of the last
// text-bearing run.
func (lw *lowerer) closeHighlight() {
	if lw.hlID == "" {
		return
	}
	if lw.lastRun != nil {
		lw.lastRun.AddMarker(doc.Marker{
			Kind:     doc.MarkerHighlight,
			ID:       lw.hlID,
			Boundary: doc.BoundaryEnd,
			Offset:   lw.lastRun.RuneLen(),
		})
	}
	lw.hlID = ""
}

// closeParagraph settles per-paragraph state: the highlight range ends at
// the block boundary and leftover boundaries anchor in a trailing empty run.
func (lw *lowerer) closeParagraph(p *doc.Paragraph) {
	lw.closeHighlight()
	if len(lw.pending) > 0 {
		p.AddRun(&doc.Run{Markers: lw.pending})
		lw.pending = nil
	}
	lw.lastRun = nil
}

func (lw *lowerer) table(node *xml.Node) *doc.Table {
	t := &doc.Table{}
	for _, tr := range node.Children() {
		if tr.Name() != "tr" {
			continue
		}
		row := &doc.TableRow{}
		for _, tc := range tr.Children() {
			if tc.Name() != "tc" {
				continue
			}
			cell := &doc.TableCell{}
			lw.cellContent(tc, cell)
			row.Cells = append(row.Cells, cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// cellContent collects every paragraph under a cell. Nested tables flatten
// into the enclosing cell in document order.
func (lw *lowerer) cellContent(tc *xml.Node, cell *doc.TableCell) {
	for _, child := range tc.Children() {
		switch child.Name() {
		case "p":
			cell.Paragraphs = append(cell.Paragraphs, lw.paragraph(child))
		case "tbl":
			for _, tr := range child.Children() {
				if tr.Name() != "tr" {
					continue
				}
				for _, inner := range tr.Children() {
					if inner.Name() == "tc" {
						lw.cellContent(inner, cell)
					}
				}
			}
		}
	}
}

// specialText maps one run child element to its text contribution: w:t and
// w:delText carry literal text, tabs and breaks normalize to "\t" and "\n",
// and the hyphen elements map to U+2011 and U+00AD.
func specialText(child *xml.Node) (string, bool) {
	switch child.Name() {
	case "t", "delText":
		return child.Text(), true
	case "tab":
		return "\t", true
	case "br", "cr":
		return "\n", true
	case "noBreakHyphen":
		return "\u2011", true
	case "softHyphen":
		return "\u00ad", true
	}
	return "", false
}

// onOff reports whether a w:rPr toggle child is present and not explicitly
// disabled.
func onOff(rPr *xml.Node, name string) bool {
	el := rPr.FirstChildNamed(name)
	if el == nil {
		return false
	}
	switch el.Attr("val") {
	case "false", "0":
		return false
	}
	return true
}

// highlightOn reports whether the run carries a visible highlight.
func highlightOn(rPr *xml.Node) bool {
	el := rPr.FirstChildNamed("highlight")
	if el == nil {
		return false
	}
	val := el.Attr("val")
	return val != "" && val != "none"
}
