package doc

// types.go - Annotated document model consumed by the linearization engine.
// The DOCX reader lowers WordprocessingML into these types; core/linearize
// walks them in document order. Producers build the tree once and never
// mutate it afterwards.

import "unicode/utf8"

// MarkerKind identifies the annotation a Start/End marker pair delimits.
type MarkerKind string

// Marker kind constants.
const (
	MarkerComment   MarkerKind = "comment"
	MarkerInsertion MarkerKind = "insertion"
	MarkerDeletion  MarkerKind = "deletion"
	MarkerHighlight MarkerKind = "highlight"
)

// validMarkerKinds is the set of valid marker kinds.
var validMarkerKinds = map[MarkerKind]bool{
	MarkerComment:   true,
	MarkerInsertion: true,
	MarkerDeletion:  true,
	MarkerHighlight: true,
}

// IsValid returns true if the marker kind is valid.
func (k MarkerKind) IsValid() bool {
	return validMarkerKinds[k]
}

// Boundary distinguishes the opening and closing half of a marker pair.
type Boundary string

// Boundary constants.
const (
	BoundaryStart Boundary = "start"
	BoundaryEnd   Boundary = "end"
)

// validBoundaries is the set of valid boundaries.
var validBoundaries = map[Boundary]bool{
	BoundaryStart: true,
	BoundaryEnd:   true,
}

// IsValid returns true if the boundary is valid.
func (b Boundary) IsValid() bool {
	return validBoundaries[b]
}

// Marker is one half of an annotation range boundary, anchored inside a run.
// Every Start must be closed by exactly one End with the same (Kind, ID),
// and an End never precedes its Start in document order.
type Marker struct {
	// Kind is the annotation kind this boundary belongs to.
	Kind MarkerKind `json:"kind"`

	// ID pairs a Start with its End. IDs are unique per (document, kind).
	ID string `json:"id"`

	// Boundary says whether this opens or closes the range.
	Boundary Boundary `json:"boundary"`

	// Offset is the rune offset into the owning run's text where the
	// boundary sits: 0 is before the first rune, RuneLen after the last.
	// A boundary between two runs is offset 0 of the following run.
	Offset int `json:"offset"`
}

// Start reports whether the marker opens its range.
func (m Marker) Start() bool {
	return m.Boundary == BoundaryStart
}

// Run is the smallest text unit: a string with uniform formatting plus the
// marker boundaries anchored within it, sorted by ascending Offset (equal
// offsets keep slice order). A marker-only position with no surrounding text
// is represented by a run with empty Text.
type Run struct {
	// Text is the run's character content.
	Text string `json:"text"`

	// Bold and Italic are the run-level formatting flags.
	Bold   bool `json:"bold,omitempty"`
	Italic bool `json:"italic,omitempty"`

	// Markers are the boundaries anchored in this run.
	Markers []Marker `json:"markers,omitempty"`
}

// RuneLen returns the number of runes in the run's text.
func (r *Run) RuneLen() int {
	return utf8.RuneCountInString(r.Text)
}

// AddMarker anchors a boundary in this run.
func (r *Run) AddMarker(m Marker) {
	r.Markers = append(r.Markers, m)
}

// NumberingRef ties a paragraph to a numbering definition.
type NumberingRef struct {
	// NumID is the numbering instance identifier.
	NumID string `json:"num_id"`

	// Level is the 0-based indentation level within the definition.
	Level int `json:"level"`
}

// Paragraph is an ordered sequence of runs with block-level properties.
type Paragraph struct {
	// StyleID is the paragraph style identifier ("" when unstyled).
	StyleID string `json:"style_id,omitempty"`

	// Numbering is set when the paragraph is a list item.
	Numbering *NumberingRef `json:"numbering,omitempty"`

	// Runs is the paragraph content in document order.
	Runs []*Run `json:"runs,omitempty"`
}

// AddRun appends a run to the paragraph.
func (p *Paragraph) AddRun(r *Run) {
	p.Runs = append(p.Runs, r)
}

// TableCell holds every paragraph found under a cell. Nested tables are
// flattened into the cell by the producer.
type TableCell struct {
	Paragraphs []*Paragraph `json:"paragraphs,omitempty"`
}

// TableRow is an ordered sequence of cells.
type TableRow struct {
	Cells []*TableCell `json:"cells,omitempty"`
}

// Table is an ordered sequence of rows.
type Table struct {
	Rows []*TableRow `json:"rows,omitempty"`
}

// Block is a top-level document unit. Exactly one field is non-nil.
type Block struct {
	Paragraph *Paragraph `json:"paragraph,omitempty"`
	Table     *Table     `json:"table,omitempty"`
}

// Document is the root of the annotated tree: top-level blocks in order.
type Document struct {
	// Name identifies the source (file name or upload name), for logs only.
	Name string `json:"name,omitempty"`

	// Blocks is the document body in order.
	Blocks []*Block `json:"blocks,omitempty"`
}

// AddParagraph appends a paragraph block to the document.
func (d *Document) AddParagraph(p *Paragraph) {
	d.Blocks = append(d.Blocks, &Block{Paragraph: p})
}

// AddTable appends a table block to the document.
func (d *Document) AddTable(t *Table) {
	d.Blocks = append(d.Blocks, &Block{Table: t})
}
