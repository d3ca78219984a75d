package linearize

import (
	"fmt"
	"strings"

	"github.com/redlinekit/redline/core/doc"
)

// markerKindOrder fixes the iteration order wherever open frames are
// reported, keeping output deterministic.
var markerKindOrder = []doc.MarkerKind{
	doc.MarkerComment,
	doc.MarkerInsertion,
	doc.MarkerDeletion,
	doc.MarkerHighlight,
}

// Range is a closed annotation span with its enclosed text materialized.
type Range struct {
	Kind     doc.MarkerKind
	ID       string
	StartPos int
	EndPos   int
	Text     string
}

// frame is an open range waiting for its End marker. Its buffer accumulates
// every text segment visited while the frame is open and is handed over,
// not copied, when the range closes.
type frame struct {
	kind     doc.MarkerKind
	id       string
	startPos int
	buf      strings.Builder
}

// RangeTracker resolves Start/End marker pairs into closed Ranges. Same-kind
// ranges must nest or be disjoint; each kind keeps its own stack so different
// kinds overlap freely. One tracker serves exactly one document.
type RangeTracker struct {
	stacks map[doc.MarkerKind][]*frame
	open   int
}

// NewRangeTracker creates an empty tracker.
func NewRangeTracker() *RangeTracker {
	return &RangeTracker{stacks: make(map[doc.MarkerKind][]*frame)}
}

// Open pushes a new frame for (kind, id) starting at pos.
func (t *RangeTracker) Open(kind doc.MarkerKind, id string, pos int) {
	t.stacks[kind] = append(t.stacks[kind], &frame{kind: kind, id: id, startPos: pos})
	t.open++
}

// Close pops the innermost frame of kind and returns the closed Range. The
// top of the kind's stack must carry the same id; anything else is a crossing
// or stray boundary and fails with an UnbalancedMarkerError.
func (t *RangeTracker) Close(kind doc.MarkerKind, id string, pos int) (Range, error) {
	stack := t.stacks[kind]
	if len(stack) == 0 {
		return Range{}, &UnbalancedMarkerError{
			Kind: kind, ID: id, Pos: pos,
			Why: "end marker without a matching start",
		}
	}
	top := stack[len(stack)-1]
	if top.id != id {
		return Range{}, &UnbalancedMarkerError{
			Kind: kind, ID: id, Pos: pos,
			Why: fmt.Sprintf("innermost open range is %q; ranges of one kind must nest", top.id),
		}
	}
	t.stacks[kind] = stack[:len(stack)-1]
	t.open--
	return Range{
		Kind:     kind,
		ID:       id,
		StartPos: top.startPos,
		EndPos:   pos,
		Text:     top.buf.String(),
	}, nil
}

// Append adds a text segment to every open frame's buffer, outer frames
// included, so nested ranges each accumulate their own exact text.
func (t *RangeTracker) Append(text string) {
	if t.open == 0 || text == "" {
		return
	}
	for _, stack := range t.stacks {
		for _, f := range stack {
			f.buf.WriteString(text)
		}
	}
}

// Active reports whether any range of the given kind is open.
func (t *RangeTracker) Active(kind doc.MarkerKind) bool {
	return len(t.stacks[kind]) > 0
}

// OpenCount returns the number of open frames across all kinds.
func (t *RangeTracker) OpenCount() int {
	return t.open
}

// Unclosed returns the still-open frames as Ranges with EndPos -1, ordered
// by kind then outermost first. A non-empty result at end of document means
// the input had unmatched markers.
func (t *RangeTracker) Unclosed() []Range {
	var out []Range
	for _, kind := range markerKindOrder {
		for _, f := range t.stacks[kind] {
			out = append(out, Range{
				Kind:     f.kind,
				ID:       f.id,
				StartPos: f.startPos,
				EndPos:   -1,
				Text:     f.buf.String(),
			})
		}
	}
	return out
}
