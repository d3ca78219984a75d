package linearize

import (
	"errors"
	"fmt"

	"github.com/redlinekit/redline/core/doc"
)

// Sentinel errors for structural failures. Both abort the conversion with no
// output; match with errors.Is.
var (
	// ErrUnbalancedMarker indicates a marker End with no matching Start,
	// an End whose id is not the innermost open range of its kind, or a
	// range still open when the document ends.
	ErrUnbalancedMarker = errors.New("unbalanced marker")

	// ErrConflictingRevision indicates text claimed by an insertion and a
	// deletion at the same time.
	ErrConflictingRevision = errors.New("conflicting revision")
)

// UnbalancedMarkerError reports the marker that broke pairing.
type UnbalancedMarkerError struct {
	Kind doc.MarkerKind
	ID   string
	Pos  int    // rune position in document order
	Why  string // what went wrong at this boundary
}

func (e *UnbalancedMarkerError) Error() string {
	return fmt.Sprintf("unbalanced %s marker %q at position %d: %s",
		e.Kind, e.ID, e.Pos, e.Why)
}

func (e *UnbalancedMarkerError) Unwrap() error {
	return ErrUnbalancedMarker
}

// ConflictingRevisionError reports text marked as both inserted and deleted.
type ConflictingRevisionError struct {
	Pos  int    // rune position of the offending segment
	Text string // the segment claimed by both revisions
}

func (e *ConflictingRevisionError) Error() string {
	return fmt.Sprintf("conflicting revision at position %d: %q is marked as both inserted and deleted",
		e.Pos, e.Text)
}

func (e *ConflictingRevisionError) Unwrap() error {
	return ErrConflictingRevision
}
