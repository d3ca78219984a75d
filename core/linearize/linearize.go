// Package linearize converts annotated document trees into linear Markdown.
//
// The engine walks paragraphs and tables in document order exactly once,
// resolving comment/insertion/deletion/highlight marker pairs into ranges,
// rendering inline revision and formatting markup, and hoisting each
// comment into a quote block after the block that closed its range. A
// structural fault (unbalanced markers, text claimed by both an insertion
// and a deletion) aborts the conversion with no output.
package linearize

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/redlinekit/redline/core/doc"
)

// State of the traversal.
type State string

// Traversal states. There are exactly two: a linearizer scans once and is
// done.
const (
	StateScanning State = "scanning"
	StateDone     State = "done"
)

var errFinished = errors.New("linearizer already finished; construct a new one per document")

// Options configures a Linearizer. Any field may be nil: styles default to
// body text, numbering to unordered items, comments to degraded blocks, and
// the logger to slog.Default().
type Options struct {
	Styles    StyleResolver
	Numbering NumberingResolver
	Comments  CommentSource
	Logger    *slog.Logger
}

// Linearizer converts one annotated document into Markdown. It owns the
// range tracker and comment registry for the document's lifetime; construct
// a fresh instance per document.
type Linearizer struct {
	styles    StyleResolver
	numbering NumberingResolver
	logger    *slog.Logger

	tracker  *RangeTracker
	registry *Registry
	counters map[counterKey]int

	state State
	pos   int
	out   []string
}

// New creates a Linearizer for a single document.
func New(opts Options) *Linearizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Linearizer{
		styles:    opts.Styles,
		numbering: opts.Numbering,
		logger:    logger,
		tracker:   NewRangeTracker(),
		registry:  NewRegistry(opts.Comments, logger),
		counters:  make(map[counterKey]int),
		state:     StateScanning,
	}
}

// Linearize walks the document once and returns its Markdown rendering,
// terminated by a single newline (empty documents render as ""). On a
// structural error nothing is returned: no partial output.
func (l *Linearizer) Linearize(d *doc.Document) (string, error) {
	if l.state != StateScanning {
		return "", errFinished
	}
	defer func() { l.state = StateDone }()

	for _, b := range d.Blocks {
		switch {
		case b.Paragraph != nil:
			if err := l.paragraphBlocks(b.Paragraph); err != nil {
				return "", err
			}
		case b.Table != nil:
			if err := l.tableBlocks(b.Table); err != nil {
				return "", err
			}
		}
	}

	if open := l.tracker.Unclosed(); len(open) > 0 {
		first := open[0]
		return "", &UnbalancedMarkerError{
			Kind: first.Kind,
			ID:   first.ID,
			Pos:  first.StartPos,
			Why:  "range still open at end of document",
		}
	}
	l.appendComments(l.registry.Flush())

	text := strings.TrimRight(strings.Join(l.out, "\n"), " \t\n")
	if text == "" {
		return "", nil
	}
	return text + "\n", nil
}

// Linearize converts a document with a fresh engine. This is the usual entry
// point; batch callers get independent per-document state for free.
func Linearize(d *doc.Document, opts Options) (string, error) {
	return New(opts).Linearize(d)
}
