package linearize

import (
	"strings"
	"unicode"

	"github.com/redlinekit/redline/core/doc"
)

// Inline Markdown delimiters.
const (
	delimHighlight = "=="
	delimInsOpen   = "{+"
	delimInsClose  = "+}"
	delimDelOpen   = "[-"
	delimDelClose  = "-]"
	delimBold      = "**"
	delimItalic    = "*"
)

// Delimiter layers in fixed nesting order, outermost first. Highlight is
// always innermost, italic always outermost, so repeated renderings of the
// same tree nest identically.
const (
	layerItalic = iota
	layerBold
	layerRevision
	layerHighlight
	layerCount
)

// openDelims returns the opening delimiter wanted at each layer, "" when the
// layer is off.
func (f Flags) openDelims() [layerCount]string {
	var d [layerCount]string
	if f.Italic {
		d[layerItalic] = delimItalic
	}
	if f.Bold {
		d[layerBold] = delimBold
	}
	switch {
	case f.Insertion:
		d[layerRevision] = delimInsOpen
	case f.Deletion:
		d[layerRevision] = delimDelOpen
	}
	if f.Highlight {
		d[layerHighlight] = delimHighlight
	}
	return d
}

// closeDelim maps an opening delimiter to its closing counterpart.
func closeDelim(open string) string {
	switch open {
	case delimInsOpen:
		return delimInsClose
	case delimDelOpen:
		return delimDelClose
	default:
		return open
	}
}

// spanWriter emits merged spans as inline Markdown. Layers that stay wanted
// across consecutive spans are kept open; only layers that change are closed,
// innermost first, then reopened in nesting order.
type spanWriter struct {
	b    strings.Builder
	open [layerCount]string
}

func (w *spanWriter) write(s Span) {
	want := s.Flags.openDelims()
	diff := layerCount
	for i := 0; i < layerCount; i++ {
		if w.open[i] != want[i] {
			diff = i
			break
		}
	}
	for i := layerCount - 1; i >= diff; i-- {
		if w.open[i] != "" {
			w.b.WriteString(closeDelim(w.open[i]))
			w.open[i] = ""
		}
	}
	for i := diff; i < layerCount; i++ {
		if want[i] != "" {
			w.b.WriteString(want[i])
			w.open[i] = want[i]
		}
	}
	w.b.WriteString(s.Text)
}

func (w *spanWriter) finish() string {
	for i := layerCount - 1; i >= 0; i-- {
		if w.open[i] != "" {
			w.b.WriteString(closeDelim(w.open[i]))
			w.open[i] = ""
		}
	}
	return w.b.String()
}

// renderSpans merges the paragraph's spans and emits them with layered
// delimiters. Trailing whitespace is trimmed before delimiters are chosen so
// no delimiter pair wraps whitespace-only tails.
func renderSpans(spans []Span) string {
	spans = Merge(spans)
	for len(spans) > 0 {
		last := &spans[len(spans)-1]
		last.Text = strings.TrimRightFunc(last.Text, unicode.IsSpace)
		if last.Text != "" {
			break
		}
		spans = spans[:len(spans)-1]
	}
	var w spanWriter
	for _, s := range spans {
		w.write(s)
	}
	return w.finish()
}

// paragraphSpans walks a paragraph's runs in order, firing marker boundaries
// at their rune offsets and slicing run text into spans between them. Text
// segments feed every open tracker frame; flags are sampled from the tracker
// at emission time, so a segment carries exactly the annotations whose ranges
// are open around it.
func (l *Linearizer) paragraphSpans(p *doc.Paragraph) ([]Span, error) {
	var spans []Span
	for _, run := range p.Runs {
		text := []rune(run.Text)
		cursor := 0

		emit := func(upTo int) error {
			if upTo > len(text) {
				upTo = len(text)
			}
			if upTo <= cursor {
				return nil
			}
			seg := string(text[cursor:upTo])
			l.tracker.Append(seg)
			f := Flags{
				Highlight: l.tracker.Active(doc.MarkerHighlight),
				Insertion: l.tracker.Active(doc.MarkerInsertion),
				Deletion:  l.tracker.Active(doc.MarkerDeletion),
				Bold:      run.Bold,
				Italic:    run.Italic,
			}
			if f.Insertion && f.Deletion {
				return &ConflictingRevisionError{Pos: l.pos, Text: seg}
			}
			spans = append(spans, Span{Flags: f, Text: seg})
			l.pos += upTo - cursor
			cursor = upTo
			return nil
		}

		for _, m := range run.Markers {
			if err := emit(m.Offset); err != nil {
				return nil, err
			}
			if m.Start() {
				l.tracker.Open(m.Kind, m.ID, l.pos)
				continue
			}
			rng, err := l.tracker.Close(m.Kind, m.ID, l.pos)
			if err != nil {
				return nil, err
			}
			if rng.Kind == doc.MarkerComment {
				l.registry.CloseRange(rng)
			}
		}
		if err := emit(len(text)); err != nil {
			return nil, err
		}
	}
	return spans, nil
}

// paragraphContent renders a paragraph's inline Markdown without any block
// prefix.
func (l *Linearizer) paragraphContent(p *doc.Paragraph) (string, error) {
	spans, err := l.paragraphSpans(p)
	if err != nil {
		return "", err
	}
	return renderSpans(spans), nil
}
