package linearize

// Flags is the annotation vector of one inline span: which annotations and
// formatting apply to every character of its text.
type Flags struct {
	Highlight bool
	Insertion bool
	Deletion  bool
	Bold      bool
	Italic    bool
}

// Span is a maximal run of paragraph text with a uniform flag vector.
type Span struct {
	Flags Flags
	Text  string
}

// Merge drops empty spans and coalesces consecutive spans whose flag vectors
// are identical. Coalescing is by vector adjacency alone, never by which
// source ranges produced the spans, so the rendered output can never contain
// a closing delimiter immediately followed by the same kind's opening
// delimiter. Merge is idempotent.
func Merge(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Flags == s.Flags {
			out[n-1].Text += s.Text
			continue
		}
		out = append(out, s)
	}
	return out
}
