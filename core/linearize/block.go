package linearize

import (
	"strconv"
	"strings"

	"github.com/redlinekit/redline/core/doc"
)

// StyleResolver maps a paragraph style id to a heading level. 0 means body
// text; 1 through 6 select the heading depth.
type StyleResolver interface {
	HeadingLevel(styleID string) int
}

// ListMarker describes how list items under one numbering level render.
type ListMarker struct {
	// Ordered selects "N." markers; false selects "-".
	Ordered bool

	// Depth is the nesting depth; each level indents by two spaces.
	Depth int

	// Start is the first ordinal of an ordered level. Zero means 1.
	Start int
}

// NumberingResolver maps a numbering reference to its list marker. A false
// return means the reference is unknown; the item renders unordered at
// depth 0.
type NumberingResolver interface {
	ListMarker(numID string, level int) (ListMarker, bool)
}

type counterKey struct {
	numID string
	level int
}

// paragraphBlocks renders one paragraph and appends its output lines:
// the classified content line, then one comment block per comment whose
// range closed inside the paragraph, each preceded by a blank line.
// Paragraphs with no content and no pending comments emit nothing.
func (l *Linearizer) paragraphBlocks(p *doc.Paragraph) error {
	content, err := l.paragraphContent(p)
	if err != nil {
		return err
	}
	comments := l.registry.Flush()
	if content == "" && len(comments) == 0 {
		return nil
	}

	if content != "" {
		if level := l.headingLevel(p); level > 0 {
			l.out = append(l.out, strings.Repeat("#", level)+" "+content)
		} else if p.Numbering != nil {
			l.out = append(l.out, l.listPrefix(p.Numbering)+content)
		} else {
			l.out = append(l.out, content)
		}
	}
	l.appendComments(comments)
	return nil
}

// headingLevel resolves the paragraph's style to a heading level, 0 for body.
func (l *Linearizer) headingLevel(p *doc.Paragraph) int {
	if p.StyleID == "" || l.styles == nil {
		return 0
	}
	return l.styles.HeadingLevel(p.StyleID)
}

// listPrefix renders the list marker for a numbering reference: indent by
// 2×depth spaces, then "N. " with a per-(numId, level) counter for ordered
// levels or "- " for unordered ones. Unknown references fall back to an
// unordered item at depth 0.
func (l *Linearizer) listPrefix(ref *doc.NumberingRef) string {
	var mk ListMarker
	ok := false
	if l.numbering != nil {
		mk, ok = l.numbering.ListMarker(ref.NumID, ref.Level)
	}
	if !ok {
		l.logger.Warn("unresolved numbering reference, treating as unordered list",
			"num_id", ref.NumID, "level", ref.Level)
		return "- "
	}
	indent := strings.Repeat("  ", mk.Depth)
	if !mk.Ordered {
		return indent + "- "
	}
	key := counterKey{numID: ref.NumID, level: ref.Level}
	n, seen := l.counters[key]
	if !seen {
		n = mk.Start
		if n <= 0 {
			n = 1
		}
	}
	l.counters[key] = n + 1
	return indent + strconv.Itoa(n) + ". "
}

// tableBlocks renders a table row-major into Markdown table lines, followed
// by the comment blocks for ranges that closed inside the table. Cell
// paragraphs flatten to inline text joined by single spaces, with line
// breaks inside cell text replaced by a space. A separator row sized from
// the first row's column count follows the first row; shorter rows pad with
// empty cells.
func (l *Linearizer) tableBlocks(t *doc.Table) error {
	var width int
	if len(t.Rows) > 0 {
		width = len(t.Rows[0].Cells)
	}
	if width > 0 {
		for i, row := range t.Rows {
			cells := make([]string, 0, width)
			for _, cell := range row.Cells {
				text, err := l.cellContent(cell)
				if err != nil {
					return err
				}
				cells = append(cells, text)
			}
			for len(cells) < width {
				cells = append(cells, "")
			}
			l.out = append(l.out, "| "+strings.Join(cells, " | ")+" |")
			if i == 0 {
				seps := make([]string, width)
				for j := range seps {
					seps[j] = "---"
				}
				l.out = append(l.out, "| "+strings.Join(seps, " | ")+" |")
			}
		}
	}
	l.appendComments(l.registry.Flush())
	return nil
}

// cellContent renders a cell's paragraphs to one inline string.
func (l *Linearizer) cellContent(cell *doc.TableCell) (string, error) {
	var parts []string
	for _, p := range cell.Paragraphs {
		content, err := l.paragraphContent(p)
		if err != nil {
			return "", err
		}
		if content != "" {
			parts = append(parts, content)
		}
	}
	joined := strings.ReplaceAll(strings.Join(parts, " "), "\n", " ")
	return strings.TrimSpace(joined), nil
}

// appendComments emits one quote block per collected comment, each preceded
// by a blank line.
func (l *Linearizer) appendComments(comments []Comment) {
	for _, c := range comments {
		l.out = append(l.out, "", FormatCommentBlock(c))
	}
}
