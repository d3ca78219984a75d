package docx

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redlinekit/redline/core/linearize"
	"github.com/redlinekit/redline/core/xml"
)

// Comments holds the comment definitions from word/comments.xml, keyed by id.
// It implements linearize.CommentSource.
type Comments struct {
	defs map[string]linearize.CommentDefinition
}

func emptyComments() *Comments {
	return &Comments{defs: make(map[string]linearize.CommentDefinition)}
}

func parseComments(part *xml.Document, logger *slog.Logger) *Comments {
	c := emptyComments()
	nodes, err := part.XPath("//w:comment")
	if err != nil {
		return c
	}
	for _, node := range nodes {
		id := node.Attr("id")
		if id == "" {
			continue
		}
		c.defs[id] = linearize.CommentDefinition{
			Author: node.Attr("author"),
			Date:   normalizeDate(node.Attr("date")),
			Body:   commentBody(node),
		}
	}
	logger.Debug("parsed comment part", slog.Int("definitions", len(c.defs)))
	return c
}

// commentBody extracts the comment text: run children handled like document
// runs, paragraphs separated, then all whitespace collapsed to single spaces.
func commentBody(comment *xml.Node) string {
	var parts []string
	for _, child := range comment.Children() {
		if child.Name() != "p" {
			continue
		}
		runs, err := child.XPath(".//w:r")
		if err != nil {
			continue
		}
		var sb strings.Builder
		for _, r := range runs {
			for _, el := range r.Children() {
				if s, ok := specialText(el); ok {
					sb.WriteString(s)
				}
			}
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(strings.Fields(strings.Join(parts, "\n")), " ")
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// normalizeDate reduces a parseable ISO 8601 timestamp to its date part and
// keeps anything else verbatim.
func normalizeDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

// Definition returns the metadata recorded for a comment id.
func (c *Comments) Definition(id string) (linearize.CommentDefinition, bool) {
	def, ok := c.defs[id]
	return def, ok
}

// CommentInfo summarizes one comment definition for diagnostics.
type CommentInfo struct {
	ID     string `json:"id"`
	Author string `json:"author,omitempty"`
	Date   string `json:"date,omitempty"`
	Body   string `json:"body,omitempty"`
}

// List returns every definition sorted by id, numerically when ids are
// numeric.
func (c *Comments) List() []CommentInfo {
	out := make([]CommentInfo, 0, len(c.defs))
	for id, def := range c.defs {
		out = append(out, CommentInfo{ID: id, Author: def.Author, Date: def.Date, Body: def.Body})
	}
	sort.Slice(out, func(i, j int) bool {
		a, aerr := strconv.Atoi(out[i].ID)
		b, berr := strconv.Atoi(out[j].ID)
		if aerr == nil && berr == nil {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}
