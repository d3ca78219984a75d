package linearize

import (
	"fmt"
	"log/slog"
	"strings"
)

// CommentDefinition is the metadata recorded for a comment id in the
// document's comment definitions part.
type CommentDefinition struct {
	Author string
	Date   string
	Body   string
}

// CommentSource supplies comment metadata by id. A false return means no
// definition exists; the comment still renders, degraded to an empty
// author/date/body.
type CommentSource interface {
	Definition(id string) (CommentDefinition, bool)
}

// Comment is a fully collected comment: definition metadata joined with the
// anchored text its range enclosed.
type Comment struct {
	ID           string
	Author       string
	Date         string
	AnchoredText string
	Body         string
}

// Registry collects comments as their ranges close and hands them out at
// block boundaries. Each comment id is collected at most once per document;
// nested comments stay independent entries in End order.
type Registry struct {
	source    CommentSource
	logger    *slog.Logger
	collected []Comment
	emitted   map[string]bool
}

// NewRegistry creates an empty registry reading definitions from source.
// source may be nil, in which case every comment renders degraded.
func NewRegistry(source CommentSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		source:  source,
		logger:  logger,
		emitted: make(map[string]bool),
	}
}

// CloseRange records the closed comment range. The anchored text is taken
// from the range; author, date, and body come from the definitions source.
func (g *Registry) CloseRange(rng Range) {
	if g.emitted[rng.ID] {
		return
	}
	var def CommentDefinition
	ok := false
	if g.source != nil {
		def, ok = g.source.Definition(rng.ID)
	}
	if !ok {
		g.logger.Warn("comment definition missing, rendering degraded block",
			"comment_id", rng.ID)
	}
	g.collected = append(g.collected, Comment{
		ID:           rng.ID,
		Author:       def.Author,
		Date:         def.Date,
		AnchoredText: rng.Text,
		Body:         def.Body,
	})
	g.emitted[rng.ID] = true
}

// Flush returns the comments collected since the previous flush, in the
// order their End markers were seen, and clears the pending list.
func (g *Registry) Flush() []Comment {
	out := g.collected
	g.collected = nil
	return out
}

// FormatCommentBlock renders one comment as a Markdown quote block:
//
//	> **[批注 #1]** Alice (2024-01-15)
//	> **原文**：budget
//	> **批注**：check this
//
// The header line always appears; author and date are omitted when empty, as
// are the 原文 and 批注 lines. Multi-line anchored text and body stay inside
// the quote with a "> " prefix on every continuation line.
func FormatCommentBlock(c Comment) string {
	meta := []string{fmt.Sprintf("**[批注 #%s]**", c.ID)}
	if c.Author != "" {
		meta = append(meta, c.Author)
	}
	if c.Date != "" {
		meta = append(meta, "("+c.Date+")")
	}
	lines := []string{"> " + strings.Join(meta, " ")}
	if anchored := strings.TrimSpace(c.AnchoredText); anchored != "" {
		lines = append(lines, quoteLines("**原文**："+anchored)...)
	}
	if body := strings.TrimSpace(c.Body); body != "" {
		lines = append(lines, quoteLines("**批注**："+body)...)
	}
	return strings.Join(lines, "\n")
}

// quoteLines prefixes every line of s with "> ".
func quoteLines(s string) []string {
	parts := strings.Split(s, "\n")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = "> " + p
	}
	return out
}
