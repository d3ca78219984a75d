package docx

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/redlinekit/redline/core/xml"
)

// Styles resolves paragraph style ids to Markdown heading levels. A style
// declaring w:outlineLvl 0 through 5 wins; otherwise built-in names such as
// "heading 1" or "标题 1" resolve by pattern. Everything else is body text.
type Styles struct {
	levels map[string]int
}

var headingName = regexp.MustCompile(`(?i)(?:heading|标题)\s*([1-6])\s*$`)

func emptyStyles() *Styles {
	return &Styles{levels: make(map[string]int)}
}

func parseStyles(part *xml.Document, logger *slog.Logger) *Styles {
	s := emptyStyles()
	nodes, err := part.XPath("//w:style")
	if err != nil {
		return s
	}
	for _, style := range nodes {
		id := style.Attr("styleId")
		if id == "" {
			continue
		}
		if lvl, ok := outlineLevel(style); ok {
			s.levels[id] = lvl
			continue
		}
		if name := style.FirstChildNamed("name"); name != nil {
			if m := headingName.FindStringSubmatch(name.Attr("val")); m != nil {
				lvl, _ := strconv.Atoi(m[1])
				s.levels[id] = lvl
			}
		}
	}
	logger.Debug("parsed style part", slog.Int("heading_styles", len(s.levels)))
	return s
}

func outlineLevel(style *xml.Node) (int, bool) {
	pPr := style.FirstChildNamed("pPr")
	if pPr == nil {
		return 0, false
	}
	lvl := pPr.FirstChildNamed("outlineLvl")
	if lvl == nil {
		return 0, false
	}
	v, err := strconv.Atoi(lvl.Attr("val"))
	if err != nil || v < 0 || v > 5 {
		return 0, false
	}
	return v + 1, true
}

// HeadingLevel returns the heading level for a style id, or 0 when the
// style renders as body text.
func (s *Styles) HeadingLevel(styleID string) int {
	return s.levels[styleID]
}

// HeadingStyle pairs a style id with its resolved heading level.
type HeadingStyle struct {
	StyleID string `json:"style_id"`
	Level   int    `json:"level"`
}

// Headings lists every heading style, sorted by level then id.
func (s *Styles) Headings() []HeadingStyle {
	out := make([]HeadingStyle, 0, len(s.levels))
	for id, lvl := range s.levels {
		out = append(out, HeadingStyle{StyleID: id, Level: lvl})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].StyleID < out[j].StyleID
	})
	return out
}
