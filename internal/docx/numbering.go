package docx

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/redlinekit/redline/core/linearize"
	"github.com/redlinekit/redline/core/xml"
)

// Numbering resolves numbering references to list markers. numbering.xml
// separates concrete lists (w:num) from their shared level definitions
// (w:abstractNum); both tables are kept so inspect can show the mapping.
type Numbering struct {
	abstract map[string]map[int]levelDef
	nums     map[string]string // numId -> abstractNumId
}

type levelDef struct {
	format  string
	text    string
	start   int
	ordered bool
}

// lvlTextGrammar is the participle grammar for w:lvlText format strings.
// Examples: "%1.", "(%1)", "%1.%2.", literal bullet characters.
type lvlTextGrammar struct {
	Segments []lvlTextSegment `parser:"@@*"`
}

type lvlTextSegment struct {
	Placeholder string `parser:"  @Placeholder"`
	Literal     string `parser:"| @(Text | Stray)"`
}

// lvlTextLexer tokenizes format strings. A trailing "%" without digits is a
// stray literal, not a placeholder.
var lvlTextLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Placeholder", Pattern: `%[0-9]+`},
	{Name: "Text", Pattern: `[^%]+`},
	{Name: "Stray", Pattern: `%`},
})

var lvlTextParser = participle.MustBuild[lvlTextGrammar](
	participle.Lexer(lvlTextLexer),
)

// parseLvlText splits a format string into literal and placeholder segments.
func parseLvlText(s string) ([]lvlTextSegment, error) {
	if s == "" {
		return nil, nil
	}
	parsed, err := lvlTextParser.ParseString("", s)
	if err != nil {
		return nil, err
	}
	return parsed.Segments, nil
}

func emptyNumbering() *Numbering {
	return &Numbering{
		abstract: make(map[string]map[int]levelDef),
		nums:     make(map[string]string),
	}
}

func parseNumbering(part *xml.Document, logger *slog.Logger) *Numbering {
	n := emptyNumbering()
	abstracts, err := part.XPath("//w:abstractNum")
	if err != nil {
		return n
	}
	for _, abs := range abstracts {
		absID := abs.Attr("abstractNumId")
		if absID == "" {
			continue
		}
		levels := make(map[int]levelDef)
		for _, lvl := range abs.Children() {
			if lvl.Name() != "lvl" {
				continue
			}
			ilvl, err := strconv.Atoi(lvl.Attr("ilvl"))
			if err != nil || ilvl < 0 {
				continue
			}
			levels[ilvl] = parseLevel(lvl)
		}
		n.abstract[absID] = levels
	}
	nums, err := part.XPath("//w:num")
	if err != nil {
		return n
	}
	for _, num := range nums {
		numID := num.Attr("numId")
		absRef := num.FirstChildNamed("abstractNumId")
		if numID == "" || absRef == nil {
			continue
		}
		n.nums[numID] = absRef.Attr("val")
	}
	logger.Debug("parsed numbering part",
		slog.Int("lists", len(n.nums)),
		slog.Int("abstract_definitions", len(n.abstract)))
	return n
}

func parseLevel(lvl *xml.Node) levelDef {
	def := levelDef{start: 1}
	if nf := lvl.FirstChildNamed("numFmt"); nf != nil {
		def.format = nf.Attr("val")
	}
	if text := lvl.FirstChildNamed("lvlText"); text != nil {
		def.text = text.Attr("val")
	}
	if start := lvl.FirstChildNamed("start"); start != nil {
		if v, err := strconv.Atoi(start.Attr("val")); err == nil && v >= 0 {
			def.start = v
		}
	}
	def.ordered = orderedFormat(def.format, def.text)
	return def
}

// orderedFormat decides whether a level renders ordinal markers. Counting
// formats are ordered, bullets are not, and a missing or "none" format
// falls back to the lvlText string: a %N placeholder means ordinals.
func orderedFormat(format, text string) bool {
	switch format {
	case "decimal", "upperLetter", "lowerLetter", "upperRoman", "lowerRoman":
		return true
	case "bullet":
		return false
	case "", "none":
		segs, err := parseLvlText(text)
		if err != nil {
			return false
		}
		for _, seg := range segs {
			if seg.Placeholder != "" {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ListMarker resolves a document numbering reference. The bool is false when
// the numId or level is undefined.
func (n *Numbering) ListMarker(numID string, level int) (linearize.ListMarker, bool) {
	absID, ok := n.nums[numID]
	if !ok {
		return linearize.ListMarker{}, false
	}
	def, ok := n.abstract[absID][level]
	if !ok {
		return linearize.ListMarker{}, false
	}
	return linearize.ListMarker{Ordered: def.ordered, Depth: level, Start: def.start}, true
}

// LevelInfo describes one resolvable (numId, level) pair for diagnostics.
// Preview is the lvlText with each placeholder replaced by its level's
// first ordinal.
type LevelInfo struct {
	NumID   string `json:"num_id"`
	Level   int    `json:"level"`
	Format  string `json:"format,omitempty"`
	Text    string `json:"text,omitempty"`
	Preview string `json:"preview,omitempty"`
	Start   int    `json:"start"`
	Ordered bool   `json:"ordered"`
}

// Levels lists every resolvable numbering level, sorted by numId then level.
func (n *Numbering) Levels() []LevelInfo {
	var out []LevelInfo
	for numID, absID := range n.nums {
		levels := n.abstract[absID]
		for lvl, def := range levels {
			out = append(out, LevelInfo{
				NumID:   numID,
				Level:   lvl,
				Format:  def.format,
				Text:    def.text,
				Preview: markerPreview(levels, def.text),
				Start:   def.start,
				Ordered: def.ordered,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NumID != out[j].NumID {
			a, aerr := strconv.Atoi(out[i].NumID)
			b, berr := strconv.Atoi(out[j].NumID)
			if aerr == nil && berr == nil {
				return a < b
			}
			return out[i].NumID < out[j].NumID
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// markerPreview renders an example marker from a parsed format string.
// "%1." with start 5 becomes "5."; "%1.%2." becomes "1.1.".
func markerPreview(levels map[int]levelDef, text string) string {
	segs, err := parseLvlText(text)
	if err != nil {
		return text
	}
	var sb strings.Builder
	for _, seg := range segs {
		if seg.Placeholder == "" {
			sb.WriteString(seg.Literal)
			continue
		}
		ref, err := strconv.Atoi(strings.TrimPrefix(seg.Placeholder, "%"))
		if err != nil {
			sb.WriteString(seg.Placeholder)
			continue
		}
		n := 1
		if def, ok := levels[ref-1]; ok && def.start > 0 {
			n = def.start
		}
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}
