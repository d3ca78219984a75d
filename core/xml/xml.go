// Package xml wraps xmlquery with the query surface the DOCX reader needs:
// parse a part, walk element children in document order, run XPath queries,
// and read attributes by local name regardless of namespace prefix.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder,
//     which doesn't fetch external entities; Validate additionally disables
//     internal entity expansion.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/redlinekit/redline/core/encoding"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element node.
type Node struct {
	node *xmlquery.Node
}

// ValidationResult contains the result of XML well-formedness checking.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

// FormatOptions controls XML formatting behavior.
type FormatOptions struct {
	Indent string // Indentation string (e.g., "  " or "\t")
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	reader := bytes.NewReader(data)
	root, err := xmlquery.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks XML data for well-formedness.
//
// Entity expansion is disabled (CWE-611): Go's xml.Decoder does not fetch
// external entities, and internal entities are cleared here as well.
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, col := lineCol(data, decoder.InputOffset())
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Line:    line,
				Column:  col,
				Message: err.Error(),
			})
			break
		}
	}

	return result
}

// lineCol converts a byte offset into 1-based line and column numbers.
func lineCol(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line := bytes.Count(head, []byte{'\n'}) + 1
	col := int(offset) - (bytes.LastIndexByte(head, '\n') + 1) + 1
	return line, col
}

// Root returns the root element of the document, nil when the document has
// no element.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query from the document root and returns matching
// nodes in document order.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return query(d.root, expr)
}

// XPathFirst executes an XPath query and returns the first matching node,
// nil when nothing matches.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	return queryFirst(d.root, expr)
}

// XPath executes an XPath query relative to this node.
func (n *Node) XPath(expr string) ([]*Node, error) {
	if n == nil || n.node == nil {
		return nil, nil
	}
	return query(n.node, expr)
}

// XPathFirst executes an XPath query relative to this node and returns the
// first match, nil when nothing matches.
func (n *Node) XPathFirst(expr string) (*Node, error) {
	if n == nil || n.node == nil {
		return nil, nil
	}
	return queryFirst(n.node, expr)
}

func query(root *xmlquery.Node, expr string) ([]*Node, error) {
	// Compile the expression to check for errors
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	nodes, err := xmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}

	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

func queryFirst(root *xmlquery.Node, expr string) (*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	node, err := xmlquery.Query(root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// Name returns the element's local name without its namespace prefix.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the concatenated text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Children returns the child element nodes in document order.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}

	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// FirstChildNamed returns the first child element whose local name matches,
// nil when there is none.
func (n *Node) FirstChildNamed(local string) *Node {
	if n == nil || n.node == nil {
		return nil
	}
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == local {
			return &Node{node: child}
		}
	}
	return nil
}

// HasChild reports whether a child element with the local name exists.
func (n *Node) HasChild(local string) bool {
	return n.FirstChildNamed(local) != nil
}

// Attr returns the value of the attribute with the given local name,
// whatever its namespace prefix. Missing attributes return "".
func (n *Node) Attr(local string) string {
	if n == nil || n.node == nil {
		return ""
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// AttrOr returns the attribute value, or fallback when the attribute is
// missing or empty.
func (n *Node) AttrOr(local, fallback string) string {
	if v := n.Attr(local); v != "" {
		return v
	}
	return fallback
}

// Format pretty-prints XML data.
func Format(data []byte, opts FormatOptions) ([]byte, error) {
	if opts.Indent == "" {
		opts.Indent = "  "
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := formatNode(&buf, doc.root, 0, opts.Indent); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// formatNode recursively formats an XML node.
func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) error {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if err := formatNode(w, child, depth, indent); err != nil {
				return err
			}
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attr.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}
		w.WriteString("?>\n")

	case xmlquery.ElementNode:
		// Opening tag
		writeIndent(w, depth, indent)
		w.WriteString("<")
		if n.Prefix != "" {
			w.WriteString(n.Prefix)
			w.WriteString(":")
		}
		w.WriteString(n.Data)

		// Attributes
		for _, attr := range n.Attr {
			w.WriteString(" ")
			if attr.Name.Space != "" {
				w.WriteString(attr.Name.Space)
				w.WriteString(":")
				w.WriteString(attr.Name.Local)
			} else if attr.Name.Local != "" {
				w.WriteString(attr.Name.Local)
			}
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}

		hasChildren := n.FirstChild != nil
		hasElementChildren := false
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				hasElementChildren = true
				break
			}
		}

		if !hasChildren {
			w.WriteString("/>\n")
		} else {
			w.WriteString(">")
			if hasElementChildren {
				w.WriteString("\n")
			}

			for child := n.FirstChild; child != nil; child = child.NextSibling {
				switch child.Type {
				case xmlquery.ElementNode:
					if err := formatNode(w, child, depth+1, indent); err != nil {
						return err
					}
				case xmlquery.TextNode:
					if strings.TrimSpace(child.Data) != "" {
						if hasElementChildren {
							writeIndent(w, depth+1, indent)
						}
						w.WriteString(encoding.EscapeXMLText(child.Data))
						if hasElementChildren {
							w.WriteString("\n")
						}
					}
				case xmlquery.CharDataNode:
					w.WriteString("<![CDATA[")
					w.WriteString(child.Data)
					w.WriteString("]]>")
				}
			}

			// Closing tag
			if hasElementChildren {
				writeIndent(w, depth, indent)
			}
			w.WriteString("</")
			if n.Prefix != "" {
				w.WriteString(n.Prefix)
				w.WriteString(":")
			}
			w.WriteString(n.Data)
			w.WriteString(">\n")
		}

	case xmlquery.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(encoding.EscapeXMLText(text))
		}

	case xmlquery.CommentNode:
		writeIndent(w, depth, indent)
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->\n")
	}

	return nil
}

func writeIndent(w *bytes.Buffer, depth int, indent string) {
	for i := 0; i < depth; i++ {
		w.WriteString(indent)
	}
}
