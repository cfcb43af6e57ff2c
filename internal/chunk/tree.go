package chunk

import (
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// headingNode is one entry of the document's heading tree: a level-0..6
// node carrying its own body text (paragraphs, lists, code blocks that sit
// directly under it, not under a nested heading) plus its child headings.
type headingNode struct {
	level    int
	title    string
	body     strings.Builder
	children []*headingNode
}

var mdParser = goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))

// parseHeadingTree scans line-anchored `#{1..6}` heading markers and builds
// the tree described by spec.md 4.C step 1: a heading of level L pops open
// nodes with level >= L and attaches under the resulting top; text between
// headings is appended to the currently open node. Built on goldmark's AST
// so fenced code blocks, lists and link syntax inside a heading's body are
// parsed correctly rather than re-detected with ad hoc regexes.
func parseHeadingTree(source []byte) *headingNode {
	root := &headingNode{level: 0}

	reader := text.NewReader(source)
	doc := mdParser.Parser().Parse(reader)

	var stack []*headingNode // open nodes, root implicit at index -1
	current := root

	type frame struct {
		node     gast.Node
		entering bool
	}
	walk := []frame{{node: doc, entering: true}}

	for len(walk) > 0 {
		f := walk[len(walk)-1]
		walk = walk[:len(walk)-1]
		if !f.entering {
			continue
		}
		if isInline(f.node) {
			continue
		}

		switch n := f.node.(type) {
		case *gast.Heading:
			for len(stack) > 0 && stack[len(stack)-1].level >= n.Level {
				stack = stack[:len(stack)-1]
			}
			h := &headingNode{level: n.Level, title: extractText(n, source)}
			if len(stack) == 0 {
				root.children = append(root.children, h)
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, h)
			}
			stack = append(stack, h)
			current = h

		case *gast.Paragraph, *gast.CodeBlock, *gast.FencedCodeBlock, *gast.List, *gast.Blockquote, *gast.HTMLBlock, *gast.ThematicBreak:
			if seg := blockSegment(f.node, source); seg != "" {
				if current.body.Len() > 0 {
					current.body.WriteString("\n\n")
				}
				current.body.WriteString(seg)
			}
			continue // these node kinds are leaves of the tree we build; don't descend further
		}

		if f.node.HasChildren() {
			child := f.node.LastChild()
			for child != nil {
				walk = append(walk, frame{node: child, entering: true})
				child = child.PreviousSibling()
			}
		}
	}

	return root
}

func isInline(n gast.Node) bool {
	switch n.Kind() {
	case gast.KindText, gast.KindEmphasis, gast.KindLink, gast.KindImage,
		gast.KindCodeSpan, gast.KindAutoLink, gast.KindString, gast.KindRawHTML:
		return true
	default:
		return false
	}
}

// blockSegment returns the raw source slice spanned by a block-level node.
// Container blocks with no lines of their own (lists, list items,
// blockquotes) yield their block children's segments joined by newlines;
// list markers and '>' prefixes are not included.
func blockSegment(n gast.Node, source []byte) string {
	if hasLines, ok := n.(interface{ Lines() *text.Segments }); ok {
		lines := hasLines.Lines()
		if lines.Len() > 0 {
			start := lines.At(0).Start
			stop := lines.At(lines.Len() - 1).Stop
			if stop <= len(source) && start <= stop {
				return strings.TrimSpace(string(source[start:stop]))
			}
		}
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != gast.TypeBlock {
			continue
		}
		if seg := blockSegment(c, source); seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "\n")
}

// extractText flattens a heading's inline content to plain text.
func extractText(n gast.Node, source []byte) string {
	var b strings.Builder
	type frame struct {
		node     gast.Node
		entering bool
	}
	stack := []frame{{node: n, entering: true}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.entering {
			if t, ok := f.node.(*gast.Text); ok {
				seg := t.Segment
				if seg.Stop <= len(source) {
					b.Write(seg.Value(source))
				}
			}
			if f.node.HasChildren() {
				child := f.node.LastChild()
				for child != nil {
					stack = append(stack, frame{node: child, entering: true})
					child = child.PreviousSibling()
				}
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// subtreeText re-renders a non-leaf node and its descendants as Markdown:
// each heading re-emitted as a `#`-prefixed line, each node's own body
// appended beneath it, depth-first in document order (spec.md 4.C step 2).
func subtreeText(n *headingNode) string {
	var parts []string
	var walk func(*headingNode)
	walk = func(node *headingNode) {
		if node.level > 0 && node.title != "" {
			parts = append(parts, strings.Repeat("#", node.level)+" "+node.title)
		}
		if b := strings.TrimSpace(node.body.String()); b != "" {
			parts = append(parts, b)
		}
		for _, c := range node.children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "\n\n")
}
