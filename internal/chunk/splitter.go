package chunk

import (
	"fmt"
	"strings"

	"github.com/hsn0918/rag/internal/textutil"
)

// Config holds the thresholds named in spec.md 4.C, all expressed in
// estimated tokens (textutil.EstimateTokens), except OverlapRatio.
type Config struct {
	NonLeafThreshold int     // ~2000
	LeafMax          int     // ~800
	LeafMin          int     // used only to derive the sub-chunk target size
	OverlapRatio     float64 // ~0.12
	SummaryMaxLines  int     // 10
	SummaryMaxChars  int     // 500
}

// DefaultConfig matches the defaults spec.md 4.C names.
func DefaultConfig() Config {
	return Config{
		NonLeafThreshold: 2000,
		LeafMax:          800,
		LeafMin:          200,
		OverlapRatio:     0.12,
		SummaryMaxLines:  10,
		SummaryMaxChars:  500,
	}
}

// Splitter turns cleaned Markdown into the ordered chunk list spec.md 4.C
// describes.
type Splitter struct {
	cfg Config
}

func NewSplitter(cfg Config) *Splitter {
	return &Splitter{cfg: cfg}
}

// Split runs the hierarchical splitter over already-cleaned Markdown.
// content must have already passed through textutil.Clean.
func (s *Splitter) Split(content, docID, docName string) []Chunk {
	root := parseHeadingTree([]byte(content))

	var out []Chunk
	idx := 0
	nextID := func() string {
		id := fmt.Sprintf("%s#%06d", docID, idx)
		idx++
		return id
	}

	if len(root.children) == 0 {
		// No-heading document (or empty document): root itself is the
		// only candidate chunk, with an empty heading_path.
		body := strings.TrimSpace(root.body.String())
		if body == "" {
			return out // empty root body produces no chunk
		}
		out = append(out, s.emitLeaf(body, "", NodeTypeNoHeading, docID, docName, nextID)...)
		return out
	}

	for _, child := range root.children {
		out = append(out, s.recurse(child, "", docID, docName, nextID)...)
	}
	return out
}

func (s *Splitter) recurse(n *headingNode, parentPath, docID, docName string, nextID func() string) []Chunk {
	path := n.title
	if parentPath != "" {
		path = parentPath + "/" + n.title
	}

	if len(n.children) == 0 {
		body := strings.TrimSpace(n.body.String())
		if body == "" {
			return nil // leaf with empty body is skipped entirely
		}
		return s.emitLeaf(body, path, NodeTypeLeaf, docID, docName, nextID)
	}

	var out []Chunk
	full := subtreeText(n)
	tokens := textutil.EstimateTokens(full)

	if tokens <= s.cfg.NonLeafThreshold && full != "" {
		out = append(out, Chunk{
			ChunkID:     nextID(),
			Text:        full,
			DocID:       docID,
			DocName:     docName,
			HeadingPath: path,
			NodeType:    NodeTypeNonLeaf,
		})
	} else if full != "" {
		summary := summarize(full, path, s.cfg.SummaryMaxLines, s.cfg.SummaryMaxChars)
		out = append(out, Chunk{
			ChunkID:       nextID(),
			Text:          summary,
			DocID:         docID,
			DocName:       docName,
			HeadingPath:   path,
			NodeType:      NodeTypeNonLeaf,
			ParentSummary: &summary,
		})
	}

	for _, child := range n.children {
		out = append(out, s.recurse(child, path, docID, docName, nextID)...)
	}
	return out
}

// summarize is the reference "deterministic summary": the first <=maxLines
// non-empty lines joined, truncated to maxChars, prefixed with the heading
// path (spec.md 4.C step 2).
func summarize(text, path string, maxLines, maxChars int) string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) >= maxLines {
			break
		}
	}
	body := strings.Join(lines, " ")
	if r := []rune(body); len(r) > maxChars {
		body = string(r[:maxChars])
	}
	return fmt.Sprintf("[SUMMARY] %s: %s", path, body)
}

// emitLeaf implements spec.md 4.C's leaf branch: one chunk if the body fits
// in leaf_max tokens, otherwise an overlapping sentence-boundary split.
func (s *Splitter) emitLeaf(body, path string, nodeType NodeType, docID, docName string, nextID func() string) []Chunk {
	prefix := path + "\n\n"
	tokens := textutil.EstimateTokens(body)

	if tokens <= s.cfg.LeafMax {
		return []Chunk{{
			ChunkID:     nextID(),
			Text:        prefix + body,
			DocID:       docID,
			DocName:     docName,
			HeadingPath: path,
			NodeType:    nodeType,
		}}
	}

	target := (s.cfg.LeafMin + s.cfg.LeafMax) / 2
	pieces := splitWithOverlap(body, target, s.cfg.OverlapRatio)

	out := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		out = append(out, Chunk{
			ChunkID:        nextID(),
			Text:           prefix + p,
			DocID:          docID,
			DocName:        docName,
			HeadingPath:    path,
			NodeType:       nodeType,
			IsContinuation: i > 0,
		})
	}
	return out
}

// sentenceBoundaries are the terminators spec.md 4.C prefers for splitting
// within a leaf: CJK full stops, `!`, `?`, and newline.
var sentenceBoundaries = map[rune]bool{
	'。': true, '！': true, '？': true, '!': true, '?': true, '\n': true,
}

// splitWithOverlap splits body into pieces of ~targetTokens each, each
// pieces after the first reusing ~overlapRatio of the previous piece's
// trailing content as its prefix, preferring to break at a sentence
// boundary near the target length.
func splitWithOverlap(body string, targetTokens int, overlapRatio float64) []string {
	if targetTokens <= 0 {
		targetTokens = 1
	}
	runes := []rune(body)
	// Approximate target length in runes from the token estimate: invert
	// textutil.EstimateTokens's rough 0.75 tokens/word, ~4 runes/word.
	targetRunes := int(float64(targetTokens) / 0.75 * 4)
	if targetRunes < 1 {
		targetRunes = 1
	}
	overlapRunes := int(float64(targetRunes) * overlapRatio)

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + targetRunes
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}
		end = findBoundary(runes, end)
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		next := end - overlapRunes
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// findBoundary scans forward from pos (capped at len(runes)) for the
// nearest sentence terminator, falling back to pos if none is found
// within a short lookahead window.
func findBoundary(runes []rune, pos int) int {
	const lookahead = 80
	limit := pos + lookahead
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := pos; i < limit; i++ {
		if sentenceBoundaries[runes[i]] {
			return i + 1
		}
	}
	if pos > len(runes) {
		return len(runes)
	}
	return pos
}
