package chunk_test

import (
	"strings"
	"testing"

	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/textutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_NoHeadingDocument(t *testing.T) {
	s := chunk.NewSplitter(chunk.DefaultConfig())
	chunks := s.Split(textutil.Clean("just a plain paragraph of text, no headings at all."), "doc_x", "Doc X")

	require.Len(t, chunks, 1)
	assert.Equal(t, chunk.NodeTypeNoHeading, chunks[0].NodeType)
	assert.Empty(t, chunks[0].HeadingPath)
}

func TestSplit_EmptyDocumentProducesNoChunks(t *testing.T) {
	s := chunk.NewSplitter(chunk.DefaultConfig())
	chunks := s.Split(textutil.Clean("   \n\n  "), "doc_empty", "Doc Empty")
	assert.Empty(t, chunks)
}

func TestSplit_HeadingHierarchy(t *testing.T) {
	md := `# Random Access Procedure

Overview text about random access.

## Contention-Based Access

The UE selects a random preamble.

## Contention-Free Access

The network assigns a dedicated preamble.
`
	s := chunk.NewSplitter(chunk.DefaultConfig())
	chunks := s.Split(textutil.Clean(md), "doc_001", "5G NR Random Access")
	require.NotEmpty(t, chunks)

	var paths []string
	for _, c := range chunks {
		paths = append(paths, c.HeadingPath)
		assert.NotEmpty(t, c.Text)
		assert.Equal(t, "doc_001", c.DocID)
	}
	assert.Contains(t, paths, "Random Access Procedure")
	assert.Contains(t, paths, "Random Access Procedure/Contention-Based Access")
	assert.Contains(t, paths, "Random Access Procedure/Contention-Free Access")
}

func TestSplit_ChunkIDsAreDeterministicAndUnique(t *testing.T) {
	md := "# A\n\nbody a\n\n# B\n\nbody b\n"
	s := chunk.NewSplitter(chunk.DefaultConfig())

	first := s.Split(textutil.Clean(md), "doc_1", "Doc")
	second := s.Split(textutil.Clean(md), "doc_1", "Doc")

	require.Equal(t, len(first), len(second))
	seen := map[string]bool{}
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.False(t, seen[first[i].ChunkID], "duplicate chunk id %s", first[i].ChunkID)
		seen[first[i].ChunkID] = true
	}
}

func TestSplit_LeafOverSizedBodySplitsWithContinuation(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Long Section\n\n")
	for i := 0; i < 400; i++ {
		b.WriteString("This is a moderately long sentence about network configuration parameters. ")
	}
	s := chunk.NewSplitter(chunk.DefaultConfig())
	chunks := s.Split(textutil.Clean(b.String()), "doc_big", "Doc Big")

	require.Greater(t, len(chunks), 1)
	assert.False(t, chunks[0].IsContinuation)
	for _, c := range chunks[1:] {
		assert.True(t, c.IsContinuation)
		assert.True(t, strings.HasPrefix(c.Text, "Long Section\n\n"))
	}
}

func TestSplit_NonLeafOverThresholdProducesSummary(t *testing.T) {
	cfg := chunk.DefaultConfig()
	cfg.NonLeafThreshold = 5 // force the summary branch
	s := chunk.NewSplitter(cfg)

	md := `# Parent

## Child One

some content under child one that is reasonably long for a test case.

## Child Two

more content under child two, also reasonably long for this test.
`
	chunks := s.Split(textutil.Clean(md), "doc_sum", "Doc Sum")
	require.NotEmpty(t, chunks)

	parent := chunks[0]
	assert.Equal(t, chunk.NodeTypeNonLeaf, parent.NodeType)
	require.NotNil(t, parent.ParentSummary)
	assert.Equal(t, *parent.ParentSummary, parent.Text)
	assert.True(t, strings.HasPrefix(parent.Text, "[SUMMARY] Parent: "))
}

func TestSplit_LeafHeadingPathIsPrefixOfAtMostOneNonLeaf(t *testing.T) {
	cfg := chunk.DefaultConfig()
	cfg.NonLeafThreshold = 5 // force every parent with children to emit a non-leaf summary chunk
	s := chunk.NewSplitter(cfg)

	md := `# Root

## Branch A

content under branch a, long enough to stand alone as its own chunk.

### Leaf A1

deep leaf content under branch a, first child.

### Leaf A2

deep leaf content under branch a, second child.

## Branch B

content under branch b, long enough to stand alone as its own chunk.
`
	chunks := s.Split(textutil.Clean(md), "doc_prefix", "Doc Prefix")
	require.NotEmpty(t, chunks)

	var leafPaths, nonLeafPaths []string
	for _, c := range chunks {
		switch c.NodeType {
		case chunk.NodeTypeLeaf:
			leafPaths = append(leafPaths, c.HeadingPath)
		case chunk.NodeTypeNonLeaf:
			nonLeafPaths = append(nonLeafPaths, c.HeadingPath)
		}
	}
	require.NotEmpty(t, leafPaths)
	require.NotEmpty(t, nonLeafPaths)

	for _, leaf := range leafPaths {
		leafSegments := strings.Split(leaf, "/")
		matches := 0
		for _, nonLeaf := range nonLeafPaths {
			nonLeafSegments := strings.Split(nonLeaf, "/")
			if len(nonLeafSegments) > len(leafSegments) {
				continue
			}
			isPrefix := true
			for i, seg := range nonLeafSegments {
				if leafSegments[i] != seg {
					isPrefix = false
					break
				}
			}
			if isPrefix {
				matches++
			}
		}
		assert.LessOrEqual(t, matches, 1, "leaf path %q is a prefix of more than one non-leaf path", leaf)
	}
}

func TestSplit_DuplicateTitlesFormDistinctPaths(t *testing.T) {
	md := `# Section

## Notes

first notes body.

## Notes

second notes body.
`
	s := chunk.NewSplitter(chunk.DefaultConfig())
	chunks := s.Split(textutil.Clean(md), "doc_dup", "Doc Dup")

	var notesTexts []string
	for _, c := range chunks {
		if c.HeadingPath == "Section/Notes" {
			notesTexts = append(notesTexts, c.Text)
		}
	}
	require.Len(t, notesTexts, 2)
	assert.NotEqual(t, notesTexts[0], notesTexts[1])
}
