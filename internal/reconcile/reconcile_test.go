package reconcile

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nick134920/ClaudeFlow/internal/blocks"
)

const docA = `{"title": "A", "blocks": [{"type": "paragraph", "content": "from A"}]}`

func TestStructuredOutputWins(t *testing.T) {
	r := New(nil)
	doc, err := r.Reconcile(Input{
		Structured: json.RawMessage(`{"title": "S", "blocks": [{"type": "divider"}]}`),
		Texts:      []string{"```json\n" + docA + "\n```"},
	})
	require.NoError(t, err)
	require.Equal(t, "S", doc.Title)
	require.Equal(t, []blocks.Block{blocks.Divider{}}, doc.Blocks)
}

func TestStructuredOutputMissingFields(t *testing.T) {
	_, err := New(nil).Reconcile(Input{
		Structured: json.RawMessage(`{"title": "S"}`),
		Texts:      []string{docA},
	})
	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "structured", malformed.Source)

	var doc *blocks.MalformedDocumentError
	require.True(t, errors.As(err, &doc))
}

func TestEmptyStructuredFallsBackToText(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", "  ", "[]", " [ ] "} {
		doc, err := New(nil).Reconcile(Input{Structured: json.RawMessage(raw), Texts: []string{docA}})
		require.NoError(t, err, raw)
		require.Equal(t, "A", doc.Title)
	}
}

func TestNewestCandidateWins(t *testing.T) {
	docC := `{"title": "C", "blocks": []}`
	texts := []string{
		docA,
		"Some prose about the repository.",
		"Here it is:\n```json\n" + docC + "\n```\nDone.",
	}
	doc, err := New(nil).Reconcile(Input{Texts: texts})
	require.NoError(t, err)
	require.Equal(t, "C", doc.Title)
	require.Empty(t, doc.Blocks)
}

func TestScanSkipsNonCandidates(t *testing.T) {
	doc, err := New(nil).Reconcile(Input{Texts: []string{docA, "thanks!", "all done"}})
	require.NoError(t, err)
	require.Equal(t, "A", doc.Title)
}

func TestNoDocument(t *testing.T) {
	doc, err := New(nil).Reconcile(Input{Texts: []string{"hello"}})
	require.NoError(t, err)
	require.Nil(t, doc)

	doc, err = New(nil).Reconcile(Input{})
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestCandidateMissingFieldsIsMalformed(t *testing.T) {
	_, err := New(nil).Reconcile(Input{Texts: []string{docA, `{"title": "no blocks"}`}})
	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "text", malformed.Source)
}

func TestCandidateSelectionStopsAtFirstMatch(t *testing.T) {
	// the newest candidate is broken; older valid chunks are not consulted
	_, err := New(nil).Reconcile(Input{Texts: []string{docA, "```json\n{not json\n```"}})
	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
}

func TestFencedBlocksTriedInOrder(t *testing.T) {
	text := "```json\n{\"note\": \"not a document\"}\n```\n" +
		"```\n" + docA + "\n```"
	doc, err := New(nil).Reconcile(Input{Texts: []string{text}})
	require.NoError(t, err)
	require.Equal(t, "A", doc.Title)
}

func TestLenientJSON(t *testing.T) {
	text := "```json\n{\n  // generated\n  \"title\": \"L\",\n  \"blocks\": [\n    {\"type\": \"heading\", \"level\": 2, \"content\": \"h\"},\n  ],\n}\n```"
	doc, err := New(nil).Reconcile(Input{Texts: []string{text}})
	require.NoError(t, err)
	require.Equal(t, "L", doc.Title)
	require.Equal(t, []blocks.Block{blocks.Heading{Level: 2, Text: "h"}}, doc.Blocks)
}

func TestInvalidHeadingSurfacesAsMalformed(t *testing.T) {
	_, err := New(nil).Reconcile(Input{Texts: []string{`{"title": "x", "blocks": [{"type": "heading", "level": 9}]}`}})
	var invalid *blocks.InvalidBlockError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, 0, invalid.Index)
}
