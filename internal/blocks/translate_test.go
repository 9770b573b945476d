package blocks

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		Title: "T",
		Blocks: []Block{
			Heading{Level: 1, Text: "Overview"},
			Paragraph{Text: "intro"},
			BulletList{Items: []ListItem{
				{Text: "a", Children: []ListItem{{Text: "a.1"}, {Text: "a.2"}}},
				{Text: "b"},
			}},
			NumberedList{Items: []string{"one", "two", "three"}},
			Code{Text: "print(1)", Language: "py"},
			Divider{},
			Todo{Text: "ship", Checked: true},
			Bookmark{URL: "https://example.com"},
			Callout{Text: "note", Emoji: "🔥"},
		},
	}
}

func TestTranslateMapsEveryKind(t *testing.T) {
	tr, err := NewTranslator(nil).Translate(sampleDocument().Blocks)
	require.NoError(t, err)
	require.Empty(t, tr.Warnings)

	var types []string
	for _, b := range tr.Blocks {
		require.Equal(t, "block", b.Object)
		types = append(types, b.Type)
	}
	require.Equal(t, []string{
		"heading_1", "paragraph",
		"bulleted_list_item", "bulleted_list_item",
		"numbered_list_item", "numbered_list_item", "numbered_list_item",
		"code", "divider", "to_do", "bookmark", "callout",
	}, types)

	require.Len(t, tr.Blocks[2].BulletedListItem.Children, 2)
	require.Equal(t, "a.2", tr.Blocks[2].BulletedListItem.Children[1].TextOf())
	require.Equal(t, "python", tr.Blocks[7].Code.Language)
	require.True(t, tr.Blocks[9].ToDo.Checked)
	require.Equal(t, "🔥", tr.Blocks[11].Callout.Icon.Emoji)
}

func TestTranslateIsIdempotent(t *testing.T) {
	doc := sampleDocument()
	translator := NewTranslator(nil)

	first, err := translator.Translate(doc.Blocks)
	require.NoError(t, err)
	second, err := translator.Translate(doc.Blocks)
	require.NoError(t, err)

	a, err := json.Marshal(first.Blocks)
	require.NoError(t, err)
	b, err := json.Marshal(second.Blocks)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestTranslateClampsEveryTextField(t *testing.T) {
	long := strings.Repeat("é", MaxTextLength+150)
	bs := []Block{
		Paragraph{Text: long},
		Heading{Level: 2, Text: long},
		BulletList{Items: []ListItem{{Text: long, Children: []ListItem{{Text: long}}}}},
		NumberedList{Items: []string{long}},
		Code{Text: long, Language: "go"},
		Todo{Text: long, Checked: true},
		Callout{Text: long, Emoji: "📌"},
	}

	tr, err := NewTranslator(nil).Translate(bs)
	require.NoError(t, err)
	require.Len(t, tr.Warnings, 8)

	var check func(b WireBlock)
	check = func(b WireBlock) {
		require.Equal(t, MaxTextLength, utf8.RuneCountInString(b.TextOf()), b.Type)
		if b.BulletedListItem != nil {
			for _, c := range b.BulletedListItem.Children {
				check(c)
			}
		}
	}
	for _, b := range tr.Blocks {
		check(b)
	}

	// other fields survive truncation untouched
	require.Equal(t, "go", tr.Blocks[4].Code.Language)
	require.True(t, tr.Blocks[5].ToDo.Checked)
	require.Equal(t, "📌", tr.Blocks[6].Callout.Icon.Emoji)
}

func TestClampTextKeepsShortInput(t *testing.T) {
	s, truncated := ClampText("short")
	require.False(t, truncated)
	require.Equal(t, "short", s)

	exact := strings.Repeat("x", MaxTextLength)
	s, truncated = ClampText(exact)
	require.False(t, truncated)
	require.Equal(t, exact, s)
}

func TestTranslateDropsUnknownBlocks(t *testing.T) {
	tr, err := NewTranslator(nil).Translate([]Block{
		Paragraph{Text: "kept"},
		Unknown{Type: "table"},
		nil,
		Divider{},
	})
	require.NoError(t, err)
	require.Len(t, tr.Blocks, 2)
	require.Len(t, tr.Warnings, 2)
	require.Contains(t, tr.Warnings[0], `"table"`)
}

func TestTranslateRejectsInvalidHeading(t *testing.T) {
	_, err := NewTranslator(nil).Translate([]Block{Paragraph{Text: "x"}, Heading{Level: 4, Text: "deep"}})
	require.Error(t, err)

	var invalid *InvalidBlockError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, 1, invalid.Index)
}

func TestTranslateFlattensDeepNesting(t *testing.T) {
	list := BulletList{Items: []ListItem{{
		Text: "l0",
		Children: []ListItem{{
			Text: "l1",
			Children: []ListItem{{
				Text: "l2",
				Children: []ListItem{{
					Text:     "l3",
					Children: []ListItem{{Text: "l4"}},
				}},
			}},
		}},
	}}}

	tr, err := NewTranslator(nil).Translate([]Block{list})
	require.NoError(t, err)
	require.Len(t, tr.Blocks, 1)
	require.NotEmpty(t, tr.Warnings)

	level2 := tr.Blocks[0].BulletedListItem.Children[0].BulletedListItem.Children
	var texts []string
	for _, b := range level2 {
		texts = append(texts, b.TextOf())
		require.Empty(t, b.BulletedListItem.Children)
	}
	require.Equal(t, []string{"l2", "l3", "l4"}, texts)
}

func TestTranslateSkipsEmptyBookmark(t *testing.T) {
	tr, err := NewTranslator(nil).Translate([]Block{Bookmark{}})
	require.NoError(t, err)
	require.Empty(t, tr.Blocks)
	require.Len(t, tr.Warnings, 1)
}

func TestDividerSerialisesAsEmptyObject(t *testing.T) {
	tr, err := NewTranslator(nil).Translate([]Block{Divider{}})
	require.NoError(t, err)

	data, err := json.Marshal(tr.Blocks[0])
	require.NoError(t, err)
	require.JSONEq(t, `{"object":"block","type":"divider","divider":{}}`, string(data))
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"js":         "javascript",
		"PY":         "python",
		"sh":         "shell",
		"yml":        "yaml",
		"ts":         "typescript",
		" Go ":       "go",
		"dockerfile": "docker",
		"":           PlainText,
	}
	for in, want := range cases {
		got, ok := NormalizeLanguage(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	got, ok := NormalizeLanguage("brainfuck")
	require.False(t, ok)
	require.Equal(t, PlainText, got)
}
