package blocks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMarkdownDocument(t *testing.T) {
	src := "# Release notes\n\n" +
		"Intro with `code` and *emphasis*.\n\n" +
		"## Changes\n\n" +
		"- first\n" +
		"  - nested\n" +
		"- second\n\n" +
		"1. one\n" +
		"2. two\n\n" +
		"- [x] done\n" +
		"- [ ] open\n\n" +
		"```go\nfmt.Println(1)\n```\n\n" +
		"---\n\n" +
		"> heads up\n\n" +
		"<https://example.com/x>\n\n" +
		"#### Deep\n"

	doc := ParseMarkdownDocument([]byte(src), "fallback")
	require.Equal(t, "Release notes", doc.Title)
	require.Equal(t, []Block{
		Paragraph{Text: "Intro with code and emphasis."},
		Heading{Level: 2, Text: "Changes"},
		BulletList{Items: []ListItem{{Text: "first", Children: []ListItem{{Text: "nested"}}}, {Text: "second"}}},
		NumberedList{Items: []string{"one", "two"}},
		Todo{Text: "done", Checked: true},
		Todo{Text: "open", Checked: false},
		Code{Text: "fmt.Println(1)", Language: "go"},
		Divider{},
		Callout{Text: "heads up", Emoji: DefaultCalloutEmoji},
		Bookmark{URL: "https://example.com/x"},
		Heading{Level: 3, Text: "Deep"},
	}, doc.Blocks)
}

func TestParseMarkdownDocumentFallbackTitle(t *testing.T) {
	doc := ParseMarkdownDocument([]byte("just text\n"), "notes.md")
	require.Equal(t, "notes.md", doc.Title)
	require.Equal(t, []Block{Paragraph{Text: "just text"}}, doc.Blocks)
}

func TestParseMarkdownTranslates(t *testing.T) {
	bs := ParseMarkdown([]byte("    indented\n    code\n"))
	require.Equal(t, []Block{Code{Text: "indented\ncode", Language: PlainText}}, bs)

	tr, err := NewTranslator(nil).Translate(bs)
	require.NoError(t, err)
	require.Equal(t, "code", tr.Blocks[0].Type)
	require.Equal(t, PlainText, tr.Blocks[0].Code.Language)
}
