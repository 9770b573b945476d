package blocks

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The parser configuration never changes; goldmark creates per-call state in Parse.
var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

// ParseMarkdownDocument converts Markdown into a Document. The first level-1
// heading becomes the title and is not repeated in the body; without one,
// fallbackTitle is used.
func ParseMarkdownDocument(src []byte, fallbackTitle string) Document {
	bs := ParseMarkdown(src)
	for i, b := range bs {
		if h, ok := b.(Heading); ok && h.Level == 1 {
			rest := make([]Block, 0, len(bs)-1)
			rest = append(rest, bs[:i]...)
			rest = append(rest, bs[i+1:]...)
			return Document{Title: h.Text, Blocks: rest}
		}
	}
	return Document{Title: fallbackTitle, Blocks: bs}
}

// ParseMarkdown converts Markdown (CommonMark + GFM) into blocks. Constructs with no
// block equivalent (tables, raw HTML) are rendered as paragraphs of their text.
func ParseMarkdown(src []byte) []Block {
	doc := getMarkdownParser().Parser().Parse(text.NewReader(src))
	c := &mdConverter{source: src}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		c.block(n)
	}
	return c.out
}

type mdConverter struct {
	source []byte
	out    []Block
}

func (c *mdConverter) block(n ast.Node) {
	switch v := n.(type) {
	case *ast.Heading:
		level := v.Level
		if level > 3 {
			level = 3
		}
		c.out = append(c.out, Heading{Level: level, Text: c.inline(v)})
	case *ast.Paragraph:
		if url, ok := c.soleLink(v); ok {
			c.out = append(c.out, Bookmark{URL: url})
			return
		}
		if s := c.inline(v); s != "" {
			c.out = append(c.out, Paragraph{Text: s})
		}
	case *ast.List:
		c.list(v)
	case *ast.FencedCodeBlock:
		c.out = append(c.out, Code{Text: c.lines(v), Language: string(v.Language(c.source))})
	case *ast.CodeBlock:
		c.out = append(c.out, Code{Text: c.lines(v), Language: PlainText})
	case *ast.ThematicBreak:
		c.out = append(c.out, Divider{})
	case *ast.Blockquote:
		var parts []string
		for ch := v.FirstChild(); ch != nil; ch = ch.NextSibling() {
			if s := c.inline(ch); s != "" {
				parts = append(parts, s)
			}
		}
		c.out = append(c.out, Callout{Text: strings.Join(parts, "\n"), Emoji: DefaultCalloutEmoji})
	case *ast.HTMLBlock:
		if s := strings.TrimSpace(c.lines(v)); s != "" {
			c.out = append(c.out, Paragraph{Text: s})
		}
	default:
		if s := c.inline(n); s != "" {
			c.out = append(c.out, Paragraph{Text: s})
		}
	}
}

func (c *mdConverter) list(l *ast.List) {
	if l.IsOrdered() {
		var items []string
		for it := l.FirstChild(); it != nil; it = it.NextSibling() {
			items = append(items, c.itemText(it))
		}
		c.out = append(c.out, NumberedList{Items: items})
		return
	}

	var pending []ListItem
	flush := func() {
		if len(pending) > 0 {
			c.out = append(c.out, BulletList{Items: pending})
			pending = nil
		}
	}
	for it := l.FirstChild(); it != nil; it = it.NextSibling() {
		if checked, ok := c.taskState(it); ok {
			flush()
			c.out = append(c.out, Todo{Text: c.itemText(it), Checked: checked})
			continue
		}
		pending = append(pending, c.listItem(it))
	}
	flush()
}

func (c *mdConverter) listItem(it ast.Node) ListItem {
	li := ListItem{Text: c.itemText(it)}
	for ch := it.FirstChild(); ch != nil; ch = ch.NextSibling() {
		nested, ok := ch.(*ast.List)
		if !ok {
			continue
		}
		for sub := nested.FirstChild(); sub != nil; sub = sub.NextSibling() {
			li.Children = append(li.Children, c.listItem(sub))
		}
	}
	return li
}

// itemText is the text of a list item without its nested lists.
func (c *mdConverter) itemText(it ast.Node) string {
	var parts []string
	for ch := it.FirstChild(); ch != nil; ch = ch.NextSibling() {
		if _, ok := ch.(*ast.List); ok {
			continue
		}
		if s := c.inline(ch); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *mdConverter) taskState(it ast.Node) (bool, bool) {
	first := it.FirstChild()
	if first == nil {
		return false, false
	}
	box, ok := first.FirstChild().(*extast.TaskCheckBox)
	if !ok {
		return false, false
	}
	return box.IsChecked, true
}

// soleLink reports whether the paragraph is nothing but one autolink.
func (c *mdConverter) soleLink(p *ast.Paragraph) (string, bool) {
	if p.ChildCount() != 1 {
		return "", false
	}
	link, ok := p.FirstChild().(*ast.AutoLink)
	if !ok || link.AutoLinkType != ast.AutoLinkURL {
		return "", false
	}
	return string(link.URL(c.source)), true
}

func (c *mdConverter) inline(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(c.source))
			if v.SoftLineBreak() {
				b.WriteByte(' ')
			}
			if v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.URL(c.source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func (c *mdConverter) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(c.source))
	}
	return strings.TrimRight(buf.String(), "\n")
}
