package blocks

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// MaxTextLength is the store's per rich-text limit, in characters.
	MaxTextLength = 2000
	// MaxNestingDepth is how many levels of children the store accepts in one request.
	MaxNestingDepth = 2
)

// Translation is the wire form of a document's blocks plus everything that was
// dropped or altered on the way.
type Translation struct {
	Blocks   []WireBlock
	Warnings []string
}

// Translator converts generic blocks to the page store's wire blocks.
type Translator struct {
	logger *zap.Logger
}

// NewTranslator constructs a Translator. A nil logger discards warnings (they are
// still returned in the Translation).
func NewTranslator(logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{logger: logger}
}

// Translate maps every block to one or more wire blocks, preserving order. Unknown
// tags are dropped with a warning; only an invalid heading level aborts.
func (t *Translator) Translate(bs []Block) (Translation, error) {
	run := &translateRun{logger: t.logger}
	out := make([]WireBlock, 0, len(bs))

	for i, b := range bs {
		switch v := b.(type) {
		case Paragraph:
			out = append(out, WireBlock{Object: "block", Type: "paragraph", Paragraph: &TextBody{RichText: run.richText("paragraph", v.Text)}})
		case Heading:
			wb, err := run.heading(v)
			if err != nil {
				err.Index = i
				return Translation{}, err
			}
			out = append(out, wb)
		case BulletList:
			out = append(out, run.bulletItems(v.Items, 0)...)
		case NumberedList:
			for _, item := range v.Items {
				out = append(out, WireBlock{Object: "block", Type: "numbered_list_item", NumberedListItem: &ListItemBody{RichText: run.richText("numbered_list_item", item)}})
			}
		case Code:
			lang, ok := NormalizeLanguage(v.Language)
			if !ok {
				run.warn(fmt.Sprintf("unsupported code language %q, using %q", v.Language, PlainText))
			}
			out = append(out, WireBlock{Object: "block", Type: "code", Code: &CodeBody{RichText: run.richText("code", v.Text), Language: lang}})
		case Divider:
			out = append(out, WireBlock{Object: "block", Type: "divider", Divider: &EmptyBody{}})
		case Todo:
			out = append(out, WireBlock{Object: "block", Type: "to_do", ToDo: &ToDoBody{RichText: run.richText("to_do", v.Text), Checked: v.Checked}})
		case Bookmark:
			if strings.TrimSpace(v.URL) == "" {
				run.warn(fmt.Sprintf("block %d: bookmark without url skipped", i))
				continue
			}
			out = append(out, WireBlock{Object: "block", Type: "bookmark", Bookmark: &BookmarkBody{URL: v.URL}})
		case Callout:
			emoji := v.Emoji
			if emoji == "" {
				emoji = DefaultCalloutEmoji
			}
			out = append(out, WireBlock{Object: "block", Type: "callout", Callout: &CalloutBody{
				RichText: run.richText("callout", v.Text),
				Icon:     Icon{Type: "emoji", Emoji: emoji},
			}})
		case Unknown:
			run.warn(fmt.Sprintf("block %d: unknown block type %q skipped", i, v.Type))
		case nil:
			run.warn(fmt.Sprintf("block %d: empty block skipped", i))
		default:
			run.warn(fmt.Sprintf("block %d: unsupported block %T skipped", i, b))
		}
	}

	return Translation{Blocks: out, Warnings: run.warnings}, nil
}

// ClampText truncates s to MaxTextLength characters. The boolean reports whether
// truncation happened.
func ClampText(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= MaxTextLength {
		return s, false
	}
	n := 0
	for i := range s {
		if n == MaxTextLength {
			return s[:i], true
		}
		n++
	}
	return s, false
}

type translateRun struct {
	logger   *zap.Logger
	warnings []string
}

func (r *translateRun) warn(msg string) {
	r.warnings = append(r.warnings, msg)
	r.logger.Warn("block translation", zap.String("warning", msg))
}

func (r *translateRun) richText(field, s string) []RichText {
	if clamped, truncated := ClampText(s); truncated {
		r.warn(fmt.Sprintf("%s text of %d characters truncated to %d", field, utf8.RuneCountInString(s), MaxTextLength))
		s = clamped
	}
	return []RichText{{Type: "text", Text: RichTextText{Content: s}}}
}

func (r *translateRun) heading(h Heading) (WireBlock, *InvalidBlockError) {
	body := &TextBody{RichText: r.richText(fmt.Sprintf("heading_%d", h.Level), h.Text)}
	switch h.Level {
	case 1:
		return WireBlock{Object: "block", Type: "heading_1", Heading1: body}, nil
	case 2:
		return WireBlock{Object: "block", Type: "heading_2", Heading2: body}, nil
	case 3:
		return WireBlock{Object: "block", Type: "heading_3", Heading3: body}, nil
	default:
		return WireBlock{}, &InvalidBlockError{Kind: "heading", Reason: fmt.Sprintf("level must be 1, 2 or 3, got %d", h.Level)}
	}
}

// bulletItems emits one wire item per entry. Children deeper than MaxNestingDepth
// are flattened, in order, into siblings at the deepest allowed level.
func (r *translateRun) bulletItems(items []ListItem, depth int) []WireBlock {
	out := make([]WireBlock, 0, len(items))
	for _, it := range items {
		wb := WireBlock{Object: "block", Type: "bulleted_list_item", BulletedListItem: &ListItemBody{RichText: r.richText("bulleted_list_item", it.Text)}}
		if len(it.Children) == 0 {
			out = append(out, wb)
			continue
		}
		if depth < MaxNestingDepth {
			wb.BulletedListItem.Children = r.bulletItems(it.Children, depth+1)
			out = append(out, wb)
			continue
		}
		r.warn(fmt.Sprintf("list nested deeper than %d levels flattened", MaxNestingDepth))
		out = append(out, wb)
		out = append(out, r.bulletItems(flattenItems(it.Children), depth)...)
	}
	return out
}

func flattenItems(items []ListItem) []ListItem {
	var out []ListItem
	for _, it := range items {
		out = append(out, ListItem{Text: it.Text})
		out = append(out, flattenItems(it.Children)...)
	}
	return out
}
