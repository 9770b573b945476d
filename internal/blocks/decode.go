package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DecodeDocument builds a Document from its loosely-typed form
// {"title": string, "blocks": [...]}, as emitted by the generation engine or
// authored by hand in JSON/YAML.
func DecodeDocument(raw map[string]any) (Document, error) {
	if raw == nil {
		return Document{}, &MalformedDocumentError{Reason: "document is empty"}
	}
	titleVal, ok := raw["title"]
	if !ok {
		return Document{}, &MalformedDocumentError{Reason: `missing "title"`}
	}
	title, ok := titleVal.(string)
	if !ok {
		return Document{}, &MalformedDocumentError{Reason: fmt.Sprintf(`"title" must be a string, got %T`, titleVal)}
	}
	blocksVal, ok := raw["blocks"]
	if !ok {
		return Document{}, &MalformedDocumentError{Reason: `missing "blocks"`}
	}
	items, ok := blocksVal.([]any)
	if !ok {
		return Document{}, &MalformedDocumentError{Reason: fmt.Sprintf(`"blocks" must be a list, got %T`, blocksVal)}
	}

	bs, err := DecodeBlocks(items)
	if err != nil {
		return Document{}, err
	}
	return Document{Title: title, Blocks: bs}, nil
}

// DecodeBlocks converts generic block descriptions. Entries with an unrecognised
// tag decode to Unknown; entries that are not objects are reported as malformed.
func DecodeBlocks(items []any) ([]Block, error) {
	out := make([]Block, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &MalformedDocumentError{Reason: fmt.Sprintf("block %d must be an object, got %T", i, item)}
		}
		b, err := decodeBlock(m)
		if err != nil {
			var ib *InvalidBlockError
			if errors.As(err, &ib) {
				ib.Index = i
			}
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeBlock(m map[string]any) (Block, error) {
	kind, _ := m["type"].(string)
	kind = strings.TrimSpace(kind)

	switch kind {
	case "paragraph":
		return Paragraph{Text: content(m)}, nil
	case "heading_1", "heading_2", "heading_3":
		level, _ := strconv.Atoi(kind[len(kind)-1:])
		return NewHeading(level, content(m))
	case "heading":
		level, ok := intField(m["level"])
		if !ok {
			return nil, &InvalidBlockError{Index: -1, Kind: "heading", Reason: "level is missing or not a number"}
		}
		return NewHeading(level, content(m))
	case "bulleted_list":
		return BulletList{Items: decodeListItems(m["items"])}, nil
	case "numbered_list":
		return NumberedList{Items: stringList(m["items"])}, nil
	case "code":
		lang, _ := m["language"].(string)
		if lang == "" {
			lang = "plain text"
		}
		return Code{Text: content(m), Language: lang}, nil
	case "divider":
		return Divider{}, nil
	case "to_do":
		checked, _ := m["checked"].(bool)
		return Todo{Text: content(m), Checked: checked}, nil
	case "bookmark":
		url, _ := m["url"].(string)
		return Bookmark{URL: url}, nil
	case "callout":
		emoji, _ := m["emoji"].(string)
		if emoji == "" {
			emoji = DefaultCalloutEmoji
		}
		return Callout{Text: content(m), Emoji: emoji}, nil
	default:
		return Unknown{Type: kind}, nil
	}
}

// content reads the text payload; "content" is canonical, "text" is accepted.
func content(m map[string]any) string {
	if s, ok := m["content"].(string); ok {
		return s
	}
	s, _ := m["text"].(string)
	return s
}

func decodeListItems(v any) []ListItem {
	raw, _ := v.([]any)
	out := make([]ListItem, 0, len(raw))
	for _, item := range raw {
		switch it := item.(type) {
		case string:
			out = append(out, ListItem{Text: it})
		case map[string]any:
			li := ListItem{Text: content(it)}
			if children, ok := it["children"]; ok {
				li.Children = decodeListItems(children)
			}
			out = append(out, li)
		}
	}
	return out
}

func stringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch it := item.(type) {
		case string:
			out = append(out, it)
		case map[string]any:
			out = append(out, content(it))
		}
	}
	return out
}

func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
