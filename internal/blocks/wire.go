package blocks

// WireBlock is a block in the page store's JSON representation. Exactly one of the
// body pointers is set, matching Type.
type WireBlock struct {
	Object string `json:"object"`
	Type   string `json:"type"`

	Paragraph        *TextBody     `json:"paragraph,omitempty"`
	Heading1         *TextBody     `json:"heading_1,omitempty"`
	Heading2         *TextBody     `json:"heading_2,omitempty"`
	Heading3         *TextBody     `json:"heading_3,omitempty"`
	BulletedListItem *ListItemBody `json:"bulleted_list_item,omitempty"`
	NumberedListItem *ListItemBody `json:"numbered_list_item,omitempty"`
	Code             *CodeBody     `json:"code,omitempty"`
	Divider          *EmptyBody    `json:"divider,omitempty"`
	ToDo             *ToDoBody     `json:"to_do,omitempty"`
	Bookmark         *BookmarkBody `json:"bookmark,omitempty"`
	Callout          *CalloutBody  `json:"callout,omitempty"`
}

// RichText is a single text run.
type RichText struct {
	Type string       `json:"type"`
	Text RichTextText `json:"text"`
}

// RichTextText holds the run content and optional link.
type RichTextText struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink target.
type Link struct {
	URL string `json:"url"`
}

// TextBody is the body of paragraph and heading blocks.
type TextBody struct {
	RichText []RichText `json:"rich_text"`
}

// ListItemBody is the body of list item blocks.
type ListItemBody struct {
	RichText []RichText `json:"rich_text"`
	Children []WireBlock `json:"children,omitempty"`
}

// CodeBody is the body of code blocks.
type CodeBody struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
}

// ToDoBody is the body of to_do blocks.
type ToDoBody struct {
	RichText []RichText `json:"rich_text"`
	Checked  bool       `json:"checked"`
}

// BookmarkBody is the body of bookmark blocks.
type BookmarkBody struct {
	URL string `json:"url"`
}

// CalloutBody is the body of callout blocks.
type CalloutBody struct {
	RichText []RichText `json:"rich_text"`
	Icon     Icon       `json:"icon"`
}

// Icon is an emoji icon.
type Icon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// EmptyBody serialises as {}.
type EmptyBody struct{}

// TextOf returns the plain text carried by the block, or "" for blocks without text.
func (w WireBlock) TextOf() string {
	var rt []RichText
	switch {
	case w.Paragraph != nil:
		rt = w.Paragraph.RichText
	case w.Heading1 != nil:
		rt = w.Heading1.RichText
	case w.Heading2 != nil:
		rt = w.Heading2.RichText
	case w.Heading3 != nil:
		rt = w.Heading3.RichText
	case w.BulletedListItem != nil:
		rt = w.BulletedListItem.RichText
	case w.NumberedListItem != nil:
		rt = w.NumberedListItem.RichText
	case w.Code != nil:
		rt = w.Code.RichText
	case w.ToDo != nil:
		rt = w.ToDo.RichText
	case w.Callout != nil:
		rt = w.Callout.RichText
	}
	var s string
	for _, r := range rt {
		s += r.Text.Content
	}
	return s
}
