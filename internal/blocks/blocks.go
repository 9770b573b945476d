package blocks

import "fmt"

// Document is the reduced output of one session: a page title and its ordered content.
type Document struct {
	Title  string
	Blocks []Block
}

// Block is one generic content block. The set of variants is closed; callers switch on
// the concrete type.
type Block interface {
	// Kind returns the vocabulary tag of the block (e.g. "paragraph", "heading_2").
	Kind() string
	isBlock()
}

// Paragraph is a plain text paragraph.
type Paragraph struct {
	Text string
}

// Heading is a section heading with level 1, 2 or 3.
type Heading struct {
	Level int
	Text  string
}

// BulletList is an unordered list whose items may nest.
type BulletList struct {
	Items []ListItem
}

// ListItem is one entry of a BulletList.
type ListItem struct {
	Text     string
	Children []ListItem
}

// NumberedList is a flat ordered list.
type NumberedList struct {
	Items []string
}

// Code is a code listing tagged with a language.
type Code struct {
	Text     string
	Language string
}

// Divider is a horizontal rule.
type Divider struct{}

// Todo is a checklist entry.
type Todo struct {
	Text    string
	Checked bool
}

// Bookmark embeds a link preview.
type Bookmark struct {
	URL string
}

// Callout is highlighted text with an emoji icon.
type Callout struct {
	Text  string
	Emoji string
}

// Unknown carries a tag outside the vocabulary. It survives decoding so the
// translator can drop it with a warning instead of failing the document.
type Unknown struct {
	Type string
}

// DefaultCalloutEmoji is used when a callout carries no icon.
const DefaultCalloutEmoji = "💡"

func (Paragraph) Kind() string    { return "paragraph" }
func (h Heading) Kind() string    { return fmt.Sprintf("heading_%d", h.Level) }
func (BulletList) Kind() string   { return "bulleted_list" }
func (NumberedList) Kind() string { return "numbered_list" }
func (Code) Kind() string         { return "code" }
func (Divider) Kind() string      { return "divider" }
func (Todo) Kind() string         { return "to_do" }
func (Bookmark) Kind() string     { return "bookmark" }
func (Callout) Kind() string      { return "callout" }
func (u Unknown) Kind() string    { return u.Type }

func (Paragraph) isBlock()    {}
func (Heading) isBlock()      {}
func (BulletList) isBlock()   {}
func (NumberedList) isBlock() {}
func (Code) isBlock()         {}
func (Divider) isBlock()      {}
func (Todo) isBlock()         {}
func (Bookmark) isBlock()     {}
func (Callout) isBlock()      {}
func (Unknown) isBlock()      {}

// NewHeading validates the level and returns a Heading.
func NewHeading(level int, text string) (Heading, error) {
	if level < 1 || level > 3 {
		return Heading{}, &InvalidBlockError{Index: -1, Kind: "heading", Reason: fmt.Sprintf("level must be 1, 2 or 3, got %d", level)}
	}
	return Heading{Level: level, Text: text}, nil
}

// InvalidBlockError reports a structurally invalid block. It aborts translation of
// the document that contains it.
type InvalidBlockError struct {
	Index  int // position in the document, -1 when not known
	Kind   string
	Reason string
}

func (e *InvalidBlockError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s block at index %d: %s", e.Kind, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s block: %s", e.Kind, e.Reason)
}

// MalformedDocumentError reports a generic document missing its required fields.
type MalformedDocumentError struct {
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	return "malformed document: " + e.Reason
}
