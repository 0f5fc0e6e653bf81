package schema

// Role identifies the author side of a canonical message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentKind tags a ContentItem.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindASR   ContentKind = "asr" // transcribed audio
	KindImage ContentKind = "image"
	KindFile  ContentKind = "file"
)

// ContentItem is one semantic payload inside a canonical message.
//
// For text and asr items Value is the text itself. For image and file items
// Value is the base64-encoded body and MimeType (plus Filename for files)
// describes it.
type ContentItem struct {
	Kind       ContentKind
	Value      string
	MimeType   string
	Filename   string
	MsgID      string
	AuthorID   string
	AuthorName string
	DateString string
}

// IsTextLike reports whether the item converts as text (text or asr).
func (c ContentItem) IsTextLike() bool {
	return c.Kind == KindText || c.Kind == KindASR
}

// Message is a provider-agnostic conversation turn.
type Message struct {
	Role    Role
	Name    string
	Content []ContentItem
}

// HasTextLike reports whether any content item is text-like.
func (m Message) HasTextLike() bool {
	for _, c := range m.Content {
		if c.IsTextLike() {
			return true
		}
	}
	return false
}

// HasKind reports whether any content item has the given kind.
func (m Message) HasKind(kind ContentKind) bool {
	for _, c := range m.Content {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// Text joins the values of all text-like items with a newline.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if !c.IsTextLike() {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Value
	}
	return out
}

func NewTextMessage(role Role, name, msgID, text string) Message {
	return Message{
		Role: role,
		Name: name,
		Content: []ContentItem{{
			Kind:       KindText,
			Value:      text,
			MsgID:      msgID,
			AuthorName: name,
		}},
	}
}
