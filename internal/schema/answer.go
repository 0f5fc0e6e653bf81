package schema

// Answer is the structured reply decoded from a model's raw text.
// Message is nil when the model explicitly chose not to reply.
type Answer struct {
	Message    *string `json:"message"`
	Author     string  `json:"author,omitempty"`
	Type       string  `json:"type,omitempty"`
	EmojiReact string  `json:"emojiReact,omitempty"`
}

// Text returns the message body, or "" when there is none.
func (a Answer) Text() string {
	if a.Message == nil {
		return ""
	}
	return *a.Message
}
