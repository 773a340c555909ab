package domain

// Message is one entry of the conversation transcript.
type Message struct {
	Role    string `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

// NewMessage is a shorthand for building a transcript entry.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}
