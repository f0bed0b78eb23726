package chat

import "time"

// Role identifies who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the transcript. It is never edited after it is appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserMessages returns only the user-authored turns of a transcript.
func UserMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleUser {
			out = append(out, msg)
		}
	}
	return out
}
