package core

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an append-only chat transcript owned by a single conversation.
type History struct {
	messages []Message
}

// Append adds a message to the end of the transcript.
func (h *History) Append(role Role, content string) {
	h.messages = append(h.messages, Message{Role: role, Content: content})
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the full transcript.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns a copy of the most recent n messages.
func (h *History) Last(n int) []Message {
	return LastMessages(h.messages, n)
}

// Reset clears the transcript.
func (h *History) Reset() {
	h.messages = nil
}

// LastMessages returns a copy of the last n messages of msgs.
func LastMessages(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) == 0 {
		return nil
	}
	if n > len(msgs) {
		n = len(msgs)
	}
	out := make([]Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}

// Transcript renders messages as "speaker: content" lines.
// userLabel and assistantLabel name the two speakers.
func Transcript(msgs []Message, userLabel, assistantLabel string) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		label := assistantLabel
		if m.Role == RoleUser {
			label = userLabel
		}
		lines = append(lines, label+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
