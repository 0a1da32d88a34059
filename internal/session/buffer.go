package session

import "fancify-backend/internal/models"

// HistoryLimit is the number of messages a session keeps.
const HistoryLimit = 10

// ConversationBuffer keeps the most recent messages of a session in
// insertion order. Older entries are evicted first.
type ConversationBuffer struct {
	limit    int
	messages []models.ChatMessage
}

func NewConversationBuffer(limit int) *ConversationBuffer {
	if limit < 1 {
		limit = HistoryLimit
	}
	return &ConversationBuffer{limit: limit}
}

func (b *ConversationBuffer) Append(msg models.ChatMessage) {
	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.limit; over > 0 {
		b.messages = append([]models.ChatMessage(nil), b.messages[over:]...)
	}
}

// ContextForRequest returns the context forwarded to the completion service:
// only the latest entry, even though more history is retained.
func (b *ConversationBuffer) ContextForRequest() []models.ChatMessage {
	if len(b.messages) == 0 {
		return nil
	}
	return []models.ChatMessage{b.messages[len(b.messages)-1]}
}

func (b *ConversationBuffer) Messages() []models.ChatMessage {
	out := make([]models.ChatMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *ConversationBuffer) Len() int {
	return len(b.messages)
}
