package models

// Role identifies the author of a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a single message in a conversation.
// Messages are values and are never modified after creation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what the controller hands to the completion service.
type CompletionRequest struct {
	System          string        `json:"system"`
	Messages        []ChatMessage `json:"messages"`
	MaxOutputTokens int           `json:"max_output_tokens"`
}
