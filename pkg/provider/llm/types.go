package llm

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}

// EstimateTokens approximates the token count of messages at roughly four
// characters per token plus a small per-message overhead. It never
// undercounts by much for Latin scripts and overcounts for Devanagari.
func EstimateTokens(systemPrompt string, messages []Message) int {
	total := (len(systemPrompt) + 3) / 4
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total
}
