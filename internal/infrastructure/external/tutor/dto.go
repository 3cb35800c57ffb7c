package tutor

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// CHAT COMPLETIONS DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ChatMessage is one message in a chat-completions request or response.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatChoice is one candidate completion.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage reports token accounting.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the body returned by POST /chat/completions.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// APIErrorDTO is the provider's error envelope: {"error": {...}}.
type APIErrorDTO struct {
	Body struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`

	// StatusCode is filled from the HTTP response, not the body.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("tutor api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("tutor api error: status %d: %s", e.StatusCode, e.Body.Message)
}

// Temporary reports whether the provider may succeed on a later attempt.
func (e *APIErrorDTO) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408
}
