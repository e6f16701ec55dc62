// Package llm defines the Provider interface for text-completion backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Groq, a Hugging
// Face inference endpoint, or any back-end reachable through any-llm-go) and
// exposes a single blocking completion call. Macca never streams: the coaching
// contract is a single JSON document that is parsed only once it is complete.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Roles accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend. Counts may
// be zero when the backend does not report them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is the high-priority instruction block. Providers without a
	// dedicated system field prepend it as a system-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is the user turn.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// JSONMode asks the backend to constrain output to a single JSON object.
	// Backends that cannot honour it ignore the flag.
	JSONMode bool
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails, the backend answers with a non-2xx
	// status, or ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Flatten renders the request as a single prompt string for backends that
// accept raw text only. The system prompt comes first, followed by each message
// separated by a blank line.
func Flatten(req CompletionRequest) string {
	var n int
	n += len(req.SystemPrompt)
	for _, m := range req.Messages {
		n += len(m.Content) + 2
	}
	buf := make([]byte, 0, n+2)
	if req.SystemPrompt != "" {
		buf = append(buf, req.SystemPrompt...)
	}
	for _, m := range req.Messages {
		if len(buf) > 0 {
			buf = append(buf, "\n\n"...)
		}
		buf = append(buf, m.Content...)
	}
	return string(buf)
}
