package llmprovider

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateRequest contains the parameters for an LLM generation request.
type GenerateRequest struct {
	// Messages contains the conversation history.
	// Each message has a Role (user/assistant) and Blocks.
	Messages []Message

	// Model is the model identifier (e.g., "claude-haiku-4-5-20251001")
	Model string

	// Params contains all request parameters (temperature, max_tokens, thinking settings, etc.)
	// Provider adapters extract what they support from this unified struct.
	Params *RequestParams
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is either "user" or "assistant"
	Role string

	// Blocks is the list of content blocks for this message
	Blocks []*Block
}

// NewUserMessage returns a user message with a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []*Block{NewTextBlock(text)}}
}

// NewAssistantMessage returns an assistant message built from response blocks.
func NewAssistantMessage(blocks []*Block) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

// Validate checks the request before it is sent to a provider.
func (r *GenerateRequest) Validate() error {
	if r == nil {
		return &ValidationError{Field: "request", Reason: "is nil", Err: ErrInvalidRequest}
	}
	if r.Model == "" {
		return &ValidationError{Field: "model", Reason: "is required", Err: ErrInvalidRequest}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "at least one message is required", Err: ErrInvalidRequest}
	}
	for _, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return &ValidationError{Field: "messages.role", Value: m.Role, Reason: "must be 'user' or 'assistant'", Err: ErrInvalidRequest}
		}
	}
	return ValidateRequestParams(r.Params)
}
