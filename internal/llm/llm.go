package llm

import (
	"context"
	"fmt"
	"io"
)

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether the role is one the chat completion endpoint accepts.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ChatParams is a single logical chat completion call. Messages must be non-empty;
// every other field is optional and resolved against client defaults.
type ChatParams struct {
	System   string
	Messages []Message
	Model    string

	// ResponseSchema, when set, constrains the model output and is used to
	// validate the assistant content. Only its JSON-Schema projection is sent.
	ResponseSchema Schema

	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stream      bool

	// Headers are merged over the client defaults.
	Headers map[string]string
}

// Validate rejects call-time input that no attempt could succeed with.
func (p ChatParams) Validate() error {
	if len(p.Messages) == 0 {
		return RequestValidationError("messages", "at least one message is required")
	}
	for i, msg := range p.Messages {
		if !msg.Role.Valid() {
			return RequestValidationError(fmt.Sprintf("messages[%d].role", i), fmt.Sprintf("unsupported role %q", msg.Role))
		}
	}
	if t := p.Temperature; t != nil && (*t < 0 || *t > 2) {
		return RequestValidationError("temperature", "temperature must be between 0 and 2")
	}
	if v := p.TopP; v != nil && (*v < 0 || *v > 1) {
		return RequestValidationError("topP", "top_p must be between 0 and 1")
	}
	if p.MaxTokens < 0 {
		return RequestValidationError("maxTokens", "max tokens must be positive")
	}
	return nil
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatSuccess is the result of a successful call.
type ChatSuccess struct {
	ID           string
	Created      int64
	Model        string
	Usage        Usage
	Content      string
	FinishReason string

	// Structured holds the validated value when ChatParams.ResponseSchema was set.
	Structured any

	// Attempts is the number of attempts the call took, including the successful one.
	Attempts int
}

// StreamChunk is one decoded delta from an event stream.
type StreamChunk struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
}

// Schema describes the expected structured output of a call.
type Schema interface {
	// Name is the schema name sent on the wire.
	Name() string
	// JSONSchema is the JSON-Schema projection sent as response_format.
	JSONSchema() map[string]any
	// Validate parses raw and validates it, returning the typed value.
	Validate(raw string) (any, error)
}

type Client interface {
	Chat(ctx context.Context, params ChatParams) (*ChatSuccess, error)
}

// Streamer is implemented by clients that can deliver a chat completion incrementally.
// The returned body is the raw event stream; the caller must close it.
type Streamer interface {
	Stream(ctx context.Context, params ChatParams) (io.ReadCloser, error)
}
