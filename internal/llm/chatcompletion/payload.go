package chatcompletion

import "github.com/bakkerme/wanderlust-ai/internal/llm"

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model          string          `json:"model"`
	Messages       []wireMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// buildPayload assembles the request body. The system prompt, when present, is
// always the first message. stream is decided by the call path, not by
// params.Stream, since Chat can only parse a buffered body.
func (c *Client) buildPayload(params llm.ChatParams, stream bool) *wireRequest {
	messages := make([]wireMessage, 0, len(params.Messages)+1)
	if params.System != "" {
		messages = append(messages, wireMessage{Role: string(llm.RoleSystem), Content: params.System})
	}
	for _, msg := range params.Messages {
		messages = append(messages, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	payload := &wireRequest{
		Model:     c.resolveModel(params.Model),
		Messages:  messages,
		TopP:      params.TopP,
		MaxTokens: params.MaxTokens,
		Stream:    stream,
	}
	switch {
	case params.Temperature != nil:
		payload.Temperature = params.Temperature
	case c.temperature != nil:
		t := *c.temperature
		payload.Temperature = &t
	}
	if params.ResponseSchema != nil {
		payload.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   params.ResponseSchema.Name(),
				Strict: true,
				Schema: params.ResponseSchema.JSONSchema(),
			},
		}
	}
	return payload
}
